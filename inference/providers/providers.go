// Package providers - Execution provider selection for onnxruntime sessions.
package providers

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Backend names an onnxruntime execution provider.
type Backend string

const (
	// CPUBackend runs on the default CPU provider.
	CPUBackend Backend = "cpu"
	// CoreMLBackend uses Apple CoreML.
	CoreMLBackend Backend = "coreml"
	// OpenVINOBackend uses Intel OpenVINO.
	OpenVINOBackend Backend = "openvino"
	// CUDABackend uses NVIDIA CUDA.
	CUDABackend Backend = "cuda"
)

// LibraryPathEnv overrides the onnxruntime shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB"

// Config selects the execution provider and threading for a session.
type Config struct {
	// Backend is the execution provider to append. Empty means CPU.
	Backend Backend `json:"backend" yaml:"backend"`
	// IntraOpThreads parallelizes work inside graph nodes. 0 lets onnxruntime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes independent graph nodes. 0 lets onnxruntime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// DeviceID selects the accelerator for CUDA and OpenVINO.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// DeviceType is the OpenVINO device type, e.g. CPU or GPU.
	DeviceType string `json:"device_type" yaml:"device_type"`
}

// DefaultConfig returns a CPU configuration.
func DefaultConfig() Config {
	return Config{
		Backend:        CPUBackend,
		IntraOpThreads: 4,
		InterOpThreads: 2,
		DeviceType:     "CPU",
	}
}

// ParseBackend validates a backend name. Matching is case-insensitive.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "", CPUBackend:
		return CPUBackend, nil
	case CoreMLBackend, OpenVINOBackend, CUDABackend:
		return b, nil
	default:
		return "", errors.Errorf("unsupported execution provider %q", name)
	}
}

// Apply configures threading and appends the execution provider to options.
//
// Arguments:
//   - options: Session options that have not been used to create a session yet.
//   - cfg: The provider selection.
//
// Returns:
//   - error: An error if the provider is unknown or cannot be enabled.
func Apply(options *ort.SessionOptions, cfg Config) error {
	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return err
	}

	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return errors.Wrap(err, "failed to set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return errors.Wrap(err, "failed to set inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "failed to set graph optimization level")
	}

	switch backend {
	case CoreMLBackend:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOBackend:
		// See:
		// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
		if err := options.AppendExecutionProviderOpenVINO(OpenVINOOptions(cfg)); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	case CUDABackend:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(cfg.DeviceID)}); err != nil {
			return errors.Wrap(err, "error converting CUDA options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	}

	return nil
}

// OpenVINOOptions builds the provider option map for OpenVINO.
func OpenVINOOptions(cfg Config) map[string]string {
	deviceType := cfg.DeviceType
	if deviceType == "" {
		deviceType = "CPU"
	}
	opts := map[string]string{
		"device_id":   strconv.Itoa(cfg.DeviceID),
		"device_type": deviceType,
		"precision":   "FP32",
	}
	if cfg.IntraOpThreads > 0 {
		opts["num_of_threads"] = fmt.Sprint(cfg.IntraOpThreads)
	}
	return opts
}

// SharedLibraryPath resolves the onnxruntime shared library. An explicit path
// wins, then $ONNXRUNTIME_LIB, then a platform default under ./third_party.
//
// Arguments:
//   - explicit: A configured path, or "".
//
// Returns:
//   - string: The path to hand to onnxruntime.
func SharedLibraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		return env
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
