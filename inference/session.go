// Package inference - onnxruntime sessions and tensor plumbing for detection
// models.
package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-lpr/inference/providers"
)

var (
	envOnce sync.Once
	envErr  error
)

// SessionConfig describes a single-input single-output model.
type SessionConfig struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string
	// LibraryPath is the onnxruntime shared library. Empty resolves via
	// providers.SharedLibraryPath.
	LibraryPath string
	// InputName and OutputName are the graph node names.
	InputName  string
	OutputName string
	// InputShape is the NCHW input shape, e.g. [1, 3, 640, 640].
	InputShape []int64
	// OutputShape is the raw output shape, e.g. [1, 5, 8400].
	OutputShape []int64
	// Provider selects the execution provider.
	Provider providers.Config
}

// Session represents a model session from the onnxruntime with its
// preallocated input and output tensors.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// initEnvironment loads the shared library once per process.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return envErr
}

// NewSession creates a new onnxruntime session.
//
// Order of operations:
//  1. Library path check and environment setup, once per process.
//  2. Tensor allocation for the fixed input and output shapes.
//  3. Session options and execution provider.
//  4. Session creation, binding the tensors.
//
// Arguments:
//   - cfg: The model description.
//
// Returns:
//   - *Session: The runnable session. The caller must Close it.
//   - error: An error if any step fails. Partially created resources are released.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := initEnvironment(providers.SharedLibraryPath(cfg.LibraryPath)); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if err := providers.Apply(options, cfg.Provider); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", cfg.ModelPath)
	}

	return &Session{session: session, input: input, output: output}, nil
}

// Input is the input tensor backing slice. Writes are visible to the next Run.
func (s *Session) Input() []float32 { return s.input.GetData() }

// Output is the output tensor backing slice, valid after Run.
func (s *Session) Output() []float32 { return s.output.GetData() }

// Run executes the model on the current input tensor.
func (s *Session) Run() error {
	if s.session == nil {
		return errors.New("session is closed")
	}
	return errors.Wrap(s.session.Run(), "failed to run inference")
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}
