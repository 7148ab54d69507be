package detectors

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-lpr/inference/providers"
)

// Config represents the configuration for the ONNX plate detector.
type Config struct {
	// ModelPath is the YOLO plate model exported to ONNX.
	ModelPath string `json:"model_path" yaml:"model_path"`

	// LibraryPath is the onnxruntime shared library. Empty resolves through
	// $ONNXRUNTIME_LIB or the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`

	// InputSize is the square model input side.
	InputSize int `json:"input_size" yaml:"input_size"`

	// Anchors is the number of prediction columns in the model output.
	Anchors int `json:"anchors" yaml:"anchors"`

	// Classes is the number of class score rows in the model output.
	Classes int `json:"classes" yaml:"classes"`

	// NMSThreshold controls Non-Maximum Suppression IoU threshold.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`

	// InputName and OutputName are the graph node names.
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`

	// Provider is the execution provider configuration.
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// DefaultConfig returns the configuration of a YOLOv8 single class plate
// model at 640x640.
//
// Returns:
//   - Config: The default configuration. ModelPath must still be set.
//
// @example
// cfg := detectors.DefaultConfig()
// cfg.ModelPath = "models/plate.onnx"
// det, err := detectors.NewONNXDetector(cfg)
func DefaultConfig() Config {
	return Config{
		InputSize:    640,
		Anchors:      8400,
		Classes:      1,
		NMSThreshold: 0.7,
		InputName:    "images",
		OutputName:   "output0",
		Provider:     providers.DefaultConfig(),
	}
}

// Validate checks the configuration before a session is created.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.InputSize < 32 {
		return errors.Errorf("input size must be at least 32, got %d", c.InputSize)
	}
	if c.Anchors <= 0 || c.Classes <= 0 {
		return errors.Errorf("invalid output layout: %d anchors, %d classes", c.Anchors, c.Classes)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return errors.Errorf("nms threshold must be in (0, 1], got %f", c.NMSThreshold)
	}
	if _, err := providers.ParseBackend(string(c.Provider.Backend)); err != nil {
		return err
	}
	return nil
}
