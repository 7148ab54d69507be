package pipeline

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/plate"
	"github.com/nvr-ai/go-lpr/tracking"
)

// Config holds the thresholds of a run. The same values apply to every frame.
type Config struct {
	// IoUThreshold is the overlap needed to continue a vehicle identity.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// DetectorConfidence is the minimum plate detection score.
	DetectorConfidence float32 `json:"detector_confidence" yaml:"detector_confidence"`
	// MinCandidateLength is the per-frame minimum cleaned text length.
	MinCandidateLength int `json:"min_candidate_length" yaml:"min_candidate_length"`
	// MinPlateLength is the minimum length of a finalized plate.
	MinPlateLength int `json:"min_plate_length" yaml:"min_plate_length"`
	// MinCropSize is the smallest crop side, in pixels, worth reading.
	MinCropSize int `json:"min_crop_size" yaml:"min_crop_size"`
	// CropPadding grows the OCR crop of a still image on every side before clamping.
	CropPadding int `json:"crop_padding" yaml:"crop_padding"`
	// VideoCropPadding does the same for video frames. Video crops are read
	// from the clamped box itself unless this is set.
	VideoCropPadding int `json:"video_crop_padding" yaml:"video_crop_padding"`
	// DefaultFPS is used when the source does not report a frame rate.
	DefaultFPS float64 `json:"default_fps" yaml:"default_fps"`
	// DefaultWidth and DefaultHeight are used when the source does not report a size.
	DefaultWidth  int `json:"default_width" yaml:"default_width"`
	DefaultHeight int `json:"default_height" yaml:"default_height"`
	// Enhance configures the OCR crop preprocessing.
	Enhance images.EnhanceConfig `json:"enhance" yaml:"enhance"`
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:       tracking.DefaultIoUThreshold,
		DetectorConfidence: 0.5,
		MinCandidateLength: plate.DefaultMinCandidateLength,
		MinPlateLength:     plate.DefaultMinPlateLength,
		MinCropSize:        5,
		CropPadding:        3,
		DefaultFPS:         30,
		DefaultWidth:       640,
		DefaultHeight:      480,
		Enhance:            images.DefaultEnhanceConfig(),
	}
}

// Validate rejects out of range thresholds.
func (c Config) Validate() error {
	switch {
	case c.IoUThreshold <= 0 || c.IoUThreshold >= 1:
		return errors.Errorf("iou_threshold must be in (0, 1), got %f", c.IoUThreshold)
	case c.DetectorConfidence < 0 || c.DetectorConfidence > 1:
		return errors.Errorf("detector_confidence must be in [0, 1], got %f", c.DetectorConfidence)
	case c.MinCandidateLength < 1:
		return errors.Errorf("min_candidate_length must be positive, got %d", c.MinCandidateLength)
	case c.MinPlateLength < 1:
		return errors.Errorf("min_plate_length must be positive, got %d", c.MinPlateLength)
	case c.MinCropSize < 1:
		return errors.Errorf("min_crop_size must be positive, got %d", c.MinCropSize)
	case c.CropPadding < 0:
		return errors.Errorf("crop_padding must not be negative, got %d", c.CropPadding)
	case c.VideoCropPadding < 0:
		return errors.Errorf("video_crop_padding must not be negative, got %d", c.VideoCropPadding)
	case c.DefaultFPS <= 0:
		return errors.Errorf("default_fps must be positive, got %f", c.DefaultFPS)
	case c.DefaultWidth <= 0 || c.DefaultHeight <= 0:
		return errors.Errorf("default size must be positive, got %dx%d", c.DefaultWidth, c.DefaultHeight)
	}
	return nil
}
