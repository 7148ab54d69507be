// Package detectors - License plate detectors.
package detectors

import (
	"context"
	"image"

	"github.com/nvr-ai/go-lpr/images"
)

// Detection is one plate box in frame coordinates.
type Detection struct {
	Box        images.Rect `json:"box"`
	Confidence float32     `json:"confidence"`
}

// Detector finds license plates in an image.
type Detector interface {
	// Detect returns the plates in img with confidence at or above threshold.
	Detect(ctx context.Context, img image.Image, threshold float32) ([]Detection, error)
}
