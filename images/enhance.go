package images

import (
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// EnhanceConfig holds the fixed parameters of the plate crop preprocessing.
// The same values are applied to every crop.
type EnhanceConfig struct {
	// ClipLimit bounds each histogram bin of the local contrast equalization,
	// relative to the mean bin height.
	ClipLimit float64 `json:"clip_limit" yaml:"clip_limit"`
	// TileGrid is the number of tiles along each axis for local equalization.
	TileGrid int `json:"tile_grid" yaml:"tile_grid"`
	// BlockSize is the side of the neighbourhood used by adaptive binarization.
	BlockSize int `json:"block_size" yaml:"block_size"`
	// Offset is subtracted from the neighbourhood mean before thresholding.
	Offset float64 `json:"offset" yaml:"offset"`
	// MaxDimension caps the longest side after upscaling.
	MaxDimension int `json:"max_dimension" yaml:"max_dimension"`
	// MaxUpscale caps the upscaling factor.
	MaxUpscale float64 `json:"max_upscale" yaml:"max_upscale"`
	// BlurSigma is the gaussian sigma of the final light blur. 0 disables it.
	BlurSigma float64 `json:"blur_sigma" yaml:"blur_sigma"`
}

// DefaultEnhanceConfig returns the preprocessing parameters used for OCR crops.
func DefaultEnhanceConfig() EnhanceConfig {
	return EnhanceConfig{
		ClipLimit:    2.0,
		TileGrid:     8,
		BlockSize:    31,
		Offset:       10,
		MaxDimension: 400,
		MaxUpscale:   3.0,
		BlurSigma:    0.5,
	}
}

// Enhance is the cgo-free crop preparation: grayscale, bounded upscaling with
// the aspect ratio preserved, and a light blur. Equalization and binarization
// need OpenCV and live in images/cv; the fields for them are ignored here.
//
// Arguments:
//   - img: The plate crop.
//   - cfg: The preprocessing parameters.
//
// Returns:
//   - *image.Gray: The enhanced crop, with its origin at (0, 0).
//
// @example
// crop := imaging.Crop(frame, box.Rectangle())
// ready := images.Enhance(crop, images.DefaultEnhanceConfig())
func Enhance(img image.Image, cfg EnhanceConfig) *image.Gray {
	var out image.Image = imaging.Grayscale(img)
	b := out.Bounds()
	if w, h, ok := UpscaleSize(b.Dx(), b.Dy(), cfg.MaxDimension, cfg.MaxUpscale); ok {
		out = imaging.Resize(out, w, h, imaging.Lanczos)
	}
	if cfg.BlurSigma > 0 {
		out = imaging.Blur(out, cfg.BlurSigma)
	}
	return ToGray(out)
}

// UpscaleSize computes the upscaled size of a width x height crop so that the
// longest side does not exceed maxDim and the factor does not exceed maxFactor.
// It reports false when no upscaling applies.
func UpscaleSize(width, height, maxDim int, maxFactor float64) (int, int, bool) {
	longest := max(width, height)
	if longest <= 0 || maxDim <= 0 {
		return width, height, false
	}
	scale := float64(maxDim) / float64(longest)
	if maxFactor > 0 {
		scale = math.Min(scale, maxFactor)
	}
	if scale <= 1.0 {
		return width, height, false
	}
	return int(math.Round(float64(width) * scale)), int(math.Round(float64(height) * scale)), true
}

// ToGray converts img to an 8-bit grayscale image anchored at (0, 0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
