// Package cv prepares plate crops for OCR with OpenCV.
package cv

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-lpr/images"
)

// Enhancer runs grayscale conversion, CLAHE, adaptive binarization, bounded
// upscaling and a light gaussian blur over every crop. It is safe for
// concurrent use; each call allocates its own Mats.
type Enhancer struct {
	config images.EnhanceConfig
}

// NewEnhancer creates an enhancer with fixed parameters.
//
// Arguments:
//   - config: The preprocessing parameters. BlockSize is rounded up to an odd value of at least 3.
//
// Returns:
//   - *Enhancer: The enhancer.
//
// @example
// p := pipeline.New(cfg, det, engine, pipeline.WithPreprocessor(cv.NewEnhancer(cfg.Enhance)))
func NewEnhancer(config images.EnhanceConfig) *Enhancer {
	if config.BlockSize < 3 {
		config.BlockSize = 3
	}
	if config.BlockSize%2 == 0 {
		config.BlockSize++
	}
	if config.TileGrid < 1 {
		config.TileGrid = 1
	}
	return &Enhancer{config: config}
}

// Preprocess returns the enhanced crop as an *image.Gray.
func (e *Enhancer) Preprocess(crop image.Image) (image.Image, error) {
	if crop == nil || crop.Bounds().Empty() {
		return nil, errors.New("empty crop")
	}

	src, err := gocv.ImageToMatRGB(crop)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert crop")
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	clahe := gocv.NewCLAHEWithParams(e.config.ClipLimit, image.Pt(e.config.TileGrid, e.config.TileGrid))
	defer clahe.Close()
	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.AdaptiveThreshold(equalized, &binary, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, e.config.BlockSize, float32(e.config.Offset))

	out := binary
	if w, h, ok := images.UpscaleSize(binary.Cols(), binary.Rows(), e.config.MaxDimension, e.config.MaxUpscale); ok {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(binary, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLanczos4)
		out = resized
	}

	if e.config.BlurSigma > 0 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(out, &blurred, image.Pt(0, 0), e.config.BlurSigma, e.config.BlurSigma, gocv.BorderDefault)
		out = blurred
	}

	img, err := out.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert enhanced crop")
	}
	return img, nil
}
