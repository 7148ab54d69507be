package pipeline

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/ocr"
	"github.com/nvr-ai/go-lpr/plate"
)

// PlateText is one plate read from a still image.
type PlateText struct {
	Box images.Rect `json:"box"`
	// Text is the cleaned plate text.
	Text string `json:"text"`
	// Raw is the joined OCR output before cleaning.
	Raw string `json:"raw"`
	// Avro is Text in Avro phonetic spelling.
	Avro string `json:"avro"`
	// Confidence is the mean confidence of the OCR fragments.
	Confidence float32 `json:"confidence"`
}

// ImageResult is the outcome of ProcessImage.
type ImageResult struct {
	Plates    []PlateText `json:"plates"`
	Annotated image.Image `json:"-"`
}

// ProcessImage reads every plate in a still image. There is no tracking: each
// detection is read once and all of its OCR fragments are joined in reading
// order. A detector failure is returned as an error; OCR failures yield an
// empty plate text.
//
// Arguments:
//   - ctx: Cancels detection and OCR.
//   - img: The image.
//
// Returns:
//   - *ImageResult: The plates and an annotated copy of img.
//   - error: An error if img is nil, ctx is done or detection fails.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (*ImageResult, error) {
	if img == nil {
		return nil, errors.New("no image")
	}
	if err := ctx.Err(); err != nil {
		return nil, newStageError(ErrCanceled, err)
	}

	detections, err := p.detector.Detect(ctx, img, p.config.DetectorConfidence)
	if err != nil {
		return nil, errors.Wrap(err, "plate detection failed")
	}

	bounds := img.Bounds()
	plates := make([]PlateText, 0, len(detections))
	annotations := make([]images.Annotation, 0, len(detections))

	for i, d := range detections {
		box := images.ClampToBounds(d.Box, bounds)
		if images.IsDegenerate(box, p.config.MinCropSize) {
			p.metrics.DegenerateCrop()
			continue
		}

		raw, confidence := ocr.Join(p.readAll(ctx, img, box, i))
		text := plate.Clean(raw)
		pt := PlateText{
			Box:        box,
			Text:       text,
			Raw:        raw,
			Avro:       plate.ToAvro(text),
			Confidence: confidence,
		}
		plates = append(plates, pt)
		annotations = append(annotations, images.Annotation{Box: box, Label: pt.Avro})

		p.logger.Debug("plate read", zap.Stringer("box", box), zap.String("plate", text), zap.Float32("confidence", confidence))
	}

	return &ImageResult{Plates: plates, Annotated: images.Annotate(img, annotations)}, nil
}

// readAll crops the box with CropPadding and returns every OCR fragment.
// Failures yield no fragments.
func (p *Pipeline) readAll(ctx context.Context, img image.Image, box images.Rect, index int) []ocr.Result {
	crop, err := p.crop(img, box, p.config.CropPadding)
	if err != nil {
		p.logger.Warn("crop preprocessing failed", zap.Int("plate", index), zap.Stringer("box", box), zap.Error(err))
		p.metrics.OCRFailure()
		return nil
	}
	results, err := p.engine.Read(ctx, crop)
	if err != nil {
		p.logger.Warn("ocr failed", zap.Int("plate", index), zap.Stringer("box", box), zap.Error(err))
		p.metrics.OCRFailure()
		return nil
	}
	return results
}
