package inference

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-lpr/images"
)

// BoundingBox is a decoded detection in original image coordinates, before
// rounding to pixels.
type BoundingBox struct {
	Class          int
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("class %d (confidence %f): (%f, %f), (%f, %f)",
		b.Class, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// ToRect rounds the box to whole pixels.
func (b BoundingBox) ToRect() images.Rect {
	return images.Rect{
		X1: int(math32.Round(b.X1)),
		Y1: int(math32.Round(b.Y1)),
		X2: int(math32.Round(b.X2)),
		Y2: int(math32.Round(b.Y2)),
	}
}

// OutputLayout describes a YOLOv8 style output of shape [1, 4+classes, anchors].
type OutputLayout struct {
	Anchors   int
	Classes   int
	InputSize int
}

// DecodeOutput turns a raw YOLOv8 output into boxes above threshold. Each
// anchor column holds cx, cy, w, h in input pixels followed by one score per
// class; the best class is kept. Coordinates are scaled back to a
// width x height image.
//
// Arguments:
//   - output: The flat output tensor.
//   - layout: The output dimensions.
//   - width, height: The original image size.
//   - threshold: The minimum class score.
//
// Returns:
//   - []BoundingBox: Boxes in anchor order.
//   - error: An error if output does not match layout.
func DecodeOutput(output []float32, layout OutputLayout, width, height int, threshold float32) ([]BoundingBox, error) {
	rows := 4 + layout.Classes
	if layout.Anchors <= 0 || layout.Classes <= 0 || len(output) < rows*layout.Anchors {
		return nil, errors.Errorf("output holds %d floats, layout needs %d x %d", len(output), rows, layout.Anchors)
	}

	t := tensor.New(
		tensor.WithShape(rows, layout.Anchors),
		tensor.WithBacking(output[:rows*layout.Anchors]),
	)
	at := func(row, col int) float32 {
		v, err := t.At(row, col)
		if err != nil {
			return 0
		}
		return v.(float32)
	}

	sx := float32(width) / float32(layout.InputSize)
	sy := float32(height) / float32(layout.InputSize)

	boxes := make([]BoundingBox, 0, 16)
	for a := 0; a < layout.Anchors; a++ {
		class, score := 0, float32(-math32.MaxFloat32)
		for c := 0; c < layout.Classes; c++ {
			if s := at(4+c, a); s > score {
				class, score = c, s
			}
		}
		if score < threshold {
			continue
		}

		cx, cy := at(0, a), at(1, a)
		w, h := at(2, a), at(3, a)
		boxes = append(boxes, BoundingBox{
			Class:      class,
			Confidence: score,
			X1:         math32.Max(0, (cx-w/2)*sx),
			Y1:         math32.Max(0, (cy-h/2)*sy),
			X2:         math32.Min(float32(width), (cx+w/2)*sx),
			Y2:         math32.Min(float32(height), (cy+h/2)*sy),
		})
	}

	return boxes, nil
}
