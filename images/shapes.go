// Package images - Geometry, crop enhancement and annotation helpers for plate frames.
package images

import (
	"fmt"
	"image"
)

// Rect is a lightweight bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// FromRectangle converts an image.Rectangle into a Rect.
func FromRectangle(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rectangle returns r as an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Dx returns the width of r.
func (r Rect) Dx() int {
	return r.X2 - r.X1
}

// Dy returns the height of r.
func (r Rect) Dy() int {
	return r.Y2 - r.Y1
}

// Area returns the area of r in pixels, or 0 for a degenerate box.
func (r Rect) Area() int {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return 0
	}
	return r.Dx() * r.Dy()
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// The intersection corner is the max of the top-left corners and the min of
// the bottom-right corners. A non-positive intersection width or height means
// the boxes do not overlap and 0 is returned before any division happens.
// The union follows inclusion-exclusion: area(r) + area(o) - intersection.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: A value in [0, 1]. 1 for identical positive-area boxes.
//
// @example
// a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
// b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
// iou := CalculateIoU(a, b) // 25 / 175 ≈ 0.142857
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return float32(interArea) / float32(unionArea)
}

// ClampRect clamps r to the frame bounds [0,width) x [0,height).
//
// Arguments:
//   - r: The box to clamp, possibly extending past the frame.
//   - width: The frame width in pixels.
//   - height: The frame height in pixels.
//
// Returns:
//   - Rect: A box with 0 <= X1 <= X2 <= width and 0 <= Y1 <= Y2 <= height.
func ClampRect(r Rect, width, height int) Rect {
	c := Rect{
		X1: clampInt(r.X1, 0, width),
		Y1: clampInt(r.Y1, 0, height),
		X2: clampInt(r.X2, 0, width),
		Y2: clampInt(r.Y2, 0, height),
	}
	if c.X2 < c.X1 {
		c.X2 = c.X1
	}
	if c.Y2 < c.Y1 {
		c.Y2 = c.Y1
	}
	return c
}

// ClampToBounds clamps r into b, which may have a non-zero origin.
func ClampToBounds(r Rect, b image.Rectangle) Rect {
	c := ClampRect(Rect{
		X1: r.X1 - b.Min.X,
		Y1: r.Y1 - b.Min.Y,
		X2: r.X2 - b.Min.X,
		Y2: r.Y2 - b.Min.Y,
	}, b.Dx(), b.Dy())
	return Rect{X1: c.X1 + b.Min.X, Y1: c.Y1 + b.Min.Y, X2: c.X2 + b.Min.X, Y2: c.Y2 + b.Min.Y}
}

// Pad grows r by n pixels on every side. Callers clamp afterwards.
func Pad(r Rect, n int) Rect {
	return Rect{X1: r.X1 - n, Y1: r.Y1 - n, X2: r.X2 + n, Y2: r.Y2 + n}
}

// IsDegenerate reports whether either side of r is shorter than minSize.
func IsDegenerate(r Rect, minSize int) bool {
	return r.Dx() < minSize || r.Dy() < minSize
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
