package images

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont *truetype.Font

// init parses the embedded font used for labels.
func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

var (
	// BoxColor is the outline color for plate boxes.
	BoxColor = color.RGBA{0, 255, 0, 255}
	// LabelColor is the text color for plate labels.
	LabelColor = color.RGBA{255, 255, 0, 255}
)

// Annotation is a box with a caption drawn above it.
type Annotation struct {
	Box   Rect
	Label string
}

// Annotate draws every annotation onto a copy of img. The source image is
// not modified.
//
// Arguments:
//   - img: The frame to annotate.
//   - annotations: Boxes and captions to draw.
//
// Returns:
//   - image.Image: The annotated copy, same size as img.
func Annotate(img image.Image, annotations []Annotation) image.Image {
	dc := gg.NewContextForImage(img)
	origin := img.Bounds().Min
	face := truetype.NewFace(labelFont, &truetype.Options{Size: 14})
	dc.SetFontFace(face)

	for _, a := range annotations {
		x := float64(a.Box.X1 - origin.X)
		y := float64(a.Box.Y1 - origin.Y)

		dc.SetColor(BoxColor)
		dc.SetLineWidth(2)
		dc.DrawRectangle(x, y, float64(a.Box.Dx()), float64(a.Box.Dy()))
		dc.Stroke()

		if a.Label == "" {
			continue
		}
		ty := y - 4
		if ty < 14 {
			ty = y + float64(a.Box.Dy()) + 14
		}
		dc.SetColor(LabelColor)
		dc.DrawString(a.Label, x, ty)
	}

	return dc.Image()
}
