package inference

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareInputPlanarLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{255, 0, 51, 255}}, image.Point{}, draw.Src)

	const size = 16
	dst := make([]float32, 3*size*size)
	require.NoError(t, PrepareInput(img, size, dst))

	for i := 0; i < size*size; i++ {
		assert.InDelta(t, 1.0, dst[i], 0.01)
		assert.InDelta(t, 0.0, dst[size*size+i], 0.01)
		assert.InDelta(t, 0.2, dst[2*size*size+i], 0.01)
	}
}

func TestPrepareInputOffsetImage(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 40, 40))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	sub := frame.SubImage(image.Rect(10, 10, 30, 30))

	dst := make([]float32, 3*8*8)
	require.NoError(t, PrepareInput(sub, 8, dst))
	assert.InDelta(t, 1.0, dst[len(dst)-1], 0.01)
}

func TestPrepareInputRejectsSmallBuffer(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	err := PrepareInput(img, 16, make([]float32, 10))
	assert.Error(t, err)
}
