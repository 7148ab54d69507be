package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nvr-ai/go-lpr/images"
)

func TestApplyGreedyNMS(t *testing.T) {
	detections := []Result{
		{Box: images.Rect{X1: 12, Y1: 11, X2: 52, Y2: 51}, Score: 0.7},
		{Box: images.Rect{X1: 10, Y1: 10, X2: 50, Y2: 50}, Score: 0.9},
		{Box: images.Rect{X1: 200, Y1: 200, X2: 240, Y2: 220}, Score: 0.6},
	}

	got := ApplyGreedyNMS(detections, NMSConfig{IoUThreshold: 0.7})

	assert.Equal(t, []Result{
		{Box: images.Rect{X1: 10, Y1: 10, X2: 50, Y2: 50}, Score: 0.9},
		{Box: images.Rect{X1: 200, Y1: 200, X2: 240, Y2: 220}, Score: 0.6},
	}, got)
	assert.Equal(t, float32(0.7), detections[0].Score, "input is not reordered")
}

func TestApplyGreedyNMSClassAware(t *testing.T) {
	box := images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	detections := []Result{
		{Box: box, Score: 0.9, Class: 0},
		{Box: box, Score: 0.8, Class: 1},
		{Box: box, Score: 0.7, Class: 0},
	}

	assert.Len(t, ApplyGreedyNMS(detections, NMSConfig{IoUThreshold: 0.5, ClassAware: true}), 2)
	assert.Len(t, ApplyGreedyNMS(detections, NMSConfig{IoUThreshold: 0.5}), 1)
}

func TestApplyGreedyNMSEmpty(t *testing.T) {
	assert.Nil(t, ApplyGreedyNMS(nil, NMSConfig{IoUThreshold: 0.5}))
}
