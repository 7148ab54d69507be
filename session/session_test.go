package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/plate"
	"github.com/nvr-ai/go-lpr/tracking"
)

func TestFinalizeSingleVehicle(t *testing.T) {
	s := New(tracking.DefaultIoUThreshold, plate.DefaultMinPlateLength)

	id := s.Observe(images.Rect{X1: 10, Y1: 10, X2: 50, Y2: 50})
	s.Record(id, plate.Reading{Text: "XY999", Confidence: 0.95})
	id2 := s.Observe(images.Rect{X1: 12, Y1: 11, X2: 52, Y2: 51})
	s.Record(id2, plate.Reading{Text: "XY9999", Confidence: 0.9})

	require.Equal(t, id, id2)
	assert.Equal(t, []Result{{ID: 1, Plate: "XY9999", Hits: 2}}, s.Finalize())
}

func TestFinalizeOrdersByID(t *testing.T) {
	s := New(tracking.DefaultIoUThreshold, plate.DefaultMinPlateLength)
	a := s.Observe(images.Rect{X1: 0, Y1: 0, X2: 40, Y2: 20})
	b := s.Observe(images.Rect{X1: 200, Y1: 0, X2: 240, Y2: 20})

	s.Record(b, plate.Reading{Text: "BBB222", Confidence: 0.8})
	s.Record(a, plate.Reading{Text: "AAA111", Confidence: 0.8})

	assert.Equal(t, []Result{{ID: 1, Plate: "AAA111", Hits: 1}, {ID: 2, Plate: "BBB222", Hits: 1}}, s.Finalize())
}

func TestFinalizeSkipsVehiclesWithoutReadings(t *testing.T) {
	s := New(tracking.DefaultIoUThreshold, plate.DefaultMinPlateLength)
	s.Observe(images.Rect{X1: 0, Y1: 0, X2: 40, Y2: 20})
	b := s.Observe(images.Rect{X1: 200, Y1: 0, X2: 240, Y2: 20})
	s.Record(b, plate.Reading{Text: "AB12", Confidence: 0.5})

	assert.Equal(t, 2, s.Vehicles())
	assert.Equal(t, []Result{{ID: 2, Plate: "AB12", Hits: 1}}, s.Finalize(), "short plates are kept when nothing better exists")
}

func TestFinalizeEmpty(t *testing.T) {
	s := New(tracking.DefaultIoUThreshold, plate.DefaultMinPlateLength)
	assert.Empty(t, s.Finalize())
}

func TestCurrentTracksBestSoFar(t *testing.T) {
	s := New(tracking.DefaultIoUThreshold, plate.DefaultMinPlateLength)
	id := s.Observe(images.Rect{X1: 0, Y1: 0, X2: 40, Y2: 20})

	_, ok := s.Current(id)
	assert.False(t, ok)

	s.Record(id, plate.Reading{Text: "AB12", Confidence: 0.9})
	cur, _ := s.Current(id)
	assert.Equal(t, "AB12", cur)

	s.Record(id, plate.Reading{Text: "AB1234", Confidence: 0.4})
	cur, _ = s.Current(id)
	assert.Equal(t, "AB1234", cur)
	assert.Equal(t, 2, s.Readings(id))
}
