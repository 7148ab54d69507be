package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-lpr/inference/detectors"
	"github.com/nvr-ai/go-lpr/metrics"
	"github.com/nvr-ai/go-lpr/ocr"
)

func TestProcessVideoTwoFrames(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{
		{out: detection(10, 10, 50, 50)},
		{out: detection(12, 11, 52, 51)},
	}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{
		{out: reading("XY9999", 0.8)},
		{out: reading("XY999", 0.7)},
	}}
	src := &fakeSource{frames: frames(2), fps: 25, size: image.Point{X: 640, Y: 480}}
	sink := &fakeSink{}

	p := New(DefaultConfig(), det, engine)
	res, err := p.ProcessVideo(context.Background(), openerFor(src), factoryFor(sink))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []Vehicle{{ID: 1, Plate: "XY9999", Avro: "XY9999"}}, res.Vehicles)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 2, res.Frames)
	assert.Equal(t, StateDone, p.State())

	assert.Len(t, sink.written, 2)
	assert.Equal(t, 25.0, sink.fps)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestProcessVideoZeroDetections(t *testing.T) {
	src := &fakeSource{frames: frames(3)}
	sink := &fakeSink{}

	res, err := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{}).
		ProcessVideo(context.Background(), openerFor(src), factoryFor(sink))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Vehicles)
	assert.Zero(t, res.Count)
	assert.Len(t, sink.written, 3, "frames are written even without plates")
}

func TestProcessVideoDefaultsWhenSourceReportsNothing(t *testing.T) {
	src := &fakeSource{frames: frames(1)}
	sink := &fakeSink{}

	_, err := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{}).
		ProcessVideo(context.Background(), openerFor(src), factoryFor(sink))

	require.NoError(t, err)
	assert.Equal(t, 30.0, sink.fps)
	assert.Equal(t, image.Point{X: 640, Y: 480}, sink.size)
}

func TestProcessVideoDetectorFailureSkipsFrame(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{
		{err: errBoom},
		{out: detection(10, 10, 90, 40)},
	}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{{out: reading("DHA123", 0.9)}}}
	src := &fakeSource{frames: frames(2)}
	sink := &fakeSink{}
	m := metrics.New()

	res, err := New(DefaultConfig(), det, engine, WithMetrics(m)).
		ProcessVideo(context.Background(), openerFor(src), factoryFor(sink))

	require.NoError(t, err)
	assert.Equal(t, []Vehicle{{ID: 1, Plate: "DHA123", Avro: "DHA123"}}, res.Vehicles)
	assert.Len(t, sink.written, 2)
	assert.Same(t, src.frames[0], sink.written[0], "skipped frame is written unannotated")
	assert.Equal(t, uint64(1), m.FramesSkipped.Load())
	assert.Equal(t, uint64(2), m.FramesProcessed.Load())
	assert.Equal(t, 1, engine.calls)
}

func TestProcessVideoOCRFailureIsEmptyReading(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{
		{out: detection(10, 10, 90, 40)},
		{out: detection(11, 10, 91, 40)},
	}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{
		{err: errBoom},
		{out: reading("AB", 0.9)},
	}}
	m := metrics.New()

	res, err := New(DefaultConfig(), det, engine, WithMetrics(m)).
		ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(2)}), factoryFor(&fakeSink{}))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Vehicles, "a vehicle without readings has no plate")
	assert.Equal(t, uint64(1), m.OCRFailures.Load())
	assert.Zero(t, m.Readings.Load())
}

func TestProcessVideoSkipsDegenerateCrops(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{
		{out: detection(10, 10, 13, 60)},
		{out: detection(636, 100, 700, 140)}, // clamps to 4 px wide
	}}
	engine := &fakeEngine{}
	m := metrics.New()

	res, err := New(DefaultConfig(), det, engine, WithMetrics(m)).
		ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(2)}), factoryFor(&fakeSink{}))

	require.NoError(t, err)
	assert.Empty(t, res.Vehicles)
	assert.Zero(t, engine.calls)
	assert.Equal(t, uint64(2), m.DegenerateCrops.Load())
}

func TestProcessVideoSourceFailure(t *testing.T) {
	created := false
	factory := func(context.Context, float64, image.Point) (Sink, error) {
		created = true
		return &fakeSink{}, nil
	}

	p := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{})
	res, err := p.ProcessVideo(context.Background(), failingOpener(errBoom), factory)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, res.Success)
	assert.Empty(t, res.Vehicles)
	assert.False(t, created)
	assert.Equal(t, StateFailed, p.State())
}

func TestProcessVideoSinkFailureReleasesSource(t *testing.T) {
	src := &fakeSource{frames: frames(1)}
	factory := func(context.Context, float64, image.Point) (Sink, error) {
		return nil, errBoom
	}

	res, err := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{}).
		ProcessVideo(context.Background(), openerFor(src), factory)

	assert.ErrorIs(t, err, ErrSinkUnavailable)
	assert.False(t, res.Success)
	assert.Equal(t, 1, src.closed)
	assert.Zero(t, src.next, "no frame is read")
}

func TestProcessVideoCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{frames: frames(2)}
	sink := &fakeSink{}
	p := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{})

	res, err := p.ProcessVideo(ctx, openerFor(src), factoryFor(sink))

	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, StateFailed, p.State())
}

func TestProcessVideoReadErrorEndsStream(t *testing.T) {
	src := &fakeSource{frames: frames(2), readErr: errBoom}
	sink := &fakeSink{}

	res, err := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{}).
		ProcessVideo(context.Background(), openerFor(src), factoryFor(sink))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Frames)
}

func TestProcessVideoWriteErrorContinues(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{
		{out: detection(10, 10, 90, 40)},
		{out: detection(10, 10, 90, 40)},
	}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{
		{out: reading("AB1234", 0.5)},
		{out: reading("AB12345", 0.5)},
	}}
	sink := &fakeSink{writeErr: errBoom}

	res, err := New(DefaultConfig(), det, engine).
		ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(2)}), factoryFor(sink))

	require.NoError(t, err)
	assert.Equal(t, []Vehicle{{ID: 1, Plate: "AB12345", Avro: "AB12345"}}, res.Vehicles)
	assert.Equal(t, 1, sink.closed)
}

func TestProcessVideoSeparateVehicles(t *testing.T) {
	two := append(detection(10, 10, 90, 40), detection(300, 200, 380, 230)...)
	det := &fakeDetector{steps: []step[[]detectors.Detection]{{out: two}}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{
		{out: reading("ঢাকা-১২৩৪৫৬", 0.9)},
		{out: reading("CHA-987654", 0.8)},
	}}

	res, err := New(DefaultConfig(), det, engine).
		ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(1)}), factoryFor(&fakeSink{}))

	require.NoError(t, err)
	assert.Equal(t, []Vehicle{
		{ID: 1, Plate: "১২৩৪৫৬", Avro: "123456"},
		{ID: 2, Plate: "CHA987654", Avro: "CHA987654"},
	}, res.Vehicles)
	assert.Equal(t, 2, res.Count)
}

func TestProcessImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	det := &fakeDetector{steps: []step[[]detectors.Detection]{{out: []detectors.Detection{
		{Box: detection(20, 20, 140, 80)[0].Box, Confidence: 0.9},
		{Box: detection(200, 200, 202, 230)[0].Box, Confidence: 0.8},
	}}}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{{out: []ocr.Result{
		{Region: image.Rect(0, 40, 60, 70), Text: "গ-১২", Confidence: 0.6},
		{Region: image.Rect(0, 0, 100, 30), Text: "ঢাকা মেট্রো", Confidence: 0.8},
		{Region: image.Rect(70, 40, 160, 70), Text: "৩৪৫৬", Confidence: 0.7},
	}}}}

	res, err := New(DefaultConfig(), det, engine).ProcessImage(context.Background(), img)

	require.NoError(t, err)
	require.Len(t, res.Plates, 1, "degenerate box is skipped")
	pt := res.Plates[0]
	assert.Equal(t, "১২৩৪৫৬", pt.Text)
	assert.Equal(t, "123456", pt.Avro)
	assert.Equal(t, "ঢাকা মেট্রোগ-১২৩৪৫৬", pt.Raw)
	assert.InDelta(t, 0.7, pt.Confidence, 1e-6)
	assert.Equal(t, img.Bounds(), res.Annotated.Bounds())
}

func TestProcessImageDetectorFailure(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{{err: errBoom}}}
	_, err := New(DefaultConfig(), det, &fakeEngine{}).ProcessImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
}

func TestProcessImageOCRFailure(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{{out: detection(20, 20, 140, 80)}}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{{err: errBoom}}}

	res, err := New(DefaultConfig(), det, engine).ProcessImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 320, 240)))
	require.NoError(t, err)
	require.Len(t, res.Plates, 1)
	assert.Empty(t, res.Plates[0].Text)
}

func TestProcessImageNil(t *testing.T) {
	_, err := New(DefaultConfig(), &fakeDetector{}, &fakeEngine{}).ProcessImage(context.Background(), nil)
	assert.Error(t, err)
}

func TestProcessVideoCropsTheClampedBox(t *testing.T) {
	tests := []struct {
		name     string
		padding  int
		expected image.Point
	}{
		{"no padding by default", 0, image.Point{X: 40, Y: 40}},
		{"configured padding", 2, image.Point{X: 44, Y: 44}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{steps: []step[[]detectors.Detection]{{out: detection(10, 10, 50, 50)}}}
			pre := &recordingPreprocessor{}
			cfg := DefaultConfig()
			cfg.VideoCropPadding = tt.padding

			_, err := New(cfg, det, &fakeEngine{}, WithPreprocessor(pre)).
				ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(1)}), factoryFor(&fakeSink{}))

			require.NoError(t, err)
			assert.Equal(t, []image.Point{tt.expected}, pre.sizes)
		})
	}
}

func TestProcessImageCropIsPadded(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{{out: detection(10, 10, 90, 40)}}}
	pre := &recordingPreprocessor{}

	_, err := New(DefaultConfig(), det, &fakeEngine{}, WithPreprocessor(pre)).
		ProcessImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 320, 240)))

	require.NoError(t, err)
	assert.Equal(t, []image.Point{{X: 86, Y: 36}}, pre.sizes, "3 px on every side")
}

func TestPreprocessorFailureIsEmptyReading(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{{out: detection(10, 10, 90, 40)}}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{{out: reading("DHA123", 0.9)}}}
	m := metrics.New()

	res, err := New(DefaultConfig(), det, engine, WithMetrics(m), WithPreprocessor(&recordingPreprocessor{err: errBoom})).
		ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(1)}), factoryFor(&fakeSink{}))

	require.NoError(t, err)
	assert.Empty(t, res.Vehicles)
	assert.Zero(t, engine.calls, "engine is not called without a crop")
	assert.Equal(t, uint64(1), m.OCRFailures.Load())
}

func TestProcessVideoLogsHitsPerVehicle(t *testing.T) {
	det := &fakeDetector{steps: []step[[]detectors.Detection]{
		{out: detection(10, 10, 50, 50)},
		{out: detection(12, 11, 52, 51)},
		{out: detection(12, 11, 52, 51)},
	}}
	engine := &fakeEngine{steps: []step[[]ocr.Result]{{out: reading("XY9999", 0.8)}}}
	core, logs := observer.New(zap.InfoLevel)

	_, err := New(DefaultConfig(), det, engine, WithLogger(zap.New(core))).
		ProcessVideo(context.Background(), openerFor(&fakeSource{frames: frames(3)}), factoryFor(&fakeSink{}))
	require.NoError(t, err)

	finalized := logs.FilterMessage("vehicle finalized").All()
	require.Len(t, finalized, 1)
	fields := finalized[0].ContextMap()
	assert.Equal(t, int64(1), fields["vehicle"])
	assert.Equal(t, int64(3), fields["hits"])
	assert.Equal(t, int64(1), fields["readings"])
}
