package pipeline

import (
	"context"
	"image"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/inference/detectors"
	"github.com/nvr-ai/go-lpr/ocr"
)

// step is the scripted output of one detector or OCR call.
type step[T any] struct {
	out T
	err error
}

// fakeDetector returns one scripted step per call and nothing once exhausted.
type fakeDetector struct {
	mu    sync.Mutex
	steps []step[[]detectors.Detection]
	calls int
}

func (d *fakeDetector) Detect(_ context.Context, _ image.Image, _ float32) ([]detectors.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i >= len(d.steps) {
		return nil, nil
	}
	return d.steps[i].out, d.steps[i].err
}

type fakeEngine struct {
	mu    sync.Mutex
	steps []step[[]ocr.Result]
	calls int
}

func (e *fakeEngine) Read(_ context.Context, _ image.Image) ([]ocr.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if i >= len(e.steps) {
		return nil, nil
	}
	return e.steps[i].out, e.steps[i].err
}

type fakeSource struct {
	frames  []image.Image
	readErr error // returned after the frames instead of io.EOF
	fps     float64
	size    image.Point
	next    int
	closed  int
}

func (s *fakeSource) Next() (image.Image, error) {
	if s.next >= len(s.frames) {
		if s.readErr != nil {
			return nil, s.readErr
		}
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *fakeSource) FPS() float64      { return s.fps }
func (s *fakeSource) Size() image.Point { return s.size }
func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

type fakeSink struct {
	written  []image.Image
	writeErr error
	closed   int
	fps      float64
	size     image.Point
}

func (s *fakeSink) Write(img image.Image) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, img)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

func openerFor(src *fakeSource) SourceOpener {
	return func(context.Context) (Source, error) { return src, nil }
}

func factoryFor(sink *fakeSink) SinkFactory {
	return func(_ context.Context, fps float64, size image.Point) (Sink, error) {
		sink.fps, sink.size = fps, size
		return sink, nil
	}
}

func failingOpener(err error) SourceOpener {
	return func(context.Context) (Source, error) { return nil, err }
}

var errBoom = errors.New("boom")

func frames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewRGBA(image.Rect(0, 0, 640, 480))
	}
	return out
}

func detection(x1, y1, x2, y2 int) []detectors.Detection {
	return []detectors.Detection{{Box: images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: 0.9}}
}

func reading(text string, conf float32) []ocr.Result {
	return []ocr.Result{{Region: image.Rect(0, 0, 100, 30), Text: text, Confidence: conf}}
}

// recordingPreprocessor returns crops unchanged and remembers their sizes.
type recordingPreprocessor struct {
	mu    sync.Mutex
	sizes []image.Point
	err   error
}

func (r *recordingPreprocessor) Preprocess(crop image.Image) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, crop.Bounds().Size())
	if r.err != nil {
		return nil, r.err
	}
	return crop, nil
}
