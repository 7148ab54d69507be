// Package pipeline runs plate detection, tracking and OCR over videos and
// still images.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/inference/detectors"
	"github.com/nvr-ai/go-lpr/metrics"
	"github.com/nvr-ai/go-lpr/ocr"
	"github.com/nvr-ai/go-lpr/plate"
	"github.com/nvr-ai/go-lpr/session"
)

// Source yields decoded frames in order.
type Source interface {
	// Next returns the next frame, or io.EOF at the end of the stream.
	Next() (image.Image, error)
	// FPS is the frame rate, 0 if unknown.
	FPS() float64
	// Size is the frame size, zero if unknown.
	Size() image.Point
	Close() error
}

// Sink receives annotated frames.
type Sink interface {
	Write(img image.Image) error
	Close() error
}

// SourceOpener opens the input of a run.
type SourceOpener func(ctx context.Context) (Source, error)

// SinkFactory creates the output of a run once the frame rate and size are known.
type SinkFactory func(ctx context.Context, fps float64, size image.Point) (Sink, error)

// Vehicle is the finalized plate of one tracked vehicle.
type Vehicle struct {
	ID    int    `json:"car_id"`
	Plate string `json:"plate"`
	Avro  string `json:"avro"`
}

// VideoResult is the outcome of ProcessVideo.
type VideoResult struct {
	Success  bool      `json:"success"`
	Vehicles []Vehicle `json:"cars"`
	// Count is the number of vehicles with a non-empty plate.
	Count int `json:"count"`
	// Frames is the number of frames read.
	Frames int `json:"frames"`
}

// Preprocessor prepares a plate crop for OCR.
type Preprocessor interface {
	Preprocess(crop image.Image) (image.Image, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(crop image.Image) (image.Image, error)

// Preprocess calls f.
func (f PreprocessorFunc) Preprocess(crop image.Image) (image.Image, error) {
	return f(crop)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPreprocessor replaces the crop preparation. The default is
// images.Enhance with Config.Enhance, which skips equalization and
// binarization; production binaries inject the OpenCV enhancer.
func WithPreprocessor(pre Preprocessor) Option {
	return func(p *Pipeline) {
		if pre != nil {
			p.preprocessor = pre
		}
	}
}

// WithMetrics records counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline wires a detector and an OCR engine into the per-frame
// detect, identify, read loop. Runs on one Pipeline must not overlap; the
// detector and engine may be shared between pipelines.
type Pipeline struct {
	config   Config
	detector detectors.Detector
	engine   ocr.Engine
	// preprocessor is shared by the video and image paths.
	preprocessor Preprocessor
	logger       *zap.Logger
	metrics      *metrics.Metrics
	state        atomic.Int32
}

// New creates a pipeline.
//
// Arguments:
//   - config: The run thresholds.
//   - detector: The plate detector.
//   - engine: The OCR engine.
//   - opts: Optional logger, metrics and crop preprocessor.
//
// Returns:
//   - *Pipeline: A pipeline in StateIdle.
//
// @example
// p := pipeline.New(pipeline.DefaultConfig(), det, engine, pipeline.WithLogger(logger))
// res, err := p.ProcessVideo(ctx, video.FileOpener("in.mp4"), video.FileSinkFactory("out.mp4"))
func New(config Config, detector detectors.Detector, engine ocr.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:   config,
		detector: detector,
		engine:   engine,
		logger:   zap.NewNop(),
	}
	p.preprocessor = PreprocessorFunc(func(crop image.Image) (image.Image, error) {
		return images.Enhance(crop, config.Enhance), nil
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports the stage of the current or last run.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.logger.Debug("pipeline state", zap.Stringer("state", s))
}

// fail moves to StateFailed and builds the failure result.
func (p *Pipeline) fail(err error) (*VideoResult, error) {
	p.setState(StateFailed)
	p.logger.Error("video processing failed", zap.Error(err))
	return &VideoResult{Success: false, Vehicles: []Vehicle{}}, err
}

// ProcessVideo reads every frame from the source, writes an annotated copy to
// the sink and returns the best plate per tracked vehicle.
//
// Detector failures skip detection for that frame, OCR failures count as an
// empty reading, and unreadable frames end the stream. Failing to open the
// source or create the sink, or ctx being done between frames, is fatal and
// yields Success=false. Source and sink are released on every path.
func (p *Pipeline) ProcessVideo(ctx context.Context, open SourceOpener, create SinkFactory) (*VideoResult, error) {
	p.setState(StateOpening)

	src, err := open(ctx)
	if err != nil {
		return p.fail(newStageError(ErrSourceUnavailable, err))
	}

	fps := src.FPS()
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = p.config.DefaultFPS
	}
	size := src.Size()
	if size.X <= 0 || size.Y <= 0 {
		size = image.Point{X: p.config.DefaultWidth, Y: p.config.DefaultHeight}
	}

	sink, err := create(ctx, fps, size)
	if err != nil {
		if cerr := src.Close(); cerr != nil {
			p.logger.Warn("failed to release source", zap.Error(cerr))
		}
		return p.fail(newStageError(ErrSinkUnavailable, err))
	}

	release := func() {
		if err := multierr.Combine(src.Close(), sink.Close()); err != nil {
			p.logger.Warn("failed to release video resources", zap.Error(err))
		}
	}

	p.setState(StateProcessing)
	p.logger.Info("processing video", zap.Float64("fps", fps), zap.Int("width", size.X), zap.Int("height", size.Y))

	sess := session.New(p.config.IoUThreshold, p.config.MinPlateLength)
	frames := 0

	for {
		if err := ctx.Err(); err != nil {
			release()
			return p.fail(newStageError(ErrCanceled, err))
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logger.Warn("frame read failed, ending stream", zap.Int("frame", frames+1), zap.Error(err))
			break
		}
		frames++

		start := time.Now()
		annotated := p.processFrame(ctx, sess, frame, frames)
		if err := sink.Write(annotated); err != nil {
			p.logger.Warn("failed to write frame", zap.Int("frame", frames), zap.Error(err))
		}
		p.metrics.FrameProcessed(time.Since(start))
	}

	p.setState(StateFinalizing)
	release()

	results := sess.Finalize()
	vehicles := make([]Vehicle, 0, len(results))
	count := 0
	for _, r := range results {
		vehicles = append(vehicles, Vehicle{ID: r.ID, Plate: r.Plate, Avro: plate.ToAvro(r.Plate)})
		if r.Plate != "" {
			count++
		}
		p.logger.Info("vehicle finalized",
			zap.Int("vehicle", r.ID),
			zap.String("plate", r.Plate),
			zap.Int("hits", r.Hits),
			zap.Int("readings", sess.Readings(r.ID)))
	}
	p.metrics.PlatesFinalizedAdd(count)

	p.setState(StateDone)
	p.logger.Info("video processed",
		zap.Int("frames", frames),
		zap.Int("vehicles", sess.Vehicles()),
		zap.Int("plates", count))

	return &VideoResult{Success: true, Vehicles: vehicles, Count: count, Frames: frames}, nil
}

// processFrame runs detection, identity and OCR on one frame and returns the
// annotated frame. It never fails: per-frame errors are logged and counted.
func (p *Pipeline) processFrame(ctx context.Context, sess *session.Session, frame image.Image, index int) image.Image {
	detections, err := p.detector.Detect(ctx, frame, p.config.DetectorConfidence)
	if err != nil {
		p.logger.Warn("detection failed, skipping frame", zap.Int("frame", index), zap.Error(err))
		p.metrics.FrameSkipped()
		return frame
	}

	bounds := frame.Bounds()
	annotations := make([]images.Annotation, 0, len(detections))

	for _, d := range detections {
		box := images.ClampToBounds(d.Box, bounds)
		if images.IsDegenerate(box, p.config.MinCropSize) {
			p.logger.Debug("degenerate crop", zap.Int("frame", index), zap.Stringer("box", box))
			p.metrics.DegenerateCrop()
			continue
		}

		id := sess.Observe(box)

		candidates := p.read(ctx, frame, box, p.config.VideoCropPadding, index)
		if reading, ok := plate.SelectCandidate(candidates, p.config.MinCandidateLength); ok {
			sess.Record(id, reading)
			p.metrics.ReadingRecorded()
			p.logger.Debug("plate reading",
				zap.Int("frame", index),
				zap.Int("vehicle", id),
				zap.String("plate", reading.Text),
				zap.Float32("confidence", reading.Confidence))
		}

		label := fmt.Sprintf("ID %d", id)
		if current, ok := sess.Current(id); ok && current != "" {
			label += ": " + plate.ToAvro(current)
		}
		annotations = append(annotations, images.Annotation{Box: box, Label: label})
	}

	return images.Annotate(frame, annotations)
}

// read crops the padded box, preprocesses it and runs OCR. Preprocessing and
// engine errors yield no candidates.
func (p *Pipeline) read(ctx context.Context, frame image.Image, box images.Rect, padding, index int) []plate.Candidate {
	crop, err := p.crop(frame, box, padding)
	if err != nil {
		p.logger.Warn("crop preprocessing failed", zap.Int("frame", index), zap.Stringer("box", box), zap.Error(err))
		p.metrics.OCRFailure()
		return nil
	}
	results, err := p.engine.Read(ctx, crop)
	if err != nil {
		p.logger.Warn("ocr failed", zap.Int("frame", index), zap.Stringer("box", box), zap.Error(err))
		p.metrics.OCRFailure()
		return nil
	}
	return ocr.Candidates(results)
}

// crop cuts the box grown by padding out of frame and prepares it for OCR.
func (p *Pipeline) crop(frame image.Image, box images.Rect, padding int) (image.Image, error) {
	padded := images.ClampToBounds(images.Pad(box, padding), frame.Bounds())
	return p.preprocessor.Preprocess(imaging.Crop(frame, padded.Rectangle()))
}
