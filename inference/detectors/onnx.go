package detectors

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/inference"
	"github.com/nvr-ai/go-lpr/models/postprocess"
)

// ONNXDetector runs a YOLO plate model through onnxruntime. The session
// tensors are shared, so calls to Detect are serialized.
type ONNXDetector struct {
	mu      sync.Mutex
	session *inference.Session
	config  Config
}

// NewONNXDetector loads the model and prepares the session.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *ONNXDetector: The detector. The caller must Close it.
//   - error: An error if the configuration is invalid or the model fails to load.
func NewONNXDetector(config Config) (*ONNXDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}

	size := int64(config.InputSize)
	session, err := inference.NewSession(inference.SessionConfig{
		ModelPath:   config.ModelPath,
		LibraryPath: config.LibraryPath,
		InputName:   config.InputName,
		OutputName:  config.OutputName,
		InputShape:  []int64{1, 3, size, size},
		OutputShape: []int64{1, int64(4 + config.Classes), int64(config.Anchors)},
		Provider:    config.Provider,
	})
	if err != nil {
		return nil, err
	}

	return &ONNXDetector{session: session, config: config}, nil
}

// Detect runs inference on img and returns the plates after NMS, highest
// confidence first.
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, threshold float32) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}

	if err := inference.PrepareInput(img, d.config.InputSize, d.session.Input()); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := d.session.Run(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	boxes, err := inference.DecodeOutput(d.session.Output(), inference.OutputLayout{
		Anchors:   d.config.Anchors,
		Classes:   d.config.Classes,
		InputSize: d.config.InputSize,
	}, b.Dx(), b.Dy(), threshold)
	if err != nil {
		return nil, err
	}

	return Suppress(boxes, b.Min, d.config.NMSThreshold), nil
}

// Suppress applies NMS to decoded boxes and shifts them by origin into the
// coordinate space of the source image.
func Suppress(boxes []inference.BoundingBox, origin image.Point, nmsThreshold float32) []Detection {
	results := make([]postprocess.Result, 0, len(boxes))
	for _, b := range boxes {
		results = append(results, postprocess.Result{Box: b.ToRect(), Score: b.Confidence, Class: b.Class})
	}

	kept := postprocess.ApplyGreedyNMS(results, postprocess.NMSConfig{IoUThreshold: nmsThreshold})

	detections := make([]Detection, 0, len(kept))
	for _, r := range kept {
		detections = append(detections, Detection{
			Box: images.Rect{
				X1: r.Box.X1 + origin.X,
				Y1: r.Box.Y1 + origin.Y,
				X2: r.Box.X2 + origin.X,
				Y2: r.Box.Y2 + origin.Y,
			},
			Confidence: r.Score,
		})
	}
	return detections
}

// Close releases the onnxruntime session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}
