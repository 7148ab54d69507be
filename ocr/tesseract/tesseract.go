// Package tesseract is an ocr.Engine backed by Tesseract through gosseract.
// It needs libtesseract and the ben and eng traineddata at runtime.
package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-lpr/ocr"
)

// Engine wraps a gosseract client. The client is not safe for concurrent
// use, so reads are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates the Tesseract client.
//
// Arguments:
//   - cfg: The client configuration.
//
// Returns:
//   - *Engine: The engine. The caller must Close it.
//   - error: An error if the languages or modes cannot be set.
func New(cfg ocr.Config) (*Engine, error) {
	client := gosseract.NewClient()

	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to set OCR language")
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to set OCR whitelist")
		}
	}
	mode := gosseract.PSM_AUTO
	if cfg.SingleLine {
		mode = gosseract.PSM_SINGLE_LINE
	}
	if err := client.SetPageSegMode(mode); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to set page segmentation mode")
	}

	return &Engine{client: client}, nil
}

// Read recognizes the words in img.
func (e *Engine) Read(ctx context.Context, img image.Image) ([]ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode crop")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil, errors.New("ocr engine is closed")
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "failed to set OCR image")
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read words")
	}

	results := make([]ocr.Result, 0, len(boxes))
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		results = append(results, ocr.Result{
			Region:     b.Box,
			Text:       b.Word,
			Confidence: float32(b.Confidence / 100),
		})
	}
	return results, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return errors.Wrap(err, "failed to close OCR client")
}
