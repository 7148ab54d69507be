// Package ocr defines the text recognition boundary used by the plate
// pipeline.
package ocr

import (
	"context"
	"image"
	"sort"
	"strings"

	"github.com/nvr-ai/go-lpr/plate"
)

// Config configures a Tesseract engine. It lives here so that configuration
// code does not link against libtesseract.
type Config struct {
	// Languages are traineddata names, e.g. ben and eng.
	Languages []string `json:"languages" yaml:"languages"`
	// Whitelist restricts recognized characters. Empty allows all.
	Whitelist string `json:"whitelist" yaml:"whitelist"`
	// SingleLine treats each crop as one text line instead of a block.
	SingleLine bool `json:"single_line" yaml:"single_line"`
}

// DefaultConfig reads Bangla and Latin text, one line per crop, restricted
// to the plate alphabet.
func DefaultConfig() Config {
	return Config{
		Languages:  []string{"ben", "eng"},
		Whitelist:  plate.Alphabet,
		SingleLine: true,
	}
}

// Result is one recognized text fragment.
type Result struct {
	// Region is the fragment box inside the image handed to the engine.
	Region image.Rectangle `json:"region"`
	// Text is the raw recognized text.
	Text string `json:"text"`
	// Confidence is in [0, 1].
	Confidence float32 `json:"confidence"`
}

// Engine recognizes text in a preprocessed plate crop.
type Engine interface {
	Read(ctx context.Context, img image.Image) ([]Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, img image.Image) ([]Result, error)

// Read calls f.
func (f EngineFunc) Read(ctx context.Context, img image.Image) ([]Result, error) {
	return f(ctx, img)
}

// Candidates converts engine output into scoring candidates, preserving order.
func Candidates(results []Result) []plate.Candidate {
	out := make([]plate.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, plate.Candidate{Text: r.Text, Confidence: r.Confidence})
	}
	return out
}

// Join concatenates all fragments in reading order, top to bottom and then
// left to right, and returns the joined raw text with the mean confidence.
// Two-row plates read as one string this way.
func Join(results []Result) (string, float32) {
	if len(results) == 0 {
		return "", 0
	}

	ordered := make([]Result, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Region, ordered[j].Region
		if !sameLine(a, b) {
			return a.Min.Y < b.Min.Y
		}
		return a.Min.X < b.Min.X
	})

	var (
		sb    strings.Builder
		total float32
	)
	for _, r := range ordered {
		sb.WriteString(r.Text)
		total += r.Confidence
	}
	return sb.String(), total / float32(len(ordered))
}

// sameLine reports whether two regions overlap vertically by at least half
// the shorter height.
func sameLine(a, b image.Rectangle) bool {
	overlap := min(a.Max.Y, b.Max.Y) - max(a.Min.Y, b.Min.Y)
	shorter := min(a.Dy(), b.Dy())
	return shorter > 0 && overlap*2 >= shorter
}
