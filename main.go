// Command go-lpr reads Bangladeshi license plates from a video or an image.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/config"
	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/images/cv"
	"github.com/nvr-ai/go-lpr/inference/detectors"
	"github.com/nvr-ai/go-lpr/logging"
	"github.com/nvr-ai/go-lpr/ocr/tesseract"
	"github.com/nvr-ai/go-lpr/pipeline"
	"github.com/nvr-ai/go-lpr/video"
)

const (
	flagVideo     = "video"
	flagImage     = "image"
	flagConfig    = "config"
	flagOutput    = "output"
	flagModel     = "model"
	flagLibrary   = "onnxruntime-lib"
	flagLanguages = "lang"
	flagDebug     = "debug"
)

// Supported file extensions
var (
	supportedVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
	supportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
)

func main() {
	app := &cli.App{
		Name:  "go-lpr",
		Usage: "read license plates from a video or an image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagVideo, Usage: "path to a video `FILE` (" + strings.Join(supportedVideoExtensions, ", ") + ")"},
			&cli.StringFlag{Name: flagImage, Usage: "path to an image `FILE` (" + strings.Join(supportedImageExtensions, ", ") + ")"},
			&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Usage: "annotated output `FILE`"},
			&cli.StringFlag{Name: flagModel, Usage: "plate detector ONNX model, overrides the configuration"},
			&cli.StringFlag{Name: flagLibrary, Usage: "onnxruntime shared library, overrides the configuration"},
			&cli.StringFlag{Name: flagLanguages, Usage: "tesseract languages joined by '+', e.g. ben+eng"},
			&cli.BoolFlag{Name: flagDebug, Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	videoPath, imagePath := c.String(flagVideo), c.String(flagImage)
	if err := validateInput(videoPath, imagePath); err != nil {
		return err
	}

	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return err
	}
	if v := c.String(flagModel); v != "" {
		cfg.Detector.ModelPath = v
	}
	if v := c.String(flagLibrary); v != "" {
		cfg.Detector.LibraryPath = v
	}
	if v := c.String(flagLanguages); v != "" {
		cfg.OCR.Languages = strings.Split(v, "+")
	}
	if c.Bool(flagDebug) {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	detector, err := detectors.NewONNXDetector(cfg.Detector)
	if err != nil {
		return err
	}
	defer detector.Close()

	engine, err := tesseract.New(cfg.OCR)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg.Thresholds, detector, engine,
		pipeline.WithLogger(logger),
		pipeline.WithPreprocessor(cv.NewEnhancer(cfg.Thresholds.Enhance)))
	if videoPath != "" {
		return processVideo(ctx, p, videoPath, outputPath(c.String(flagOutput), videoPath, ".mp4"), logger)
	}
	return processImage(ctx, p, imagePath, outputPath(c.String(flagOutput), imagePath, ".jpg"))
}

// validateInput requires exactly one of the two inputs with a known extension.
func validateInput(videoPath, imagePath string) error {
	switch {
	case videoPath != "" && imagePath != "":
		return errors.New("cannot specify both -video and -image")
	case videoPath != "":
		return checkExtension(videoPath, supportedVideoExtensions)
	case imagePath != "":
		return checkExtension(imagePath, supportedImageExtensions)
	default:
		return errors.New("one of -video or -image is required")
	}
}

func checkExtension(path string, supported []string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(supported, ext) {
		return errors.Errorf("unsupported file format %q, supported: %s", ext, strings.Join(supported, ", "))
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "cannot read %s", path)
	}
	return nil
}

// outputPath returns explicit or "<name>_annotated<ext>" next to the input.
func outputPath(explicit, input, ext string) string {
	if explicit != "" {
		return explicit
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "_annotated" + ext
}

func processVideo(ctx context.Context, p *pipeline.Pipeline, input, output string, logger *zap.Logger) error {
	fmt.Printf("🎥 Processing video: %s\n", input)

	result, err := p.ProcessVideo(ctx, video.FileOpener(input), video.FileSinkFactory(output))
	if err != nil {
		return err
	}
	logger.Info("video processed", zap.Int("frames", result.Frames), zap.Int("plates", result.Count))

	fmt.Printf("\n✅ %d frames, %d vehicles with a plate\n", result.Frames, result.Count)
	fmt.Printf("%-8s %-16s %s\n", "CAR", "PLATE", "AVRO")
	for _, v := range result.Vehicles {
		fmt.Printf("%-8d %-16s %s\n", v.ID, v.Plate, v.Avro)
	}
	fmt.Printf("💾 Annotated video: %s\n", output)
	return nil
}

func processImage(ctx context.Context, p *pipeline.Pipeline, input, output string) error {
	fmt.Printf("🖼️  Processing image: %s\n", input)

	data, err := os.ReadFile(input)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", input)
	}
	img, _, err := images.Decode(data)
	if err != nil {
		return err
	}

	result, err := p.ProcessImage(ctx, img)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", output)
	}
	defer f.Close()
	if err := images.EncodeJPEG(f, result.Annotated, 90); err != nil {
		return err
	}

	fmt.Printf("\n✅ %d plates\n", len(result.Plates))
	fmt.Printf("%-24s %-16s %-16s %s\n", "BOX", "PLATE", "AVRO", "CONF")
	for _, pl := range result.Plates {
		fmt.Printf("%-24s %-16s %-16s %.2f\n", pl.Box, pl.Text, pl.Avro, pl.Confidence)
	}
	fmt.Printf("💾 Annotated image: %s\n", output)
	return nil
}
