// Command server runs the plate reading HTTP API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/config"
	"github.com/nvr-ai/go-lpr/images/cv"
	"github.com/nvr-ai/go-lpr/inference/detectors"
	"github.com/nvr-ai/go-lpr/logging"
	"github.com/nvr-ai/go-lpr/metrics"
	"github.com/nvr-ai/go-lpr/ocr/tesseract"
	"github.com/nvr-ai/go-lpr/pipeline"
	"github.com/nvr-ai/go-lpr/server"
	"github.com/nvr-ai/go-lpr/store"
	"github.com/nvr-ai/go-lpr/video"
)

// shutdownTimeout bounds draining of in-flight requests and jobs.
const shutdownTimeout = 30 * time.Second

func main() {
	app := &cli.App{
		Name:  "lpr-server",
		Usage: "serve the plate reading HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "load environment overrides from `FILE`, defaults to ./.env",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := run(cfg, logger); err != nil {
				logger.Error("server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

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

	jobs, err := store.New(store.Options{
		TTL:           cfg.Server.ResultTTL,
		SweepInterval: cfg.Server.SweepInterval,
		Logger:        logger.Named("store"),
		OnEvict:       server.RemoveJobFiles(logger),
	})
	if err != nil {
		return err
	}
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Close()

	m := metrics.New()
	enhancer := cv.NewEnhancer(cfg.Thresholds.Enhance)
	srv, err := server.New(server.Options{
		Config: cfg.Server,
		Store:  jobs,
		NewPipeline: func() *pipeline.Pipeline {
			return pipeline.New(cfg.Thresholds, detector, engine,
				pipeline.WithLogger(logger.Named("pipeline")),
				pipeline.WithMetrics(m),
				pipeline.WithPreprocessor(enhancer))
		},
		OpenVideo:   video.FileOpener,
		CreateVideo: video.FileSinkFactory,
		Metrics:     m,
		Logger:      logger.Named("http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs canceled at shutdown", zap.Error(err))
	}
	return nil
}
