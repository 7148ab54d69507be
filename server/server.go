// Package server exposes the plate pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/config"
	"github.com/nvr-ai/go-lpr/metrics"
	"github.com/nvr-ai/go-lpr/pipeline"
	"github.com/nvr-ai/go-lpr/store"
)

// Options wires the server to its collaborators.
type Options struct {
	Config config.ServerConfig
	Store  *store.Store
	// NewPipeline builds the pipeline for one job. Detector and OCR engine
	// may be shared; the pipeline itself is not.
	NewPipeline func() *pipeline.Pipeline
	// OpenVideo and CreateVideo map file paths to pipeline sources and sinks.
	OpenVideo   func(path string) pipeline.SourceOpener
	CreateVideo func(path string) pipeline.SinkFactory
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Server handles uploads and serves results.
type Server struct {
	opts    Options
	logger  *zap.Logger
	workers *Workers
	engine  *gin.Engine
}

// New creates the server and its data directory.
//
// Arguments:
//   - opts: The collaborators. Store, NewPipeline, OpenVideo and CreateVideo are required.
//
// Returns:
//   - *Server: The server. Call Shutdown to drain running jobs.
//   - error: An error if a collaborator is missing or the data directory cannot be created.
func New(opts Options) (*Server, error) {
	if opts.Store == nil || opts.NewPipeline == nil || opts.OpenVideo == nil || opts.CreateVideo == nil {
		return nil, errors.New("server needs a store, a pipeline factory and video I/O")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(opts.Config.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data dir %s", opts.Config.DataDir)
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		workers: NewWorkers(opts.Config.Workers),
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = 32 << 20

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.POST("/detect-plate", s.limitUploads(), s.detectPlate)
		api.POST("/detect-plate-video", s.limitUploads(), s.detectPlateVideo)
		api.GET("/get-video-info/:id", s.videoInfo)
	}
	r.GET("/download-video/:id", s.downloadVideo)
	r.GET("/download-image/:id", s.downloadImage)

	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}
	return r
}

// Handler is the root handler with CORS applied. Any origin is allowed.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.engine)
}

// Shutdown stops accepting jobs and waits for running ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.workers.Shutdown(ctx)
}

// limitUploads caps the request body at Config.MaxUploadMB. A declared
// length above the cap is rejected before reading; otherwise reads past the
// cap fail with *http.MaxBytesError, which formFile maps to 413.
func (s *Server) limitUploads() gin.HandlerFunc {
	limit := s.opts.Config.MaxUploadMB << 20
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			s.abortTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func (s *Server) abortTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("upload exceeds %d MB", s.opts.Config.MaxUploadMB),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// RemoveJobFiles deletes the files of an evicted job. It is meant for
// store.Options.OnEvict.
func RemoveJobFiles(logger *zap.Logger) func(store.Job) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(job store.Job) {
		for _, path := range []string{job.InputPath, job.OutputPath} {
			if path == "" {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove job file", zap.String("job", job.ID), zap.String("path", path), zap.Error(err))
			}
		}
	}
}
