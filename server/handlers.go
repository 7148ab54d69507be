package server

import (
	"context"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-lpr/images"
	"github.com/nvr-ai/go-lpr/metrics"
	"github.com/nvr-ai/go-lpr/pipeline"
	"github.com/nvr-ai/go-lpr/store"
)

// videoResponse is returned when a video job finishes.
type videoResponse struct {
	Message     string             `json:"message"`
	SessionID   string             `json:"session_id"`
	Status      store.Status       `json:"status"`
	Count       int                `json:"count"`
	Cars        []pipeline.Vehicle `json:"cars"`
	DownloadURL string             `json:"download_url,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// imageResponse is returned for a still image.
type imageResponse struct {
	SessionID string               `json:"session_id"`
	Plates    []string             `json:"plates"`
	Avro      []string             `json:"avro"`
	Results   []pipeline.PlateText `json:"results"`
	ImageURL  string               `json:"image_url"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// detectPlate reads the plates of one uploaded image.
func (s *Server) detectPlate(c *gin.Context) {
	data, ok := s.readUpload(c)
	if !ok {
		return
	}
	img, _, err := images.Decode(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image: " + err.Error()})
		return
	}

	job := s.opts.Store.Create(store.KindImage, "")
	output := filepath.Join(s.opts.Config.DataDir, job.ID+"_output.jpg")

	var (
		result *pipeline.ImageResult
		runErr error
	)
	done := make(chan struct{})
	s.opts.Metrics.JobStarted()
	if err := s.workers.Go(func(ctx context.Context) {
		defer close(done)
		ctx, cancel := mergeCancel(ctx, c.Request.Context())
		defer cancel()
		result, runErr = s.opts.NewPipeline().ProcessImage(ctx, img)
		if runErr == nil {
			runErr = writeJPEG(output, result.Annotated)
		}
	}); err != nil {
		s.finishJob(job.ID, store.KindImage, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	<-done

	if runErr != nil {
		s.finishJob(job.ID, store.KindImage, runErr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error(), "session_id": job.ID})
		return
	}

	_, _ = s.opts.Store.Update(job.ID, func(j *store.Job) {
		j.OutputPath = output
		j.Plates = result.Plates
	})
	s.finishJob(job.ID, store.KindImage, nil)

	resp := imageResponse{
		SessionID: job.ID,
		Plates:    make([]string, 0, len(result.Plates)),
		Avro:      make([]string, 0, len(result.Plates)),
		Results:   result.Plates,
		ImageURL:  "/download-image/" + job.ID,
	}
	for _, p := range result.Plates {
		resp.Plates = append(resp.Plates, p.Text)
		resp.Avro = append(resp.Avro, p.Avro)
	}
	c.JSON(http.StatusOK, resp)
}

// detectPlateVideo stores the upload and runs it on the worker pool. The
// request waits for the result unless async=true is given, in which case it
// returns 202 and the job is polled through get-video-info.
func (s *Server) detectPlateVideo(c *gin.Context) {
	file, ok := s.formFile(c)
	if !ok {
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".mp4"
	}
	job := s.opts.Store.Create(store.KindVideo, "")
	input := filepath.Join(s.opts.Config.DataDir, job.ID+"_input"+ext)
	output := filepath.Join(s.opts.Config.DataDir, job.ID+"_output.mp4")

	if err := c.SaveUploadedFile(file, input); err != nil {
		_ = s.opts.Store.Delete(job.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	_, _ = s.opts.Store.Update(job.ID, func(j *store.Job) {
		j.InputPath = input
		j.OutputPath = output
	})

	done := make(chan struct{})
	s.opts.Metrics.JobStarted()
	if err := s.workers.Go(func(ctx context.Context) {
		defer close(done)
		s.runVideo(ctx, job.ID, input, output)
	}); err != nil {
		s.finishJob(job.ID, store.KindVideo, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	if c.Query("async") == "true" {
		c.JSON(http.StatusAccepted, gin.H{
			"session_id": job.ID,
			"status":     store.StatusPending,
			"status_url": "/api/get-video-info/" + job.ID,
		})
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
		return
	}

	job, err := s.opts.Store.Get(job.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if job.Status == store.StatusFailed {
		c.JSON(http.StatusInternalServerError, toVideoResponse(job))
		return
	}
	c.JSON(http.StatusOK, toVideoResponse(job))
}

// runVideo processes one stored upload. The input file is removed afterwards.
func (s *Server) runVideo(ctx context.Context, id, input, output string) {
	if s.opts.Config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Config.JobTimeout)
		defer cancel()
	}
	_, _ = s.opts.Store.Update(id, func(j *store.Job) { j.Status = store.StatusRunning })

	result, err := s.opts.NewPipeline().ProcessVideo(ctx, s.opts.OpenVideo(input), s.opts.CreateVideo(output))
	if rmErr := os.Remove(input); rmErr != nil && !os.IsNotExist(rmErr) {
		s.logger.Warn("failed to remove upload", zap.String("job", id), zap.Error(rmErr))
	}
	if err == nil {
		_, _ = s.opts.Store.Update(id, func(j *store.Job) {
			j.InputPath = ""
			j.Video = result
		})
	}
	s.finishJob(id, store.KindVideo, err)
}

// finishJob records the final status of a job in the store and the metrics.
func (s *Server) finishJob(id string, kind store.Kind, err error) {
	status, outcome := store.StatusDone, metrics.JobSucceeded
	if err != nil {
		status, outcome = store.StatusFailed, metrics.JobFailed
		s.logger.Error("job failed", zap.String("job", id), zap.String("kind", string(kind)), zap.Error(err))
	}
	_, _ = s.opts.Store.Update(id, func(j *store.Job) {
		j.Status = status
		if err != nil {
			j.Error = err.Error()
		}
	})
	s.opts.Metrics.JobFinished(string(kind), outcome)
}

func (s *Server) videoInfo(c *gin.Context) {
	job, ok := s.lookup(c, store.KindVideo)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toVideoResponse(job))
}

func (s *Server) downloadVideo(c *gin.Context) {
	job, ok := s.lookup(c, store.KindVideo)
	if !ok {
		return
	}
	if job.Status != store.StatusDone {
		c.JSON(http.StatusConflict, gin.H{"error": "video is not ready", "status": job.Status})
		return
	}
	c.FileAttachment(job.OutputPath, "processed_"+job.ID+".mp4")

	if s.opts.Config.DeleteAfterDownload && c.Writer.Status() == http.StatusOK {
		if err := s.opts.Store.Delete(job.ID); err != nil {
			s.logger.Warn("failed to delete downloaded job", zap.String("job", job.ID), zap.Error(err))
		}
	}
}

func (s *Server) downloadImage(c *gin.Context) {
	job, ok := s.lookup(c, store.KindImage)
	if !ok {
		return
	}
	if job.Status != store.StatusDone {
		c.JSON(http.StatusConflict, gin.H{"error": "image is not ready", "status": job.Status})
		return
	}
	c.File(job.OutputPath)
}

// lookup fetches the job named by the id parameter and writes a 404 when it
// is unknown or of another kind.
func (s *Server) lookup(c *gin.Context, kind store.Kind) (store.Job, bool) {
	job, err := s.opts.Store.Get(c.Param("id"))
	if err != nil || job.Kind != kind {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return store.Job{}, false
	}
	return job, true
}

// formFile returns the multipart "file" field. It writes 413 when the body
// hit the upload limit and 400 when the field is missing.
func (s *Server) formFile(c *gin.Context) (*multipart.FileHeader, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.abortTooLarge(c)
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return nil, false
	}
	return file, true
}

// readUpload reads the multipart "file" field into memory.
func (s *Server) readUpload(c *gin.Context) ([]byte, bool) {
	file, ok := s.formFile(c)
	if !ok {
		return nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return nil, false
	}
	return data, true
}

func toVideoResponse(job store.Job) videoResponse {
	resp := videoResponse{
		SessionID: job.ID,
		Status:    job.Status,
		Cars:      []pipeline.Vehicle{},
		Error:     job.Error,
	}
	switch job.Status {
	case store.StatusDone:
		resp.Message = "Video processed successfully"
		resp.DownloadURL = "/download-video/" + job.ID
	case store.StatusFailed:
		resp.Message = "Video processing failed"
	default:
		resp.Message = "Video is being processed"
	}
	if job.Video != nil {
		resp.Count = job.Video.Count
		resp.Cars = job.Video.Vehicles
	}
	return resp
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := images.EncodeJPEG(f, img, 90); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to write %s", path)
}

// mergeCancel returns a context derived from a that is also canceled when b
// is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
