// Package video reads and writes video files through OpenCV.
package video

import (
	"image"
	"io"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Codec is the fourcc used for written videos.
const Codec = "mp4v"

// Source decodes frames from a video file.
type Source struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
}

// OpenSource opens a video file for reading.
//
// Arguments:
//   - path: The video file.
//
// Returns:
//   - *Source: The opened source. The caller must Close it.
//   - error: An error if the file cannot be opened or decoded.
func OpenSource(path string) (*Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open video %s", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("video %s could not be opened", path)
	}
	return &Source{capture: capture, frame: gocv.NewMat()}, nil
}

// Next returns the next frame, or io.EOF when the stream is exhausted.
func (s *Source) Next() (image.Image, error) {
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return nil, io.EOF
	}
	img, err := s.frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert frame")
	}
	return img, nil
}

// FPS reports the container frame rate, 0 if unknown.
func (s *Source) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Size reports the frame size, zero if unknown.
func (s *Source) Size() image.Point {
	return image.Point{
		X: int(s.capture.Get(gocv.VideoCaptureFrameWidth)),
		Y: int(s.capture.Get(gocv.VideoCaptureFrameHeight)),
	}
}

// Close releases the decoder.
func (s *Source) Close() error {
	if err := s.frame.Close(); err != nil {
		s.capture.Close()
		return errors.Wrap(err, "failed to release frame")
	}
	return errors.Wrap(s.capture.Close(), "failed to release capture")
}

// Sink encodes frames into a video file.
type Sink struct {
	writer *gocv.VideoWriter
	size   image.Point
}

// CreateSink creates a video file with the given frame rate and size.
//
// Arguments:
//   - path: The output file.
//   - fps: The frame rate.
//   - size: The frame size. Frames of another size are resized.
//
// Returns:
//   - *Sink: The sink. The caller must Close it to finalize the file.
//   - error: An error if the writer cannot be created.
func CreateSink(path string, fps float64, size image.Point) (*Sink, error) {
	writer, err := gocv.VideoWriterFile(path, Codec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create video %s", path)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, errors.Errorf("video %s could not be created", path)
	}
	return &Sink{writer: writer, size: size}, nil
}

// Write appends one frame.
func (s *Sink) Write(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "failed to convert frame")
	}
	defer mat.Close()

	if mat.Cols() != s.size.X || mat.Rows() != s.size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, s.size, 0, 0, gocv.InterpolationLinear)
		return errors.Wrap(s.writer.Write(resized), "failed to write frame")
	}
	return errors.Wrap(s.writer.Write(mat), "failed to write frame")
}

// Close finalizes the file.
func (s *Sink) Close() error {
	return errors.Wrap(s.writer.Close(), "failed to close video writer")
}
