package images

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // register the PNG decoder
	"io"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported upload formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// Decode reads an uploaded image. JPEG and PNG go through the standard
// registry, WebP through chai2010/webp.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Image: The decoded image.
//   - ImageFormat: The detected format.
//   - error: An error if the bytes are empty or cannot be decoded.
func Decode(data []byte) (image.Image, ImageFormat, error) {
	if len(data) == 0 {
		return nil, "", errors.New("empty image data")
	}

	if isWebP(data) {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to decode webp")
		}
		return img, FormatWebP, nil
	}

	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to decode image")
	}
	return img, ImageFormat(name), nil
}

// EncodeJPEG writes img as a JPEG with the given quality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return errors.Wrap(err, "failed to encode jpeg")
	}
	return nil
}

// isWebP checks for the RIFF....WEBP container header.
func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
}
