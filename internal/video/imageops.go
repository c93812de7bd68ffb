package video

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Margins are pixel amounts cut off each side of a frame
type Margins struct {
	Left, Right, Top, Bottom int
}

// IsZero reports whether no cropping is requested
func (m Margins) IsZero() bool {
	return m == Margins{}
}

// Crop removes the margins from img. When the margins leave nothing the
// image is returned unchanged.
func Crop(img image.Image, m Margins) image.Image {
	if m.IsZero() {
		return img
	}

	b := img.Bounds()
	rect := image.Rect(b.Min.X+m.Left, b.Min.Y+m.Top, b.Max.X-m.Right, b.Max.Y-m.Bottom)
	if rect.Empty() || !rect.In(b) {
		return img
	}
	return imaging.Crop(img, rect)
}

// ResizeToWidth scales img to width keeping the aspect ratio. Images that
// already have that width, or a non-positive width, are returned as is.
func ResizeToWidth(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() == width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// Prepare applies the zoom crop then the resize used before detection
func Prepare(img image.Image, zoom Margins, width int) image.Image {
	return ResizeToWidth(Crop(img, zoom), width)
}

// EncodeJPEG encodes img with the given quality (1-100)
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
