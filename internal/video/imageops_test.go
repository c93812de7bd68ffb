package video

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrop(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))

	cropped := Crop(img, Margins{Left: 10, Right: 20, Top: 5, Bottom: 15})
	assert.Equal(t, 70, cropped.Bounds().Dx())
	assert.Equal(t, 30, cropped.Bounds().Dy())

	assert.Same(t, img, Crop(img, Margins{}).(*image.RGBA))
	assert.Same(t, img, Crop(img, Margins{Left: 60, Right: 60}).(*image.RGBA), "margins larger than the frame are ignored")
}

func TestResizeToWidth(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	resized := ResizeToWidth(img, 640)
	assert.Equal(t, 640, resized.Bounds().Dx())
	assert.Equal(t, 360, resized.Bounds().Dy())

	assert.Same(t, img, ResizeToWidth(img, 1280).(*image.RGBA))
	assert.Same(t, img, ResizeToWidth(img, 0).(*image.RGBA))
}

func TestPrepare(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 600))
	out := Prepare(img, Margins{Left: 100, Right: 100, Top: 0, Bottom: 200}, 400)
	assert.Equal(t, 400, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())
}

func TestEncodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	img.Set(1, 1, color.White)

	data, err := EncodeJPEG(img, 0)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Bounds().Dx())
	assert.Equal(t, 16, decoded.Bounds().Dy())
}
