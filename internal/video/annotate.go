package video

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor       = color.RGBA{255, 0, 0, 255}
	zoneColor      = color.NRGBA{0, 0, 255, 70}
	zoneEdgeColor  = color.RGBA{0, 0, 255, 255}
	labelTextColor = color.RGBA{255, 255, 255, 255}
	labelBgColor   = color.NRGBA{0, 0, 0, 160}
)

const (
	glyphWidth  = 7
	glyphHeight = 13
	lineHeight  = 16
)

// Box is a labelled rectangle in pixel coordinates of the annotated image
type Box struct {
	X1, Y1, X2, Y2 int
	Label          string
}

// Overlay describes what to draw on a frame
type Overlay struct {
	Boxes []Box
	Zones [][4]float64 // normalized [x1, y1, x2, y2]
	Lines []string     // status text, top-left
}

// Annotate draws the overlay on a copy of img
func Annotate(img image.Image, overlay Overlay) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for _, z := range overlay.Zones {
		rect := image.Rect(
			int(z[0]*float64(w)), int(z[1]*float64(h)),
			int(z[2]*float64(w)), int(z[3]*float64(h)),
		)
		draw.Draw(dst, rect, &image.Uniform{zoneColor}, image.Point{}, draw.Over)
		drawRect(dst, rect, zoneEdgeColor, 1)
	}

	for _, b := range overlay.Boxes {
		rect := image.Rect(b.X1, b.Y1, b.X2, b.Y2)
		drawRect(dst, rect, boxColor, 2)
		if b.Label != "" {
			drawLabel(dst, rect.Min.X, rect.Min.Y-lineHeight, b.Label)
		}
	}

	for i, line := range overlay.Lines {
		drawLabel(dst, 4, 4+i*lineHeight, line)
	}

	return dst
}

// drawRect draws the outline of rect clipped to the image
func drawRect(img *image.RGBA, rect image.Rectangle, c color.Color, thickness int) {
	rect = rect.Canon()
	src := &image.Uniform{c}
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness),
		image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y),
		image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(img, edge.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel draws text on a translucent background at x, y (top-left)
func drawLabel(img *image.RGBA, x, y int, label string) {
	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	bg := image.Rect(x-2, y-1, x+len(label)*glyphWidth+2, y+glyphHeight+2)
	draw.Draw(img, bg.Intersect(img.Bounds()), &image.Uniform{labelBgColor}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelTextColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
