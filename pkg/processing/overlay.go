package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/types"
)

// palette cycles per class index
var palette = []color.NRGBA{
	{0, 255, 0, 255},
	{255, 204, 0, 255},
	{255, 0, 0, 255},
	{0, 170, 255, 255},
	{255, 0, 255, 255},
	{0, 255, 255, 255},
	{255, 128, 0, 255},
	{160, 96, 255, 255},
}

// ClassColor returns the overlay color for a class index
func ClassColor(class int) color.NRGBA {
	if class < 0 {
		class = -class
	}
	return palette[class%len(palette)]
}

// LabelFunc resolves a class index to a display name; empty hides the caption
type LabelFunc func(class int) string

// CreateOverlay draws normalized boxes onto a copy of the frame
func (p *Processor) CreateOverlay(frame *Frame, boxes []types.Box, label LabelFunc) *image.NRGBA {
	out := imaging.Clone(frame.Image)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	stroke := int(math.Max(1, 0.004*float64(min(w, h))))

	for _, b := range boxes {
		fb := frame.ToFrame(annotation.ToPixel(b, frame.SourceWidth, frame.SourceHeight))
		x0, y0, x1, y1 := fb.Corners()
		c := ClassColor(b.ClassIndex)
		drawRect(out, int(x0+0.5), int(y0+0.5), int(x1+0.5), int(y1+0.5), c, stroke)

		if label != nil {
			if name := label(b.ClassIndex); name != "" {
				drawCaption(out, int(x0+0.5), int(y0+0.5), name, c)
			}
		}
	}
	return out
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, stroke int) {
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

// drawCaption writes text on a filled tag just above (or inside) the box corner
func drawCaption(img *image.NRGBA, x, y int, text string, bg color.NRGBA) {
	face := basicfont.Face7x13
	tw := font.MeasureString(face, text).Ceil()
	th := face.Metrics().Height.Ceil()

	top := y - th - 2
	if top < 0 {
		top = y
	}
	for row := top; row < top+th+2; row++ {
		drawHLine(img, row, x, x+tw+4, bg)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x+2, top+1+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
