package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/spectrai/pkg/types"
)

// Processor handles image loading, display scaling and export
type Processor struct {
	filter     imaging.ResampleFilter
	background color.NRGBA
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		filter:     imaging.Lanczos,
		background: color.NRGBA{0, 0, 0, 255},
	}
}

// WithBackground sets the letterbox fill color
func (p *Processor) WithBackground(c color.NRGBA) *Processor {
	p.background = c
	return p
}

// ParseHexColor parses "#rgb" or "#rrggbb" into an opaque color. An empty
// string is black.
func ParseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 255}
	if s == "" {
		return c, nil
	}
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	case 4:
		_, err = fmt.Sscanf(s, "#%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R, c.G, c.B = c.R*17, c.G*17, c.B*17
	default:
		err = fmt.Errorf("expected #rgb or #rrggbb")
	}
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: color %q: %v", types.ErrValidation, s, err)
	}
	return c, nil
}

// LoadImage reads a raster file and normalizes it to opaque 8-bit RGB.
// Any failure is reported as types.ErrImageLoad.
func (p *Processor) LoadImage(path string) (*image.NRGBA, error) {
	img, err := p.decode(path)
	if err != nil {
		return nil, types.NewError(types.ErrImageLoad, "processing.LoadImage", path, err)
	}
	return toRGB(img), nil
}

func (p *Processor) decode(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	img, openErr := imaging.Open(path)
	if openErr == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Fallback: explicit WebP decode for mislabeled files
	if img, err := webp.Decode(f); err == nil {
		return img, nil
	}
	return nil, openErr
}

// toRGB drops the alpha channel the way a plain RGB conversion does
func toRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// ImageSize returns width and height of img
func ImageSize(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// Fit scales img into the viewport. Stretch uses the viewport size directly;
// otherwise scale = min(vw/iw, vh/ih) and the result is letterboxed on a
// viewport-sized canvas.
func (p *Processor) Fit(img image.Image, vp types.Viewport) (*Frame, error) {
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, fmt.Errorf("%w: viewport %dx%d", types.ErrValidation, vp.Width, vp.Height)
	}
	iw, ih := ImageSize(img)
	if iw == 0 || ih == 0 {
		return nil, fmt.Errorf("%w: empty image", types.ErrImageLoad)
	}

	frame := &Frame{SourceWidth: iw, SourceHeight: ih}

	if vp.Stretch {
		frame.Image = imaging.Resize(img, vp.Width, vp.Height, p.filter)
		frame.ScaleX = float64(vp.Width) / float64(iw)
		frame.ScaleY = float64(vp.Height) / float64(ih)
		return frame, nil
	}

	scale := min(float64(vp.Width)/float64(iw), float64(vp.Height)/float64(ih))
	newW := max(int(float64(iw)*scale), 1)
	newH := max(int(float64(ih)*scale), 1)

	scaled := imaging.Resize(img, newW, newH, p.filter)
	canvas := imaging.New(vp.Width, vp.Height, p.background)
	offX := (vp.Width - newW) / 2
	offY := (vp.Height - newH) / 2

	frame.Image = imaging.Paste(canvas, scaled, image.Pt(offX, offY))
	frame.ScaleX = float64(newW) / float64(iw)
	frame.ScaleY = float64(newH) / float64(ih)
	frame.OffsetX = offX
	frame.OffsetY = offY
	frame.ContentWidth = newW
	frame.ContentHeight = newH
	return frame, nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models.
// The returned factor maps model-space pixels back to source pixels.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, float64, error) {
	factor := 1.0
	if maxDim > 0 {
		w, h := ImageSize(img)
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
				factor = float64(w) / float64(img.Bounds().Dx())
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
				factor = float64(h) / float64(img.Bounds().Dy())
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", 0, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", 0, err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), factor, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}
