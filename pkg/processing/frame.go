package processing

import (
	"image"

	"github.com/menta2k/spectrai/pkg/types"
)

// Frame is a displayable bitmap plus the mapping from source pixels to it
type Frame struct {
	Image *image.NRGBA

	SourceWidth  int
	SourceHeight int

	// ScaleX/ScaleY map source pixels to frame pixels
	ScaleX float64
	ScaleY float64

	// Letterbox placement; zero when stretched
	OffsetX       int
	OffsetY       int
	ContentWidth  int
	ContentHeight int
}

// ToFrame maps a source-pixel box into frame coordinates
func (f *Frame) ToFrame(p types.PixelBox) types.PixelBox {
	return types.PixelBox{
		XCenter:    p.XCenter*f.ScaleX + float64(f.OffsetX),
		YCenter:    p.YCenter*f.ScaleY + float64(f.OffsetY),
		Width:      p.Width * f.ScaleX,
		Height:     p.Height * f.ScaleY,
		ClassIndex: p.ClassIndex,
	}
}

// ToSource maps a frame point (e.g. a click) back to source pixels.
// ok is false when the point falls on the letterbox.
func (f *Frame) ToSource(x, y float64) (sx, sy float64, ok bool) {
	if f.ScaleX == 0 || f.ScaleY == 0 {
		return 0, 0, false
	}
	sx = (x - float64(f.OffsetX)) / f.ScaleX
	sy = (y - float64(f.OffsetY)) / f.ScaleY
	ok = sx >= 0 && sy >= 0 && sx <= float64(f.SourceWidth) && sy <= float64(f.SourceHeight)
	return sx, sy, ok
}
