package annotation

import "github.com/menta2k/spectrai/pkg/types"

// ToNormalized converts a pixel-space box into the persisted normalized form.
// The box edges are clipped to the image, so a box spilling past the border
// keeps only its visible part and one lying fully outside ends up with zero
// width or height.
func ToNormalized(p types.PixelBox, imgW, imgH int) types.Box {
	if imgW <= 0 || imgH <= 0 {
		return types.Box{ClassIndex: p.ClassIndex}
	}
	fw, fh := float64(imgW), float64(imgH)
	x0, y0, x1, y1 := p.Corners()
	x0, x1 = clamp(x0, 0, fw), clamp(x1, 0, fw)
	y0, y1 = clamp(y0, 0, fh), clamp(y1, 0, fh)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return types.Box{
		ClassIndex: p.ClassIndex,
		XCenter:    (x0 + x1) / 2 / fw,
		YCenter:    (y0 + y1) / 2 / fh,
		Width:      (x1 - x0) / fw,
		Height:     (y1 - y0) / fh,
	}
}

// HasArea reports whether b covers a non-empty region
func HasArea(b types.Box) bool {
	return b.Width > 0 && b.Height > 0
}

// ToPixel converts a normalized box to pixel units for an image of imgW x imgH
func ToPixel(b types.Box, imgW, imgH int) types.PixelBox {
	fw, fh := float64(imgW), float64(imgH)
	return types.PixelBox{
		XCenter:    b.XCenter * fw,
		YCenter:    b.YCenter * fh,
		Width:      b.Width * fw,
		Height:     b.Height * fh,
		ClassIndex: b.ClassIndex,
	}
}

// NormalizeAll converts a detector result in one pass, dropping boxes that
// lie entirely outside the image
func NormalizeAll(boxes []types.PixelBox, imgW, imgH int) []types.Box {
	out := make([]types.Box, 0, len(boxes))
	for _, p := range boxes {
		if b := ToNormalized(p, imgW, imgH); HasArea(b) {
			out = append(out, b)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
