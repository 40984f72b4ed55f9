package types

import (
	"fmt"
	"math"
)

// Box is a persisted YOLO annotation: class index plus center/size normalized to [0,1]
type Box struct {
	ClassIndex int     `json:"class_index"`
	XCenter    float64 `json:"x_center"`
	YCenter    float64 `json:"y_center"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Validate reports an ErrValidation when the box is outside the normalized range
func (b Box) Validate() error {
	if b.ClassIndex < 0 {
		return fmt.Errorf("%w: negative class index %d", ErrValidation, b.ClassIndex)
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"x_center", b.XCenter},
		{"y_center", b.YCenter},
		{"width", b.Width},
		{"height", b.Height},
	} {
		if v.val < 0 || v.val > 1 || math.IsNaN(v.val) {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrValidation, v.name, v.val)
		}
	}
	return nil
}

// PixelBox is a detector box in pixel units. JSON tags match the predictor output.
type PixelBox struct {
	XCenter    float64 `json:"x"`
	YCenter    float64 `json:"y"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	ClassIndex int     `json:"idx"`
}

// Corners returns the top-left and bottom-right corners of the box
func (p PixelBox) Corners() (x0, y0, x1, y1 float64) {
	return p.XCenter - p.Width/2, p.YCenter - p.Height/2, p.XCenter + p.Width/2, p.YCenter + p.Height/2
}

// Viewport is the display area an image is scaled into
type Viewport struct {
	Width   int  `json:"width"`
	Height  int  `json:"height"`
	Stretch bool `json:"stretch"`
}

// Entry pairs an image with its annotation file
type Entry struct {
	ImagePath      string `json:"image_path"`
	AnnotationPath string `json:"annotation_path"`
}

// State is a snapshot of the annotator at the current position
type State struct {
	Index          int    `json:"index"`
	Total          int    `json:"total"`
	ImagePath      string `json:"image_path"`
	AnnotationPath string `json:"annotation_path"`
	Boxes          []Box  `json:"boxes"`
	Dirty          bool   `json:"dirty"`

	// LoadError is set when the annotation file could not be read; the entry
	// accepts no edits until it is reloaded.
	LoadError error `json:"-"`
}
