package client

import (
	"context"

	"github.com/menta2k/spectrai/pkg/types"
)

// Detector is an external object detector. It returns pixel-space boxes for
// the image at imagePath using the model identified by model.
type Detector interface {
	Detect(ctx context.Context, model, imagePath string) ([]types.PixelBox, error)
}
