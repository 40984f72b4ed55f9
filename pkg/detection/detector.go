package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/spectrai/internal/logging"
	"github.com/menta2k/spectrai/pkg/annotation"
	"github.com/menta2k/spectrai/pkg/client"
	"github.com/menta2k/spectrai/pkg/types"
)

// Adapter is the request/response boundary to an external detector.
// It keeps no state besides its backend.
type Adapter struct {
	client client.Detector
	log    logrus.FieldLogger
}

// NewAdapter creates a new adapter over a detector backend
func NewAdapter(client client.Detector) *Adapter {
	return &Adapter{client: client, log: logging.Discard()}
}

// WithLogger sets the logger used for per-call diagnostics
func (a *Adapter) WithLogger(log logrus.FieldLogger) *Adapter {
	if log != nil {
		a.log = log
	}
	return a
}

// Detect runs the detector and returns one pixel-space box per object.
// No detections yield an empty slice. Failures are wrapped in types.ErrDetection.
func (a *Adapter) Detect(ctx context.Context, model, imagePath string) ([]types.PixelBox, error) {
	if a.client == nil {
		return nil, types.NewError(types.ErrDetection, "detection.Detect", imagePath, errors.New("no detector backend configured"))
	}

	start := time.Now()
	boxes, err := a.client.Detect(ctx, model, imagePath)
	if err != nil {
		a.log.WithFields(logrus.Fields{"image": imagePath, "model": model}).WithError(err).Warn("detection failed")
		return nil, types.NewError(types.ErrDetection, "detection.Detect", imagePath, err)
	}

	out := make([]types.PixelBox, 0, len(boxes))
	for _, b := range boxes {
		if !validPixelBox(b) {
			a.log.WithField("box", fmt.Sprintf("%+v", b)).Debug("dropping malformed detection")
			continue
		}
		out = append(out, b)
	}

	a.log.WithFields(logrus.Fields{
		"image":    imagePath,
		"boxes":    len(out),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("detection finished")
	return out, nil
}

// DetectNormalized runs Detect and converts the result for an image of imgW x imgH
func (a *Adapter) DetectNormalized(ctx context.Context, model, imagePath string, imgW, imgH int) ([]types.Box, error) {
	boxes, err := a.Detect(ctx, model, imagePath)
	if err != nil {
		return nil, err
	}
	return annotation.NormalizeAll(boxes, imgW, imgH), nil
}

func validPixelBox(b types.PixelBox) bool {
	for _, v := range []float64{b.XCenter, b.YCenter, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.ClassIndex >= 0 && b.Width > 0 && b.Height > 0
}
