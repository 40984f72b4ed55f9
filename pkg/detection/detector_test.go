package detection

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/menta2k/spectrai/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubDetector struct {
	boxes []types.PixelBox
	err   error

	gotModel, gotImage string
}

func (s *stubDetector) Detect(_ context.Context, model, imagePath string) ([]types.PixelBox, error) {
	s.gotModel, s.gotImage = model, imagePath
	return s.boxes, s.err
}

func TestDetectPassesThroughBoxes(t *testing.T) {
	stub := &stubDetector{boxes: []types.PixelBox{{XCenter: 100, YCenter: 50, Width: 20, Height: 30, ClassIndex: 1}}}
	boxes, err := NewAdapter(stub).Detect(context.Background(), "model.pt", "img.png")

	require.NoError(t, err)
	assert.Equal(t, stub.boxes, boxes)
	assert.Equal(t, "model.pt", stub.gotModel)
	assert.Equal(t, "img.png", stub.gotImage)
}

func TestDetectNoDetectionsIsEmptyNotNil(t *testing.T) {
	boxes, err := NewAdapter(&stubDetector{}).Detect(context.Background(), "m", "i")
	require.NoError(t, err)
	assert.NotNil(t, boxes)
	assert.Empty(t, boxes)
}

func TestDetectWrapsBackendError(t *testing.T) {
	cause := errors.New("model exploded")
	_, err := NewAdapter(&stubDetector{err: cause}).Detect(context.Background(), "m", "i")

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDetection)
	assert.ErrorIs(t, err, cause)
}

func TestDetectWithoutBackend(t *testing.T) {
	_, err := NewAdapter(nil).Detect(context.Background(), "m", "i")
	assert.ErrorIs(t, err, types.ErrDetection)
}

func TestDetectDropsMalformedBoxes(t *testing.T) {
	stub := &stubDetector{boxes: []types.PixelBox{
		{XCenter: 1, YCenter: 1, Width: 2, Height: 2},
		{XCenter: math.NaN(), YCenter: 1, Width: 2, Height: 2},
		{XCenter: 1, YCenter: 1, Width: 0, Height: 2},
		{XCenter: 1, YCenter: 1, Width: 2, Height: 2, ClassIndex: -3},
	}}
	boxes, err := NewAdapter(stub).Detect(context.Background(), "m", "i")
	require.NoError(t, err)
	assert.Len(t, boxes, 1)
}

func TestDetectNormalized(t *testing.T) {
	stub := &stubDetector{boxes: []types.PixelBox{{XCenter: 100, YCenter: 50, Width: 20, Height: 30, ClassIndex: 1}}}
	boxes, err := NewAdapter(stub).DetectNormalized(context.Background(), "m", "i", 400, 300)

	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 1, boxes[0].ClassIndex)
	assert.InDelta(t, 0.25, boxes[0].XCenter, 1e-9)
	assert.InDelta(t, 0.1667, boxes[0].YCenter, 1e-4)
	assert.InDelta(t, 0.05, boxes[0].Width, 1e-9)
	assert.InDelta(t, 0.1, boxes[0].Height, 1e-9)
}
