package ollama

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/spectrai/pkg/types"
)

func writeImage(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spectrogram.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
	return path
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("not a url", nil)
	assert.Error(t, err)

	c, err := NewClient("http://localhost:11434/api/chat", nil)
	require.NoError(t, err)
	assert.NotNil(t, c.client)
}

func TestDetect(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	var got map[string]any
	httpmock.RegisterResponder("POST", "http://ollama.test/api/chat",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return httpmock.NewStringResponse(400, err.Error()), nil
			}
			return httpmock.NewJsonResponse(200, map[string]any{
				"model":   "llava",
				"message": map[string]any{"role": "assistant", "content": `[{"x": 100, "y": 50, "w": 20, "h": 30, "idx": 1}]`},
				"done":    true,
			})
		})

	c, err := NewClient("http://ollama.test", []string{"whistle"})
	require.NoError(t, err)

	boxes, err := c.Detect(context.Background(), "llava", writeImage(t, 400, 300))
	require.NoError(t, err)
	assert.Equal(t, []types.PixelBox{{XCenter: 100, YCenter: 50, Width: 20, Height: 30, ClassIndex: 1}}, boxes)
	assert.Equal(t, "llava", got["model"])
}

func TestDetectMissingImage(t *testing.T) {
	c, err := NewClient("http://ollama.test", nil)
	require.NoError(t, err)

	_, err = c.Detect(context.Background(), "llava", filepath.Join(t.TempDir(), "none.png"))
	assert.ErrorIs(t, err, types.ErrImageLoad)
}

func TestModelOptions(t *testing.T) {
	opts := modelOptions("openbmb/minicpm-v4.5")
	assert.Equal(t, 4096, opts["num_ctx"])

	opts = modelOptions("llava")
	assert.NotContains(t, opts, "num_ctx")
	assert.Equal(t, 0.1, opts["temperature"])
}
