package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/spectrai/pkg/types"
)

func TestParseBoxes(t *testing.T) {
	want := []types.PixelBox{{XCenter: 285.3, YCenter: 48.4, Width: 15.5, Height: 46.9, ClassIndex: 11}}

	cases := map[string]string{
		"bare array":     `[{"x": 285.3, "y": 48.4, "w": 15.5, "h": 46.9, "idx": 11}]`,
		"wrapped":        `{"boxes": [{"x": 285.3, "y": 48.4, "w": 15.5, "h": 46.9, "idx": 11}]}`,
		"fenced":         "```json\n[{\"x\": 285.3, \"y\": 48.4, \"w\": 15.5, \"h\": 46.9, \"idx\": 11}]\n```",
		"chatty":         `Here you go: [{"x": 285.3, "y": 48.4, "w": 15.5, "h": 46.9, "idx": 11}] hope it helps`,
		"trailing comma": `[{"x": 285.3, "y": 48.4, "w": 15.5, "h": 46.9, "idx": 11,},]`,
		"comments":       "[\n// one box\n{\"x\": 285.3, /* px */ \"y\": 48.4, \"w\": 15.5, \"h\": 46.9, \"idx\": 11}]",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseBoxes(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseBoxesEmpty(t *testing.T) {
	for _, raw := range []string{"", "[]", `{"boxes": []}`, "{}"} {
		got, err := ParseBoxes(raw)
		require.NoError(t, err, raw)
		assert.NotNil(t, got, raw)
		assert.Empty(t, got, raw)
	}
}

func TestParseBoxesGarbage(t *testing.T) {
	_, err := ParseBoxes("I could not find anything")
	assert.Error(t, err)

	_, err = ParseBoxes(`[{"x": "left"}]`)
	assert.Error(t, err)
}

func TestRescale(t *testing.T) {
	in := []types.PixelBox{{XCenter: 10, YCenter: 20, Width: 4, Height: 2, ClassIndex: 3}}
	out := Rescale(in, 2)
	assert.Equal(t, []types.PixelBox{{XCenter: 20, YCenter: 40, Width: 8, Height: 4, ClassIndex: 3}}, out)
	assert.Equal(t, in, Rescale(in, 1))
}
