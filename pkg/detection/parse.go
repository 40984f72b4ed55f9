package detection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/spectrai/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseBoxes extracts pixel boxes from detector output. It accepts a bare
// JSON array, an object with a "boxes" field, and tolerates code fences,
// comments and trailing commas the way vision models tend to emit them.
func ParseBoxes(raw string) ([]types.PixelBox, error) {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return []types.PixelBox{}, nil
	}

	switch raw[0] {
	case '[':
		var boxes []types.PixelBox
		if err := json.Unmarshal([]byte(raw), &boxes); err != nil {
			return nil, fmt.Errorf("failed to parse detections: %w", err)
		}
		if boxes == nil {
			boxes = []types.PixelBox{}
		}
		return boxes, nil
	case '{':
		var wrapped struct {
			Boxes []types.PixelBox `json:"boxes"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse detections: %w", err)
		}
		if wrapped.Boxes == nil {
			wrapped.Boxes = []types.PixelBox{}
		}
		return wrapped.Boxes, nil
	}
	return nil, fmt.Errorf("no JSON found in detector output: %.80q", raw)
}

// SanitizeModelJSON removes code fences, comments and trailing commas and
// keeps the outermost JSON array or object
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost [...] or {...}, whichever opens first
	open := strings.IndexAny(raw, "[{")
	if open < 0 {
		return strings.TrimSpace(raw)
	}
	closer := "}"
	if raw[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(raw, closer); end > open {
		raw = raw[open : end+1]
	}
	return strings.TrimSpace(raw)
}

// Rescale multiplies box geometry by factor, for detectors that saw a resized image
func Rescale(boxes []types.PixelBox, factor float64) []types.PixelBox {
	if factor == 1 || factor <= 0 {
		return boxes
	}
	out := make([]types.PixelBox, len(boxes))
	for i, b := range boxes {
		out[i] = types.PixelBox{
			XCenter:    b.XCenter * factor,
			YCenter:    b.YCenter * factor,
			Width:      b.Width * factor,
			Height:     b.Height * factor,
			ClassIndex: b.ClassIndex,
		}
	}
	return out
}
