package detection

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are an object detector for spectrogram images.

The image is %d pixels wide and %d pixels tall.
%s
Return JSON only, an array with one entry per detected object:
[{"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0, "idx": 0}]

HARD RULES
- x, y are the CENTER of the box in pixels; w, h are its size in pixels.
- idx is the class index from the list above.
- Boxes must tightly enclose each signal; do not merge separate signals.
- If nothing is found, return [].
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// BuildPrompt renders the detection prompt for an image of the given size
func BuildPrompt(width, height int, classes []string) string {
	var sb strings.Builder
	if len(classes) > 0 {
		sb.WriteString("Classes (idx: name):\n")
		for i, c := range classes {
			fmt.Fprintf(&sb, "- %d: %s\n", i, c)
		}
	} else {
		sb.WriteString("Use idx 0 for every object.\n")
	}
	return fmt.Sprintf(promptTemplate, width, height, sb.String())
}
