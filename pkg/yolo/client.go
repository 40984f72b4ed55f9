// Package yolo runs an external YOLO predictor process as a detection backend.
//
// The predictor is any command that takes a model file and an image path and
// prints a JSON array of pixel-space boxes on stdout:
//
//	[{"x": 285.29, "y": 48.37, "w": 15.45, "h": 46.86, "idx": 11}]
//
// where x/y are the box center. The default command line is
// "python3 predict.py {model} {image}".
package yolo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/menta2k/spectrai/pkg/detection"
	"github.com/menta2k/spectrai/pkg/types"
)

// DefaultCommand is the predictor invocation used when none is configured
var DefaultCommand = []string{"python3", "predict.py", "{model}", "{image}"}

// Client runs the predictor command once per detection
type Client struct {
	command []string
	timeout time.Duration
	env     []string
}

// NewClient creates a predictor client. The {model} and {image} placeholders
// in command are substituted per call.
func NewClient(command []string, timeout time.Duration) (*Client, error) {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("predictor command is empty")
	}
	return &Client{command: append([]string(nil), command...), timeout: timeout}, nil
}

// WithEnv adds KEY=VALUE pairs to the predictor environment
func (c *Client) WithEnv(env ...string) *Client {
	c.env = append(c.env, env...)
	return c
}

// Detect runs the predictor for a single image
func (c *Client) Detect(ctx context.Context, model, imagePath string) ([]types.PixelBox, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("image not accessible: %w", err)
	}

	if c.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	args := c.expand(model, imagePath)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204 - command comes from local config
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("predictor timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("predictor failed: %w: %s", err, lastLine(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, fmt.Errorf("predictor printed nothing; expected a JSON array of boxes: %s", lastLine(stderr.String()))
	}
	return detection.ParseBoxes(lastJSON(out))
}

func (c *Client) expand(model, imagePath string) []string {
	out := make([]string, len(c.command))
	for i, a := range c.command {
		a = strings.ReplaceAll(a, "{model}", model)
		a = strings.ReplaceAll(a, "{image}", imagePath)
		out[i] = a
	}
	return out
}

// lastJSON skips progress lines predictors print before their result
func lastJSON(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if strings.HasPrefix(l, "[") || strings.HasPrefix(l, "{") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return out
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
