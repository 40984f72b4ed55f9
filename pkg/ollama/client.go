package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/spectrai/pkg/detection"
	"github.com/menta2k/spectrai/pkg/processing"
	"github.com/menta2k/spectrai/pkg/types"
)

// Client asks an Ollama vision model for bounding boxes
type Client struct {
	client    *api.Client
	processor *processing.Processor
	classes   []string
	sendSize  int
	sendQ     int
}

// NewClient creates a new Ollama client. classes lists label names by index
// and is embedded in the prompt.
func NewClient(ollamaURL string, classes []string) (*Client, error) {
	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client:    api.NewClient(baseURL, http.DefaultClient),
		processor: processing.NewProcessor(),
		classes:   classes,
		sendSize:  1536,
		sendQ:     85,
	}, nil
}

// Detect sends the image to the model and returns boxes in source pixels
func (c *Client) Detect(ctx context.Context, model, imagePath string) ([]types.PixelBox, error) {
	// Add timeout if context doesn't have one (vision models on CPU are slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	img, err := c.processor.LoadImage(imagePath)
	if err != nil {
		return nil, err
	}
	imgB64, factor, err := c.processor.PrepareImageForModel(img, "jpg", c.sendSize, c.sendQ)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %v", err)
	}

	w, h := processing.ImageSize(img)
	prompt := detection.BuildPrompt(int(float64(w)/factor), int(float64(h)/factor), c.classes)

	streamFalse := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: modelOptions(model),
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %v", err)
	}
	if strings.TrimSpace(responseContent) == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	boxes, err := detection.ParseBoxes(responseContent)
	if err != nil {
		return nil, err
	}
	return detection.Rescale(boxes, factor), nil
}

// modelOptions tunes sampling for models known to ramble
func modelOptions(model string) map[string]any {
	options := map[string]any{"temperature": 0.1}
	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v4") ||
		strings.Contains(modelLower, "minicpm-v-4") ||
		strings.Contains(modelLower, "minicpmv4") {
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}
	return options
}
