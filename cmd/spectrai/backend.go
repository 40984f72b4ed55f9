package main

import (
	"fmt"

	"github.com/menta2k/spectrai/internal/config"
	"github.com/menta2k/spectrai/pkg/client"
	"github.com/menta2k/spectrai/pkg/llamacpp"
	"github.com/menta2k/spectrai/pkg/ollama"
	"github.com/menta2k/spectrai/pkg/yolo"
)

// Default server URLs per backend
const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultLlamaCPPURL = "http://localhost:8080"
)

// newDetector creates the detector backend selected in cfg. classes are the
// project's label names, used by the vision-model prompts.
func newDetector(cfg *config.Config, classes []string) (client.Detector, error) {
	url := cfg.Detection.URL

	switch cfg.Detection.Backend {
	case "yolo":
		c, err := yolo.NewClient(cfg.Detection.Command, cfg.Detection.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create predictor client: %w", err)
		}
		return c.WithEnv(cfg.Detection.Env...), nil
	case "ollama":
		if url == "" {
			url = defaultOllamaURL
		}
		c, err := ollama.NewClient(url, classes)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		if url == "" {
			url = defaultLlamaCPPURL
		}
		c, err := llamacpp.NewClient(url, classes)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'yolo', 'ollama' or 'llamacpp')", cfg.Detection.Backend)
	}
}
