package generation

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// NewGenerator creates the configured generation backend.
func NewGenerator(cfg *config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model), nil
	case "mock":
		return &MockGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
