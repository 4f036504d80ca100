package embedding

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// NewEmbedder creates an embedder from config. Supported providers:
// "ollama" (default), "onnx" (requires CGO), "mock" (tests/development).
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.CacheSize), nil
	case "onnx":
		emb, err := NewONNXEmbedder(cfg.ModelPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return emb, nil
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: ollama, onnx, mock)", cfg.Provider)
	}
}
