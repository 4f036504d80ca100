// Package embedding provides text embedding with pluggable backends and caching.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when a text is empty after whitespace trimming.
// Callers must filter empties before embedding.
var ErrEmptyInput = errors.New("embedding: empty input text")

// Embedder produces L2-normalized vector embeddings for text. Implementations
// are deterministic for a fixed model: identical text always yields an
// identical vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}

// checkInputs rejects any text that is empty after trimming. Returns the
// offending index in the error.
func checkInputs(texts []string) error {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("text %d: %w", i, ErrEmptyInput)
		}
	}
	return nil
}
