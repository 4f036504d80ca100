package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/pkg/utils"
)

// OllamaEmbedder produces embeddings via a local Ollama server.
// Deterministic for a fixed model version: Ollama embedding inference carries
// no sampling.
type OllamaEmbedder struct {
	baseURL string
	model   string
	cache   *Cache
	client  *http.Client

	mu         sync.Mutex
	dimensions int
}

// NewOllamaEmbedder creates an Ollama-backed embedder. dimensions is the
// expected vector size and is validated against the first response; cacheSize
// bounds the LRU embedding cache.
func NewOllamaEmbedder(baseURL, model string, dimensions, cacheSize int) *OllamaEmbedder {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		cache:      NewCache(cacheSize),
		client:     &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the L2-normalized embedding for text, using the cache when
// available.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInputs([]string{text}); err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding error %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("model %s returned empty embedding", e.model)
	}
	if err := e.checkDimensions(len(parsed.Embedding)); err != nil {
		return nil, err
	}

	utils.NormalizeL2(parsed.Embedding)
	e.cache.Set(text, parsed.Embedding)
	return parsed.Embedding, nil
}

// EmbedBatch embeds each text in order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInputs(texts); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// checkDimensions validates the response size against the configured
// dimension, adopting it from the first response when unconfigured.
func (e *OllamaEmbedder) checkDimensions(got int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimensions > 0 && got != e.dimensions {
		return fmt.Errorf("model %s returned %d dimensions, configured %d", e.model, got, e.dimensions)
	}
	if e.dimensions == 0 {
		e.dimensions = got
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimensions
}

// ModelID identifies the embedding model for index compatibility checks.
func (e *OllamaEmbedder) ModelID() string {
	return "ollama/" + e.model
}

// Close is a no-op for OllamaEmbedder.
func (e *OllamaEmbedder) Close() error {
	return nil
}
