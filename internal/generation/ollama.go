package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGenerator generates answers through a local Ollama server. It holds
// no state of its own; serialization is the gate's job.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaGenerator creates a generator for the given Ollama server and
// model. The HTTP client carries no timeout of its own; deadlines come from
// the request context.
func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	return &OllamaGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends the prompt to Ollama and returns the completed answer.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"num_predict": params.MaxNewTokens,
			"temperature": params.Temperature,
			"top_p":       params.TopP,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGeneration, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, bytes.TrimSpace(body))
	}
	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	answer := strings.TrimSpace(genResp.Response)
	if answer == "" {
		return "", fmt.Errorf("%w: empty response after %s", ErrGeneration, time.Since(start).Round(time.Millisecond))
	}
	return answer, nil
}

// ModelID reports the Ollama model name.
func (g *OllamaGenerator) ModelID() string {
	return "ollama/" + g.model
}
