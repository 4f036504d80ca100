// Package generation produces answers from prompts, serialized through an
// admission gate so only one request occupies the model at a time.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrOverloaded is returned when the gate's queue is full and the
	// request is rejected without waiting.
	ErrOverloaded = errors.New("generation queue full")

	// ErrTimeout is returned when generation exceeds the configured
	// deadline after being admitted.
	ErrTimeout = errors.New("generation timed out")

	// ErrGeneration wraps backend failures during generation.
	ErrGeneration = errors.New("generation failed")
)

// Params control a single generation call.
type Params struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
	ModelID() string
}
