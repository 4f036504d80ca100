package generation

import (
	"context"
	"time"
)

// MockGenerator is a deterministic in-process generator for tests and
// offline runs. It echoes a fixed answer, optionally after a delay.
type MockGenerator struct {
	Answer string
	Delay  time.Duration
	Err    error
}

// Generate returns the configured answer after the configured delay,
// honoring context cancellation while waiting.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Answer != "" {
		return m.Answer, nil
	}
	return "mock answer", nil
}

// ModelID reports the mock backend identifier.
func (m *MockGenerator) ModelID() string {
	return "mock"
}
