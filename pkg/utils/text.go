// Package utils provides shared utilities for text, math, and logging.
package utils

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// EstimateTokens returns a rough token count for text: one token per four
// runes, rounded up. Model-agnostic; used for prompt budget packing.
func EstimateTokens(text string) int {
	n := 0
	for range text {
		n++
	}
	return (n + 3) / 4
}
