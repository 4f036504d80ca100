package models

import "time"

// Request statuses recorded in the request log.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RequestLogEntry records one served ask request. Appended, never mutated.
type RequestLogEntry struct {
	RequestID       string    `json:"request_id"`
	Timestamp       time.Time `json:"timestamp"`
	Question        string    `json:"question"`
	LatencySeconds  float64   `json:"latency_seconds"`
	Status          string    `json:"status"`
	ChunksRetrieved int       `json:"chunks_retrieved,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// RequestStats is the running aggregate over all request log appends,
// maintained incrementally (O(1) per append).
type RequestStats struct {
	TotalQueries      int     `json:"total_queries"`
	TotalErrors       int     `json:"total_errors"`
	ErrorRate         float64 `json:"error_rate"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
}

// MetricsResponse aggregates request stats and recent history.
type MetricsResponse struct {
	UptimeSeconds  float64           `json:"uptime_seconds"`
	Stats          RequestStats      `json:"stats"`
	RecentRequests []RequestLogEntry `json:"recent_requests"`
	IndexSize      int               `json:"index_size"`
	Model          ModelInfo         `json:"model"`
}

// ModelInfo describes the configured generation capability.
type ModelInfo struct {
	Model       string `json:"model"`
	ModelLoaded bool   `json:"model_loaded"`
	IndexBuilt  bool   `json:"index_built"`
}
