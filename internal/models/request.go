package models

import "fmt"

// Disclaimer is returned on every ask response.
const Disclaimer = "DISCLAIMER: This system is for educational and research purposes only. " +
	"It does NOT provide medical advice. Always consult a qualified healthcare professional."

// DefaultTopK is used when a request omits top_k.
const DefaultTopK = 3

// AskRequest is the input for the ask operation.
type AskRequest struct {
	Question     string `json:"question"`
	TopK         int    `json:"top_k,omitempty"`
	MaxNewTokens int    `json:"max_new_tokens,omitempty"`
	UseRAG       *bool  `json:"use_rag,omitempty"`
}

// Validate checks the request and fills defaults. Missing top_k defaults to
// DefaultTopK; an explicit non-positive top_k is rejected. Question length is
// not validated here beyond non-emptiness; length policy belongs to the
// boundary layer.
func (r *AskRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k must be >= 1, got %d", r.TopK)
	}
	return nil
}

// UseRAGOrDefault reports whether retrieval context should be used; defaults to true.
func (r *AskRequest) UseRAGOrDefault() bool {
	if r.UseRAG != nil {
		return *r.UseRAG
	}
	return true
}

// AskResponse is the output of the ask operation.
type AskResponse struct {
	Answer                string   `json:"answer"`
	Sources               []string `json:"sources"`
	NumChunksRetrieved    int      `json:"num_chunks_retrieved"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	Disclaimer            string   `json:"disclaimer"`
}

// RetrieveRequest is the input for the debug retrieval operation.
type RetrieveRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Validate checks the request and fills defaults.
func (r *RetrieveRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k must be >= 1, got %d", r.TopK)
	}
	return nil
}

// RetrieveResponse is the output of the debug retrieval operation.
type RetrieveResponse struct {
	Question string        `json:"question"`
	Results  []RankedChunk `json:"results"`
}

// IndexRequest is the input for the index-build operation.
type IndexRequest struct {
	Force bool `json:"force,omitempty"`
}

// IndexResponse is the output of the index-build operation.
type IndexResponse struct {
	Status    string `json:"status"`
	NumChunks int    `json:"num_chunks"`
	Message   string `json:"message"`
}

// HealthResponse is a cheap read of pipeline state without side effects.
type HealthResponse struct {
	Status      string `json:"status"`
	IndexSize   int    `json:"index_size"`
	ModelLoaded bool   `json:"model_loaded"`
}
