// Package models defines core data structures for documents, chunks, and requests.
package models

// Document represents a loaded source document. Immutable once chunked.
type Document struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
	Text       string `json:"text"`
	Format     string `json:"format"`
}

// Chunk is a bounded slice of a document's text, the atomic unit of retrieval.
// ID is deterministic (document ID + ordinal) so re-ingesting identical input
// yields identical chunk IDs. StartOffset/EndOffset index into the document
// text such that text[StartOffset:EndOffset] == Text.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Ordinal     int    `json:"ordinal"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// ChunkRef is the chunk metadata stored alongside each vector in the index.
// Position i in the vector blob and position i in the metadata blob always
// describe the same chunk.
type ChunkRef struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
}

// RankedChunk is a retrieval hit: a chunk reference with its similarity score
// and 1-based rank.
type RankedChunk struct {
	Rank  int      `json:"rank"`
	Score float64  `json:"score"`
	Chunk ChunkRef `json:"chunk"`
}
