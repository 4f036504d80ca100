// Package ingest provides document loading, text extraction, and chunking.
package ingest

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// sentenceSeps are tried in order when no paragraph break is found.
var sentenceSeps = []string{". ", ".\n", "? ", "! "}

// Chunker splits document text into overlapping chunks. Sizes are in bytes of
// UTF-8 text; cuts prefer paragraph, then sentence, then word boundaries, and
// fall back to a hard cut only when the window contains no whitespace.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker. Overlap must be positive and smaller than the
// chunk size.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap <= 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in (0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk splits the document text into overlapping chunks with deterministic
// IDs (<docID>_<ordinal>). Identical input always yields identical chunks.
// A document shorter than the chunk size yields exactly one chunk; empty or
// whitespace-only text yields none.
func (c *Chunker) Chunk(doc *models.Document) []models.Chunk {
	text := doc.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []models.Chunk
	ordinal := 0
	start := 0
	for start < len(text) {
		end := start + c.chunkSize
		if end >= len(text) {
			c.appendChunk(&chunks, doc, &ordinal, text, start, len(text))
			break
		}
		split := c.findSplitPoint(text, start, end)
		c.appendChunk(&chunks, doc, &ordinal, text, start, split)

		next := split - c.chunkOverlap
		if next <= start {
			// Overlap would not advance; skip it to guarantee progress.
			next = split
		}
		start = next
	}
	return chunks
}

// appendChunk trims surrounding whitespace (adjusting offsets so that
// text[start:end] == chunk text) and appends the chunk if non-empty.
func (c *Chunker) appendChunk(chunks *[]models.Chunk, doc *models.Document, ordinal *int, text string, start, end int) {
	start, end = trimOffsets(text, start, end)
	if start >= end {
		return
	}
	*chunks = append(*chunks, models.Chunk{
		ID:          ChunkID(doc.ID, *ordinal),
		DocumentID:  doc.ID,
		Ordinal:     *ordinal,
		Text:        text[start:end],
		StartOffset: start,
		EndOffset:   end,
	})
	*ordinal++
}

// findSplitPoint returns the best cut position in (start, end], preferring
// paragraph > sentence > word boundaries within the back half of the window.
func (c *Chunker) findSplitPoint(text string, start, end int) int {
	lower := start + c.chunkSize/2
	window := text[lower:end]

	if i := strings.LastIndex(window, "\n\n"); i != -1 {
		return lower + i + 2
	}
	for _, sep := range sentenceSeps {
		if i := strings.LastIndex(window, sep); i != -1 {
			return lower + i + len(sep)
		}
	}
	if i := strings.LastIndexByte(window, ' '); i != -1 {
		return lower + i + 1
	}
	return end
}

// trimOffsets narrows [start, end) past leading and trailing whitespace,
// advancing by whole runes so multi-byte characters are never split.
func trimOffsets(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

// ChunkID returns the deterministic chunk ID for a document and ordinal.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", docID, ordinal)
}
