// Package retrieval ranks index entries against a natural-language question.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Retriever embeds a question and ranks vector index entries by cosine
// similarity. Read-only against the index; safe for unlimited concurrency.
type Retriever struct {
	embedder embedding.Embedder
	index    *vector.Index
	logger   *zap.Logger // optional
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder embedding.Embedder, index *vector.Index, logger *zap.Logger) *Retriever {
	return &Retriever{embedder: embedder, index: index, logger: logger}
}

// Retrieve returns up to topK chunks ranked by descending similarity.
// topK must be >= 1; asking for more entries than the index holds returns all
// available entries. Entries scoring strictly below scoreThreshold are
// filtered out; a threshold of 0 disables filtering.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, scoreThreshold float64) ([]models.RankedChunk, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}
	question = strings.TrimSpace(question)

	queryVec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	results, err := r.index.Search(queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	ranked := make([]models.RankedChunk, 0, len(results))
	for _, res := range results {
		if scoreThreshold > 0 && res.Score < scoreThreshold {
			continue
		}
		ranked = append(ranked, models.RankedChunk{
			Rank:  len(ranked) + 1,
			Score: res.Score,
			Chunk: res.Meta,
		})
	}
	if r.logger != nil {
		r.logger.Debug("retrieved chunks",
			zap.String("question", utils.Truncate(question, 50)),
			zap.Int("top_k", topK),
			zap.Int("returned", len(ranked)),
		)
	}
	return ranked, nil
}
