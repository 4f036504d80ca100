// Package vector provides an in-memory vector index with cosine similarity
// search and a persistent on-disk artifact.
package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

var (
	// ErrDimensionMismatch is returned when a vector's dimension disagrees
	// with the index's established dimension.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
	// ErrCorruptIndex is returned when a persisted artifact cannot be read
	// back consistently.
	ErrCorruptIndex = errors.New("vector: corrupt index artifact")
	// ErrModelMismatch is returned when a persisted artifact was produced by
	// a different embedding model than the one configured.
	ErrModelMismatch = errors.New("vector: embedding model mismatch")
)

// Entry pairs a vector with its chunk metadata.
type Entry struct {
	Vector []float32
	Meta   models.ChunkRef
}

// Result is a single search hit.
type Result struct {
	Score float64
	Meta  models.ChunkRef
}

// snapshot is an immutable view of the index contents. Readers load the
// current snapshot and never observe mutation; writers build a new snapshot
// and swap the pointer.
type snapshot struct {
	dimensions int
	vectors    [][]float32
	meta       []models.ChunkRef
}

// Index stores vectors with parallel chunk metadata: position i in the vector
// slice and position i in the metadata slice always describe the same chunk.
// Search is lock-free against concurrent Add/Rebuild (copy-and-swap); writers
// are serialized by a mutex.
type Index struct {
	modelID string
	mu      sync.Mutex // serializes writers
	snap    atomic.Pointer[snapshot]
}

// NewIndex creates an empty index bound to the given embedding model ID.
// The vector dimension is established by the first Add.
func NewIndex(modelID string) *Index {
	ix := &Index{modelID: modelID}
	ix.snap.Store(&snapshot{})
	return ix
}

// Add appends entries to the index. The first vector added establishes the
// index dimension; any later vector with a different dimension is rejected
// with ErrDimensionMismatch and the index is left unchanged.
func (ix *Index) Add(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.snap.Load()
	dim := cur.dimensions
	if dim == 0 {
		dim = len(entries[0].Vector)
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("entry %d has %d dimensions, index has %d: %w",
				i, len(e.Vector), dim, ErrDimensionMismatch)
		}
	}

	next := &snapshot{
		dimensions: dim,
		vectors:    make([][]float32, 0, len(cur.vectors)+len(entries)),
		meta:       make([]models.ChunkRef, 0, len(cur.meta)+len(entries)),
	}
	next.vectors = append(next.vectors, cur.vectors...)
	next.meta = append(next.meta, cur.meta...)
	for _, e := range entries {
		vec := make([]float32, dim)
		copy(vec, e.Vector)
		next.vectors = append(next.vectors, vec)
		next.meta = append(next.meta, e.Meta)
	}
	ix.snap.Store(next)
	return nil
}

// Rebuild atomically replaces the index contents. Concurrent readers keep the
// previous snapshot until the new one is completely built; no reader ever
// observes a partially-built index.
func (ix *Index) Rebuild(entries []Entry) error {
	next := &snapshot{}
	if len(entries) > 0 {
		dim := len(entries[0].Vector)
		for i, e := range entries {
			if len(e.Vector) != dim {
				return fmt.Errorf("entry %d has %d dimensions, expected %d: %w",
					i, len(e.Vector), dim, ErrDimensionMismatch)
			}
		}
		next.dimensions = dim
		next.vectors = make([][]float32, len(entries))
		next.meta = make([]models.ChunkRef, len(entries))
		for i, e := range entries {
			vec := make([]float32, dim)
			copy(vec, e.Vector)
			next.vectors[i] = vec
			next.meta[i] = e.Meta
		}
	}
	ix.mu.Lock()
	ix.snap.Store(next)
	ix.mu.Unlock()
	return nil
}

// Search returns up to k entries ordered by descending cosine similarity
// (inner product over normalized vectors). Ties are broken by insertion
// order: the earlier-inserted entry ranks first. Searching an empty index
// returns an empty result rather than an error.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	snap := ix.snap.Load()
	if k <= 0 || len(snap.vectors) == 0 {
		return nil, nil
	}
	if len(query) != snap.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(query), snap.dimensions, ErrDimensionMismatch)
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(snap.vectors))
	for i, vec := range snap.vectors {
		scores[i] = scored{pos: i, score: utils.InnerProduct(query, vec)}
	}
	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{Score: scores[i].score, Meta: snap.meta[scores[i].pos]}
	}
	return results, nil
}

// Size returns the number of entries in the index.
func (ix *Index) Size() int {
	return len(ix.snap.Load().vectors)
}

// Dimensions returns the established vector dimension (0 when empty).
func (ix *Index) Dimensions() int {
	return ix.snap.Load().dimensions
}

// ModelID returns the embedding model the index is bound to.
func (ix *Index) ModelID() string {
	return ix.modelID
}
