package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/models"
)

// supportedExtensions are the corpus formats the loader accepts.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".docx": true,
	".xlsx": true,
}

// LoadFailure records a single document that could not be loaded. Ingestion
// continues over the remaining files.
type LoadFailure struct {
	Path string
	Err  error
}

// Loader loads documents from a directory, extracting text per format.
type Loader struct {
	dataDir string
	logger  *zap.Logger // optional
}

// NewLoader creates a loader rooted at dataDir.
func NewLoader(dataDir string, logger *zap.Logger) *Loader {
	return &Loader{dataDir: dataDir, logger: logger}
}

// LoadAll walks the data directory and loads every supported file. Files that
// cannot be read or parsed fail individually and are reported in the failure
// list; the walk itself failing is the only fatal error. Documents are
// returned in deterministic path order; empty documents are dropped.
func (l *Loader) LoadAll(ctx context.Context) ([]models.Document, []LoadFailure, error) {
	var paths []string
	err := filepath.WalkDir(l.dataDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk data directory: %w", err)
	}
	sort.Strings(paths)

	docs := make([]*models.Document, len(paths))
	var (
		mu       sync.Mutex
		failures []LoadFailure
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := l.LoadSingle(path)
			if err != nil {
				mu.Lock()
				failures = append(failures, LoadFailure{Path: path, Err: err})
				mu.Unlock()
				if l.logger != nil {
					l.logger.Warn("failed to load document", zap.String("path", path), zap.Error(err))
				}
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Text) == "" {
			continue
		}
		out = append(out, *doc)
	}
	if l.logger != nil {
		l.logger.Info("documents loaded",
			zap.String("dir", l.dataDir),
			zap.Int("loaded", len(out)),
			zap.Int("failed", len(failures)),
		)
	}
	return out, failures, nil
}

// LoadSingle loads one document from path.
func (l *Loader) LoadSingle(path string) (*models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	text, err := ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ext, err)
	}
	return &models.Document{
		ID:         DocID(path),
		SourcePath: path,
		Text:       text,
		Format:     strings.TrimPrefix(ext, "."),
	}, nil
}

// DocID returns a stable document ID for the given path. The same path always
// yields the same ID, which keeps chunk IDs idempotent across re-ingestion.
func DocID(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return "doc:" + hex.EncodeToString(hash[:8])
}
