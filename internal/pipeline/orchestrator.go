// Package pipeline wires ingestion, retrieval, and generation into the
// question-answering flow.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// noContextAnswer is returned without invoking the model when retrieval
// finds nothing relevant.
const noContextAnswer = "I could not find relevant information in the indexed documents to answer this question. " +
	"Please consult a qualified healthcare professional."

// embedBatchSize bounds how many chunk texts go to the embedder at once
// during index builds.
const embedBatchSize = 32

// Orchestrator owns the end-to-end ask flow. Components are initialized
// lazily on first use so the server starts fast; the embedder and generator
// each load at most once.
type Orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	startedAt time.Time

	loader  *ingest.Loader
	chunker *ingest.Chunker
	prompts *prompt.Builder
	gate    *generation.Gate

	collector *metrics.Collector
	audit     *storage.AuditStore

	embedOnce sync.Once
	embedErr  error
	embedder  embedding.Embedder

	indexOnce  sync.Once
	indexErrMu sync.Mutex
	indexErr   error
	index      *vector.Index
	retriever  *retrieval.Retriever

	genOnce   sync.Once
	genErr    error
	generator generation.Generator

	rebuildMu   sync.Mutex
	indexReady  atomic.Bool
	modelLoaded atomic.Bool
}

// Option overrides a lazily-constructed component, mainly for tests and
// offline runs.
type Option func(*Orchestrator)

// WithEmbedder injects an embedder instead of building one from config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *Orchestrator) { o.embedder = e }
}

// WithGenerator injects a generation backend. The gate and timeout still
// wrap it.
func WithGenerator(g generation.Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithAuditStore injects an opened audit store.
func WithAuditStore(s *storage.AuditStore) Option {
	return func(o *Orchestrator) { o.audit = s }
}

// New creates an orchestrator from config. Chunking parameters are validated
// here; model-backed components load on first use.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	chunker, err := ingest.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}
	o := &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		loader:    ingest.NewLoader(cfg.Storage.DataDir, logger),
		chunker:   chunker,
		prompts:   prompt.NewBuilder(cfg.Generation.TokenBudget),
		gate:      generation.NewGate(cfg.Generation.QueueCapacity),
		collector: metrics.NewCollector(metrics.DefaultCapacity),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.audit == nil && cfg.Storage.DatabasePath != "" {
		store, err := storage.NewAuditStore(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		o.audit = store
	}
	return o, nil
}

func (o *Orchestrator) ensureEmbedder() error {
	o.embedOnce.Do(func() {
		if o.embedder != nil {
			return
		}
		o.embedder, o.embedErr = embedding.NewEmbedder(&o.cfg.Embedding)
	})
	return o.embedErr
}

// ensureIndex creates the index bound to the embedder's model and loads the
// persisted artifact when one exists. A missing artifact is not an error; a
// corrupt or model-mismatched one is reported on every call until a forced
// rebuild replaces it.
func (o *Orchestrator) ensureIndex() error {
	if err := o.ensureEmbedder(); err != nil {
		return err
	}
	o.indexOnce.Do(func() {
		o.index = vector.NewIndex(o.embedder.ModelID())
		o.retriever = retrieval.NewRetriever(o.embedder, o.index, o.logger)
		path := o.cfg.Storage.IndexPath
		if path == "" {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		if err := o.index.Load(path); err != nil {
			o.logger.Error("persisted index unusable, forced rebuild required",
				zap.String("path", path), zap.Error(err))
			o.setIndexErr(fmt.Errorf("load persisted index: %w", err))
			return
		}
		o.indexReady.Store(o.index.Size() > 0)
		o.logger.Info("index loaded",
			zap.String("path", path), zap.Int("size", o.index.Size()))
	})
	o.indexErrMu.Lock()
	defer o.indexErrMu.Unlock()
	return o.indexErr
}

func (o *Orchestrator) setIndexErr(err error) {
	o.indexErrMu.Lock()
	o.indexErr = err
	o.indexErrMu.Unlock()
}

func (o *Orchestrator) ensureGenerator() error {
	o.genOnce.Do(func() {
		inner := o.generator
		if inner == nil {
			inner, o.genErr = generation.NewGenerator(&o.cfg.Generation)
			if o.genErr != nil {
				return
			}
		}
		o.generator = generation.NewGatedGenerator(inner, o.gate, o.cfg.Generation.Timeout())
		o.modelLoaded.Store(true)
	})
	return o.genErr
}

// BuildIndex loads the corpus, chunks and embeds it, and atomically swaps
// the result into the live index. When the index is already populated and
// force is false, the build is skipped. Returns the number of indexed chunks.
func (o *Orchestrator) BuildIndex(ctx context.Context, force bool) (int, error) {
	if err := o.ensureEmbedder(); err != nil {
		return 0, err
	}
	if err := o.ensureIndex(); err != nil && !force {
		// A bad artifact stays a hard error until a forced rebuild replaces it.
		return 0, err
	}
	o.rebuildMu.Lock()
	defer o.rebuildMu.Unlock()

	if !force && o.index.Size() > 0 {
		o.logger.Info("index already built, skipping", zap.Int("size", o.index.Size()))
		return o.index.Size(), nil
	}

	start := time.Now()
	docs, failures, err := o.loader.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}
	for _, f := range failures {
		o.logger.Warn("document skipped", zap.String("path", f.Path), zap.Error(f.Err))
	}

	var chunks []models.Chunk
	for i := range docs {
		chunks = append(chunks, o.chunker.Chunk(&docs[i])...)
	}
	sources := make(map[string]string, len(docs))
	for _, doc := range docs {
		sources[doc.ID] = doc.SourcePath
	}

	entries := make([]vector.Entry, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += embedBatchSize {
		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vecs, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks %d-%d: %w", batchStart, batchEnd-1, err)
		}
		for i, ch := range batch {
			entries = append(entries, vector.Entry{
				Vector: vecs[i],
				Meta: models.ChunkRef{
					ChunkID:    ch.ID,
					DocumentID: ch.DocumentID,
					Source:     sources[ch.DocumentID],
					Ordinal:    ch.Ordinal,
					Text:       ch.Text,
				},
			})
		}
	}

	if err := o.index.Rebuild(entries); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	o.setIndexErr(nil)
	if path := o.cfg.Storage.IndexPath; path != "" {
		if err := o.index.Save(path); err != nil {
			return 0, fmt.Errorf("persist index: %w", err)
		}
	}
	o.indexReady.Store(len(entries) > 0)
	o.logger.Info("index built",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(entries)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return len(entries), nil
}

// Ask answers a question, optionally grounded in retrieved context. Every
// request is recorded in the metrics ring and the audit store, including
// failures.
func (o *Orchestrator) Ask(ctx context.Context, req *models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	requestID := uuid.NewString()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, retrieved, err := o.answer(ctx, req)
	entry := models.RequestLogEntry{
		RequestID:       requestID,
		Timestamp:       start,
		Question:        utils.Truncate(req.Question, 500),
		LatencySeconds:  time.Since(start).Seconds(),
		Status:          models.StatusOK,
		ChunksRetrieved: retrieved,
	}
	if err != nil {
		entry.Status = models.StatusError
		entry.ErrorMessage = err.Error()
	}
	o.record(ctx, &entry)
	if err != nil {
		return nil, err
	}
	resp.ProcessingTimeSeconds = entry.LatencySeconds
	return resp, nil
}

func (o *Orchestrator) answer(ctx context.Context, req *models.AskRequest) (*models.AskResponse, int, error) {
	question := strings.TrimSpace(req.Question)

	var (
		ranked []models.RankedChunk
		err    error
	)
	if req.UseRAGOrDefault() {
		if err := o.ensureIndex(); err != nil {
			return nil, 0, err
		}
		ranked, err = o.retriever.Retrieve(ctx, question, req.TopK, o.cfg.Retrieval.ScoreThreshold)
		if err != nil {
			return nil, 0, fmt.Errorf("retrieve: %w", err)
		}
		if len(ranked) == 0 {
			// Nothing to ground an answer in: answer without touching the
			// model at all.
			return &models.AskResponse{
				Answer:     noContextAnswer,
				Sources:    []string{},
				Disclaimer: models.Disclaimer,
			}, 0, nil
		}
	}

	var (
		promptText string
		sources    []string
	)
	if req.UseRAGOrDefault() {
		promptText, sources = o.prompts.Build(question, ranked)
	} else {
		promptText = o.prompts.BuildWithoutContext(question)
	}

	if err := o.ensureGenerator(); err != nil {
		return nil, len(ranked), err
	}
	params := generation.Params{
		MaxNewTokens: o.cfg.Generation.MaxNewTokens,
		Temperature:  o.cfg.Generation.Temperature,
		TopP:         o.cfg.Generation.TopP,
	}
	if req.MaxNewTokens > 0 {
		params.MaxNewTokens = req.MaxNewTokens
	}
	answer, err := o.generator.Generate(ctx, promptText, params)
	if err != nil {
		return nil, len(ranked), err
	}

	if sources == nil {
		sources = []string{}
	}
	return &models.AskResponse{
		Answer:             answer,
		Sources:            sources,
		NumChunksRetrieved: len(ranked),
		Disclaimer:         models.Disclaimer,
	}, len(ranked), nil
}

// Retrieve runs retrieval only, bypassing the generation gate. Intended for
// debugging relevance; not recorded in request metrics.
func (o *Orchestrator) Retrieve(ctx context.Context, req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := o.ensureIndex(); err != nil {
		return nil, err
	}
	ranked, err := o.retriever.Retrieve(ctx, strings.TrimSpace(req.Question), req.TopK, o.cfg.Retrieval.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	if ranked == nil {
		ranked = []models.RankedChunk{}
	}
	return &models.RetrieveResponse{Question: req.Question, Results: ranked}, nil
}

// record appends to the metrics ring and, when configured, the audit store.
// Audit failures are logged, never surfaced to the caller.
func (o *Orchestrator) record(ctx context.Context, entry *models.RequestLogEntry) {
	o.collector.Record(*entry)
	if o.audit == nil {
		return
	}
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Warn("audit append failed",
			zap.String("request_id", entry.RequestID), zap.Error(err))
	}
}

// Health is a cheap read of pipeline state. It never triggers lazy loads.
func (o *Orchestrator) Health() *models.HealthResponse {
	size := 0
	if o.indexReady.Load() && o.index != nil {
		size = o.index.Size()
	}
	return &models.HealthResponse{
		Status:      "healthy",
		IndexSize:   size,
		ModelLoaded: o.modelLoaded.Load(),
	}
}

// Metrics reports uptime, request aggregates, and recent history.
func (o *Orchestrator) Metrics() *models.MetricsResponse {
	size := 0
	if o.indexReady.Load() && o.index != nil {
		size = o.index.Size()
	}
	return &models.MetricsResponse{
		UptimeSeconds:  time.Since(o.startedAt).Seconds(),
		Stats:          o.collector.Stats(),
		RecentRequests: o.collector.Recent(20),
		IndexSize:      size,
		Model: models.ModelInfo{
			Model:       o.cfg.Generation.Model,
			ModelLoaded: o.modelLoaded.Load(),
			IndexBuilt:  size > 0,
		},
	}
}

// Close releases the embedder and audit store.
func (o *Orchestrator) Close() error {
	var firstErr error
	if o.embedder != nil {
		if err := o.embedder.Close(); err != nil {
			firstErr = err
		}
	}
	if o.audit != nil {
		if err := o.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
