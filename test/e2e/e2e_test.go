package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/server"
)

const e2eDimensions = 128

func e2eConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, doc := range BuildCorpus().Docs {
		if err := os.WriteFile(filepath.Join(dataDir, doc.Filename), []byte(doc.Content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Storage:   config.StorageConfig{DataDir: dataDir, IndexPath: filepath.Join(dir, "index.kidx")},
		Chunking:  config.ChunkingConfig{ChunkSize: 256, ChunkOverlap: 32},
		Embedding: config.EmbeddingConfig{Provider: "mock", Model: "mock", Dimensions: e2eDimensions},
		Retrieval: config.RetrievalConfig{TopK: 3},
		Generation: config.GenerationConfig{
			Provider:       "mock",
			Model:          "e2e-model",
			TimeoutSeconds: 10,
			QueueCapacity:  4,
			MaxNewTokens:   256,
			TokenBudget:    1536,
		},
	}
}

func TestE2E_RetrievalFindsCorrectSources(t *testing.T) {
	cfg := e2eConfig(t)
	p, err := pipeline.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx := context.Background()
	count, err := p.BuildIndex(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("no chunks indexed")
	}

	for _, tc := range BuildCorpus().TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			resp, err := p.Retrieve(ctx, &models.RetrieveRequest{Question: tc.Question})
			if err != nil {
				t.Fatalf("retrieve failed: %v", err)
			}
			if len(resp.Results) == 0 {
				t.Fatal("no results")
			}
			top := resp.Results[0].Chunk.Source
			found := false
			for _, want := range tc.ExpectedFiles {
				if strings.HasSuffix(top, want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("question %q: top source = %s, want one of %v",
					tc.Question, top, tc.ExpectedFiles)
			}
		})
	}
}

func TestE2E_AskThroughHTTP(t *testing.T) {
	cfg := e2eConfig(t)
	p, err := pipeline.New(cfg, zap.NewNop(),
		pipeline.WithGenerator(&generation.MockGenerator{Answer: "Take 200mg to 400mg with food."}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	srv := server.NewServer(p, &cfg.Server, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Build the index over the wire.
	resp, err := http.Post(ts.URL+"/api/v1/index", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status = %d", resp.StatusCode)
	}

	body, _ := json.Marshal(models.AskRequest{Question: "What is the maximum daily ibuprofen dosage?"})
	resp, err = http.Post(ts.URL+"/api/v1/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ask status = %d", resp.StatusCode)
	}
	var askResp models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&askResp); err != nil {
		t.Fatal(err)
	}
	if askResp.Answer == "" || askResp.Disclaimer == "" {
		t.Errorf("incomplete response: %+v", askResp)
	}
	if askResp.NumChunksRetrieved == 0 {
		t.Error("ask did not use retrieved context")
	}

	// Health reflects the built index and loaded model.
	healthResp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer healthResp.Body.Close()
	var health models.HealthResponse
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.IndexSize == 0 || !health.ModelLoaded {
		t.Errorf("health = %+v", health)
	}
}
