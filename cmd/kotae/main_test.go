package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
storage:
  data_dir: ./data
embedding:
  model: nomic-embed-text
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved = %s, want %s", resolved, path)
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("model = %s", cfg.Embedding.Model)
	}
	// Defaults fill the rest.
	if cfg.Chunking.ChunkSize == 0 || cfg.Generation.QueueCapacity == 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}
