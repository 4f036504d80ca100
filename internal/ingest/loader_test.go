package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha document content")
	writeFile(t, dir, "sub/b.md", "beta document content")
	writeFile(t, dir, "skip.bin", "not a supported format")
	writeFile(t, dir, "empty.txt", "   \n  ")
	writeFile(t, dir, "broken.docx", "definitely not a zip archive")

	loader := NewLoader(dir, nil)
	docs, failures, err := loader.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	// Deterministic path order: a.txt before sub/b.md.
	if docs[0].Text != "alpha document content" || docs[1].Text != "beta document content" {
		t.Errorf("unexpected documents: %q, %q", docs[0].Text, docs[1].Text)
	}
	if docs[0].Format != "txt" || docs[1].Format != "md" {
		t.Errorf("formats = %q, %q", docs[0].Format, docs[1].Format)
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if filepath.Base(failures[0].Path) != "broken.docx" {
		t.Errorf("failure path = %s, want broken.docx", failures[0].Path)
	}
}

func TestLoadAll_MissingDirectory(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if _, _, err := loader.LoadAll(context.Background()); err == nil {
		t.Error("expected error for missing data directory")
	}
}

func TestLoadSingle_MissingFile(t *testing.T) {
	loader := NewLoader(t.TempDir(), nil)
	if _, err := loader.LoadSingle(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDocID_Stable(t *testing.T) {
	a := DocID("data/guide.txt")
	if b := DocID("data/guide.txt"); a != b {
		t.Errorf("same path produced different IDs: %s vs %s", a, b)
	}
	if b := DocID("./data/guide.txt"); a != b {
		t.Errorf("cleaned path should match: %s vs %s", a, b)
	}
	if b := DocID("data/other.txt"); a == b {
		t.Error("different paths produced the same ID")
	}
}
