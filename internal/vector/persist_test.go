package vector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildIndex(t *testing.T) *Index {
	t.Helper()
	ix := NewIndex("mock")
	err := ix.Add([]Entry{
		{Vector: []float32{1, 0, 0}, Meta: ref("a")},
		{Vector: []float32{0.5, 0.5, 0}, Meta: ref("b")},
		{Vector: []float32{0, 0, 1}, Meta: ref("c")},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.kidx")
	orig := buildIndex(t)
	if err := orig.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewIndex("mock")
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != orig.Size() {
		t.Fatalf("size = %d, want %d", loaded.Size(), orig.Size())
	}
	if loaded.Dimensions() != orig.Dimensions() {
		t.Fatalf("dimensions = %d, want %d", loaded.Dimensions(), orig.Dimensions())
	}

	// Same queries must give same entries, order, and scores.
	queries := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.3, 0.3, 0.9}}
	for _, q := range queries {
		want, err := orig.Search(q, 3)
		if err != nil {
			t.Fatal(err)
		}
		got, err := loaded.Search(q, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(want) {
			t.Fatalf("result count = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].Meta.ChunkID != want[i].Meta.ChunkID || got[i].Score != want[i].Score {
				t.Errorf("query %v rank %d: got (%s, %f), want (%s, %f)",
					q, i+1, got[i].Meta.ChunkID, got[i].Score, want[i].Meta.ChunkID, want[i].Score)
			}
		}
	}
}

func TestLoadModelMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.kidx")
	orig := buildIndex(t)
	if err := orig.Save(path); err != nil {
		t.Fatal(err)
	}

	other := NewIndex("ollama/nomic-embed-text")
	err := other.Load(path)
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}
	if other.Size() != 0 {
		t.Errorf("failed load should leave index unchanged, size = %d", other.Size())
	}
}

func TestLoadCorruptArtifacts(t *testing.T) {
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.kidx")
	if err := buildIndex(t).Save(goodPath); err != nil {
		t.Fatal(err)
	}
	good, err := os.ReadFile(goodPath)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"bad magic", append([]byte("JUNK"), good[4:]...)},
		{"truncated header", good[:10]},
		{"truncated vectors", good[:len(good)/2]},
		{"empty file", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "corrupt.kidx")
			if err := os.WriteFile(path, tt.content, 0600); err != nil {
				t.Fatal(err)
			}
			ix := NewIndex("mock")
			if err := ix.Load(path); !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("expected ErrCorruptIndex, got %v", err)
			}
		})
	}
}

func TestSaveLoadEmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.kidx")
	ix := NewIndex("mock")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded := NewIndex("mock")
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 0 {
		t.Errorf("size = %d, want 0", loaded.Size())
	}
}
