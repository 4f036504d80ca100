package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/models"
)

// Artifact layout (little endian): magic "KIDX", format version, header
// {dimension, entry count, embedding model ID}, vector blob
// (count*dimension float32), length-prefixed JSON metadata blob. The vector
// blob and metadata blob are position-aligned: entry i of each describes the
// same chunk.
var indexMagic = [4]byte{'K', 'I', 'D', 'X'}

const indexFormatVersion uint32 = 1

// Save persists the index to path. The artifact is written to a temporary
// file and renamed into place so a crash never leaves a truncated index.
func (ix *Index) Save(path string) error {
	ix.mu.Lock()
	snap := ix.snap.Load()
	ix.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeSnapshot(w, snap, ix.modelID); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func writeSnapshot(w io.Writer, snap *snapshot, modelID string) error {
	if _, err := w.Write(indexMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, indexFormatVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(snap.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(snap.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	idBytes := []byte(modelID)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(idBytes))); err != nil {
		return fmt.Errorf("write model id len: %w", err)
	}
	if _, err := w.Write(idBytes); err != nil {
		return fmt.Errorf("write model id: %w", err)
	}
	for _, vec := range snap.vectors {
		if _, err := w.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	metaBytes, err := json.Marshal(snap.meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(metaBytes))); err != nil {
		return fmt.Errorf("write metadata len: %w", err)
	}
	if _, err := w.Write(metaBytes); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Load reads the artifact at path and atomically replaces the index contents.
// An artifact produced by a different embedding model fails with
// ErrModelMismatch; any structural damage fails with ErrCorruptIndex. On
// error the in-memory index is left unchanged.
func (ix *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("read magic: %w: %v", ErrCorruptIndex, err)
	}
	if magic != indexMagic {
		return fmt.Errorf("bad magic %q: %w", magic[:], ErrCorruptIndex)
	}
	var version, dim, count, idLen uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w: %v", ErrCorruptIndex, err)
	}
	if version != indexFormatVersion {
		return fmt.Errorf("unsupported format version %d: %w", version, ErrCorruptIndex)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w: %v", ErrCorruptIndex, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w: %v", ErrCorruptIndex, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
		return fmt.Errorf("read model id len: %w: %v", ErrCorruptIndex, err)
	}
	idBytes := make([]byte, idLen)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return fmt.Errorf("read model id: %w: %v", ErrCorruptIndex, err)
	}
	if string(idBytes) != ix.modelID {
		return fmt.Errorf("artifact built with model %q, configured %q: %w",
			idBytes, ix.modelID, ErrModelMismatch)
	}
	if count > 0 && dim == 0 {
		return fmt.Errorf("artifact has %d entries but zero dimension: %w", count, ErrCorruptIndex)
	}

	vectors := make([][]float32, count)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector %d: %w: %v", i, ErrCorruptIndex, err)
		}
		vectors[i] = bytesToFloat32Slice(buf)
	}
	var metaLen uint32
	if err := binary.Read(r, binary.LittleEndian, &metaLen); err != nil {
		return fmt.Errorf("read metadata len: %w: %v", ErrCorruptIndex, err)
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return fmt.Errorf("read metadata: %w: %v", ErrCorruptIndex, err)
	}
	var meta []models.ChunkRef
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("unmarshal metadata: %w: %v", ErrCorruptIndex, err)
	}
	if uint32(len(meta)) != count {
		return fmt.Errorf("metadata has %d entries, header says %d: %w",
			len(meta), count, ErrCorruptIndex)
	}

	next := &snapshot{dimensions: int(dim), vectors: vectors, meta: meta}
	if count == 0 {
		next.dimensions = 0
	}
	ix.mu.Lock()
	ix.snap.Store(next)
	ix.mu.Unlock()
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
