package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	vectorsFile = "vectors.json"
	chunksFile  = "chunks.json"
)

type vectorTable struct {
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// Save writes the index into dir as a vector table plus the per-chunk
// text/metadata, creating dir if needed.
func (ix *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}

	ix.mu.RLock()
	table := vectorTable{Dimension: ix.dim, Vectors: ix.vectors}
	chunks := ix.chunks
	ix.mu.RUnlock()

	if err := writeJSON(filepath.Join(dir, vectorsFile), table); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, chunksFile), chunks)
}

// Load reads an index previously written by Save. A missing or unreadable
// directory yields ErrCorpusUnavailable; files that parse but violate the
// index invariants yield ErrCorruptIndex.
func Load(dir string) (*Index, error) {
	var table vectorTable
	if err := readJSON(filepath.Join(dir, vectorsFile), &table); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCorpusUnavailable, dir)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	var chunks []Chunk
	if err := readJSON(filepath.Join(dir, chunksFile), &chunks); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCorpusUnavailable, dir)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	if table.Dimension <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimension %d", ErrCorruptIndex, table.Dimension)
	}
	if len(table.Vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrCorruptIndex, len(table.Vectors), len(chunks))
	}
	for i, v := range table.Vectors {
		if len(v) != table.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrCorruptIndex, i, len(v), table.Dimension)
		}
	}

	ix := &Index{dim: table.Dimension, vectors: table.Vectors, chunks: chunks}
	return ix, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
