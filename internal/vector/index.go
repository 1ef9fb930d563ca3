package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrCorpusUnavailable means the index directory is missing or unreadable.
	// Fatal at startup: the service must not serve without a corpus.
	ErrCorpusUnavailable = errors.New("corpus index unavailable")

	// ErrCorruptIndex means the persisted files deserialized but violate the
	// index invariants (empty vectors, cardinality or dimension mismatch).
	ErrCorruptIndex = errors.New("corpus index corrupt")
)

// Chunk is one retrievable unit of corpus text. Immutable once built.
type Chunk struct {
	ID        int64             `json:"id"`
	Text      string            `json:"text"`
	SourceRef string            `json:"source_ref"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Index maps chunk ids to (embedding, chunk) pairs and answers k-NN queries
// by cosine similarity. Built once offline, then loaded read-only by the
// serving process; Query takes no locks beyond a read lock, so any number of
// concurrent readers is safe as long as nothing inserts during serving.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	chunks  []Chunk
}

func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dim)
	}
	return &Index{dim: dim}, nil
}

func (ix *Index) Dimension() int {
	return ix.dim
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

func (ix *Index) Insert(chunk Chunk, embedding []float32) error {
	if len(embedding) != ix.dim {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d", len(embedding), ix.dim)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = append(ix.vectors, embedding)
	ix.chunks = append(ix.chunks, chunk)
	return nil
}

// Merge unions other's entries into ix. Chunk ids are build-scoped
// incrementing integers, so collisions are not resolved.
func (ix *Index) Merge(other *Index) error {
	if other == nil {
		return nil
	}
	if other.dim != ix.dim {
		return fmt.Errorf("cannot merge index of dimension %d into dimension %d", other.dim, ix.dim)
	}
	other.mu.RLock()
	vectors := other.vectors
	chunks := other.chunks
	other.mu.RUnlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = append(ix.vectors, vectors...)
	ix.chunks = append(ix.chunks, chunks...)
	return nil
}

// Query returns up to min(k, Len()) results ordered by descending cosine
// similarity. The query vector must use the same metric and dimension the
// index was built with; a dimension mismatch is a caller error.
func (ix *Index) Query(vec []float32, k int) ([]SearchResult, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vec), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]SearchResult, 0, len(ix.chunks))
	for i := range ix.vectors {
		results = append(results, SearchResult{
			Chunk: ix.chunks[i],
			Score: cosine(ix.vectors[i], vec),
		})
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
