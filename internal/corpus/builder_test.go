package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder hashes text into a deterministic vector so neighbor checks
// are reproducible without a live provider.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  func(text string) bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail != nil && f.fail(text) {
		return nil, errors.New("simulated embedding outage")
	}

	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r)
	}
	return vec, nil
}

func testBuilderConfig() BuilderConfig {
	return BuilderConfig{
		ChunkSize:    4,
		MaxParagraph: 2000,
		Workers:      2,
		RateInterval: time.Millisecond,
	}
}

func paragraphsN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Párrafo número %d del documento.", i)
	}
	return out
}

func TestBuildChunkCount(t *testing.T) {
	embedder := &fakeEmbedder{}
	b := NewBuilder(embedder, 4, testBuilderConfig())

	index, report, err := b.Build(context.Background(), paragraphsN(9), "doc.docx")
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalChunks, "9 paragraphs at size 4 give 3 chunks")
	assert.Equal(t, 3, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 3, index.Len())
	assert.Equal(t, 3, embedder.calls, "one embedding call per chunk")
}

func TestBuildPartialFailure(t *testing.T) {
	embedder := &fakeEmbedder{
		fail: func(text string) bool {
			return strings.Contains(text, "número 0")
		},
	}
	b := NewBuilder(embedder, 4, testBuilderConfig())

	index, report, err := b.Build(context.Background(), paragraphsN(9), "doc.docx")
	require.NoError(t, err, "a failed chunk must not fail the build")

	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(0), report.Failures[0].ChunkID)
	assert.Equal(t, 2, index.Len())
}

func TestBuildAllChunksFailed(t *testing.T) {
	embedder := &fakeEmbedder{fail: func(string) bool { return true }}
	b := NewBuilder(embedder, 4, testBuilderConfig())

	_, _, err := b.Build(context.Background(), paragraphsN(5), "doc.docx")
	assert.Error(t, err, "zero successful chunks is a build failure")
}

func TestBuildEmptyInput(t *testing.T) {
	b := NewBuilder(&fakeEmbedder{}, 4, testBuilderConfig())

	index, report, err := b.Build(context.Background(), nil, "doc.docx")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalChunks)
	assert.Equal(t, 0, index.Len())
}

func TestBuildEndToEndRetrieval(t *testing.T) {
	b := NewBuilder(&fakeEmbedder{}, 4, testBuilderConfig())

	paragraphs := []string{
		"El bisel se talla con una fresa de diamante.",
		"La segunda fase requiere pulido fino.",
		"Los materiales incluyen cerámica y composite.",
		"El acabado final se verifica con lupa.",
		"Otro tema sin relación aparece después.",
	}
	index, _, err := b.Build(context.Background(), paragraphs, "doc.docx")
	require.NoError(t, err)
	require.Equal(t, 2, index.Len())

	// The fake embedder is deterministic, so querying with the embedding of
	// chunk text itself must return that chunk first.
	embedder := &fakeEmbedder{}
	chunkText := strings.Join(paragraphs[:4], "\n")
	vec, err := embedder.Embed(context.Background(), chunkText)
	require.NoError(t, err)

	results, err := index.Query(vec, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), results[0].Chunk.ID)
	assert.Equal(t, chunkText, results[0].Chunk.Text)
}

func TestBuildFromListingsFiltersIncomplete(t *testing.T) {
	b := NewBuilder(&fakeEmbedder{}, 4, testBuilderConfig())

	listings := []Listing{
		{Title: "Casa centro", Price: "$100,000", Address: "Calle 1", Description: "Amplia casa."},
		{Title: "Sin descripción", Price: "$90,000", Address: "Calle 2"},
		{Title: "Sin dirección", Price: "$80,000", Description: "Bonito depto."},
		{Title: "Depto norte", Price: "$120,000", Address: "Calle 3", Description: "Luminoso."},
	}

	index, metas, report, err := b.BuildFromListings(context.Background(), listings)
	require.NoError(t, err)

	assert.Equal(t, 2, index.Len())
	require.Len(t, metas, 2)
	assert.Equal(t, "Casa centro", metas[0].Title)
	assert.Equal(t, "Depto norte", metas[1].Title)
	assert.Equal(t, 2, report.TotalChunks)
}
