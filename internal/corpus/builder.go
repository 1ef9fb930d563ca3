package corpus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/vector"
	"github.com/apolo-agent/backend/pkg/logger"
)

// Embedder converts text into a fixed-dimension vector. Satisfied by
// llm.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Builder struct {
	embedder     Embedder
	dim          int
	chunkSize    int
	maxParagraph int
	workers      int
	rateInterval time.Duration
}

type BuilderConfig struct {
	ChunkSize    int
	MaxParagraph int
	Workers      int
	RateInterval time.Duration
}

type ChunkFailure struct {
	ChunkID int64  `json:"chunk_id"`
	Reason  string `json:"reason"`
}

type BuildReport struct {
	TotalChunks int            `json:"total_chunks"`
	Succeeded   int            `json:"succeeded"`
	Failures    []ChunkFailure `json:"failures,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func NewBuilder(embedder Embedder, dim int, cfg BuilderConfig) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = 500 * time.Millisecond
	}
	return &Builder{
		embedder:     embedder,
		dim:          dim,
		chunkSize:    cfg.ChunkSize,
		maxParagraph: cfg.MaxParagraph,
		workers:      cfg.Workers,
		rateInterval: cfg.RateInterval,
	}
}

type buildJob struct {
	chunk vector.Chunk
}

// Build groups paragraphs into chunks, embeds each chunk, and assembles a
// queryable index. Each embedding call is independent: a failed chunk is
// recorded in the report and skipped, and the build errors only when not a
// single chunk succeeded. Embedding calls run across a bounded worker pool;
// a shared ticker keeps the aggregate call rate below upstream quotas. Each
// worker accumulates into its own sub-index and the sub-indexes are merged
// once all workers have finished.
func (b *Builder) Build(ctx context.Context, paragraphs []string, sourceRef string) (*vector.Index, *BuildReport, error) {
	start := time.Now()

	paragraphs = NormalizeParagraphs(paragraphs, b.maxParagraph)
	texts := GroupParagraphs(paragraphs, b.chunkSize)

	jobs := make([]buildJob, len(texts))
	for i, text := range texts {
		jobs[i] = buildJob{chunk: vector.Chunk{
			ID:        int64(i),
			Text:      text,
			SourceRef: sourceRef,
		}}
	}

	index, report, err := b.embedAll(ctx, jobs)
	if err != nil {
		return nil, nil, err
	}
	report.Duration = time.Since(start)

	logger.Info("Corpus build finished",
		zap.String("source", sourceRef),
		zap.Int("chunks", report.TotalChunks),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)

	return index, report, nil
}

func (b *Builder) embedAll(ctx context.Context, jobs []buildJob) (*vector.Index, *BuildReport, error) {
	report := &BuildReport{TotalChunks: len(jobs)}

	index, err := vector.New(b.dim)
	if err != nil {
		return nil, nil, err
	}
	if len(jobs) == 0 {
		return index, report, nil
	}

	limiter := time.NewTicker(b.rateInterval)
	defer limiter.Stop()

	jobCh := make(chan buildJob)
	var mu sync.Mutex
	var wg sync.WaitGroup
	subIndexes := make([]*vector.Index, 0, b.workers)

	for w := 0; w < b.workers; w++ {
		sub, err := vector.New(b.dim)
		if err != nil {
			return nil, nil, err
		}
		subIndexes = append(subIndexes, sub)

		wg.Add(1)
		go func(sub *vector.Index) {
			defer wg.Done()
			for job := range jobCh {
				select {
				case <-ctx.Done():
					mu.Lock()
					report.Failures = append(report.Failures, ChunkFailure{
						ChunkID: job.chunk.ID,
						Reason:  ctx.Err().Error(),
					})
					mu.Unlock()
					continue
				case <-limiter.C:
				}

				embedding, err := b.embedder.Embed(ctx, job.chunk.Text)
				if err != nil {
					logger.Warn("Chunk embedding failed",
						zap.Int64("chunk_id", job.chunk.ID),
						zap.Error(err),
					)
					mu.Lock()
					report.Failures = append(report.Failures, ChunkFailure{
						ChunkID: job.chunk.ID,
						Reason:  err.Error(),
					})
					mu.Unlock()
					continue
				}

				if err := sub.Insert(job.chunk, embedding); err != nil {
					mu.Lock()
					report.Failures = append(report.Failures, ChunkFailure{
						ChunkID: job.chunk.ID,
						Reason:  err.Error(),
					})
					mu.Unlock()
				}
			}
		}(sub)
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	for _, sub := range subIndexes {
		if err := index.Merge(sub); err != nil {
			return nil, nil, err
		}
	}

	report.Succeeded = index.Len()
	if report.Succeeded == 0 {
		return nil, nil, fmt.Errorf("corpus build failed: all %d chunks failed to embed", report.TotalChunks)
	}
	return index, report, nil
}

// BuildFromListings embeds one chunk per structured listing, using the
// combined listing text, and returns the metadata table to persist alongside
// the index. Listings without a description or address carry no retrievable
// signal and are filtered out.
func (b *Builder) BuildFromListings(ctx context.Context, listings []Listing) (*vector.Index, []ListingMeta, *BuildReport, error) {
	var jobs []buildJob
	var metas []ListingMeta

	var id int64
	for _, l := range listings {
		if l.Description == "" || l.Address == "" {
			continue
		}
		jobs = append(jobs, buildJob{chunk: vector.Chunk{
			ID:        id,
			Text:      l.CombinedText(),
			SourceRef: l.URL,
			Meta: map[string]string{
				"title":   l.Title,
				"price":   l.Price,
				"address": l.Address,
			},
		}})
		metas = append(metas, l.Meta())
		id++
	}

	start := time.Now()
	index, report, err := b.embedAll(ctx, jobs)
	if err != nil {
		return nil, nil, nil, err
	}
	report.Duration = time.Since(start)

	logger.Info("Listing corpus build finished",
		zap.Int("listings", len(listings)),
		zap.Int("indexed", report.Succeeded),
		zap.Int("failed", len(report.Failures)),
	)

	return index, metas, report, nil
}
