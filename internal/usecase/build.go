package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"priorart/internal/domain"
	"priorart/internal/logger"
	"priorart/internal/port"
)

// ProgressFunc reports chunks processed so far out of the total. It is
// called from a single goroutine.
type ProgressFunc func(done, total int)

// BuildOptions carries the tunables of an index build. The chunk
// parameters must match the chunker the builder was given; they become
// part of the index fingerprint.
type BuildOptions struct {
	ChunkSize         int
	ChunkOverlap      int
	Concurrency       int
	MaxRetries        int
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Progress          ProgressFunc
}

// Builder turns a corpus into a searchable index snapshot: load, chunk,
// embed concurrently, assemble, persist.
type Builder struct {
	loader   port.CorpusLoader
	chunker  port.Chunker
	embedder port.Embedder
	store    port.Store

	chunkSize    int
	chunkOverlap int
	concurrency  int
	maxRetries   int
	timeout      time.Duration
	limiter      *rate.Limiter
	progress     ProgressFunc
}

// BuildResult summarizes a completed build.
type BuildResult struct {
	Index         *domain.Index
	Documents     int
	ChunksTotal   int
	ChunksDropped int
	Elapsed       time.Duration
}

func NewBuilder(
	loader port.CorpusLoader,
	chunker port.Chunker,
	embedder port.Embedder,
	store port.Store,
	opts BuildOptions,
) (*Builder, error) {
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: embedding concurrency must be positive, got %d", domain.ErrConfiguration, opts.Concurrency)
	}
	if opts.MaxRetries <= 0 {
		return nil, fmt.Errorf("%w: max retries must be positive, got %d", domain.ErrConfiguration, opts.MaxRetries)
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Builder{
		loader:       loader,
		chunker:      chunker,
		embedder:     embedder,
		store:        store,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		concurrency:  opts.Concurrency,
		maxRetries:   opts.MaxRetries,
		timeout:      timeout,
		limiter:      limiter,
		progress:     opts.Progress,
	}, nil
}

// Fingerprint identifies the index this builder would produce. A stored
// snapshot with the same fingerprint can be reused instead of rebuilding.
func (b *Builder) Fingerprint() domain.Fingerprint {
	return domain.Fingerprint{
		Provider:     b.embedder.ProviderID(),
		ChunkSize:    b.chunkSize,
		ChunkOverlap: b.chunkOverlap,
	}
}

// Build indexes the corpus under dir and persists the resulting snapshot.
// Chunks whose embedding keeps failing are dropped with a warning; a
// canceled context aborts the build and leaves any previous snapshot
// untouched.
func (b *Builder) Build(ctx context.Context, dir string) (*BuildResult, error) {
	start := time.Now()

	docs, err := b.loader.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("%w: corpus contains a document with an empty id", domain.ErrConfiguration)
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source id %q in corpus", domain.ErrConfiguration, doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		docChunks, err := b.chunker.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk document %s: %w", doc.ID, err)
		}
		chunks = append(chunks, docChunks...)
	}

	vectors, dropped := b.embedAll(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build aborted: %w", err)
	}
	if len(chunks) > 0 && dropped == len(chunks) {
		return nil, fmt.Errorf("%w: all %d chunks failed to embed, keeping previous snapshot", domain.ErrProvider, len(chunks))
	}

	records := make([]domain.IndexRecord, 0, len(chunks)-dropped)
	for i, chunk := range chunks {
		if vectors[i] == nil {
			continue
		}
		records = append(records, domain.IndexRecord{
			ChunkID:     domain.ChunkID(chunk.SourceID, chunk.StartOffset),
			SourceID:    chunk.SourceID,
			StartOffset: chunk.StartOffset,
			Vector:      vectors[i],
			Text:        chunk.Text,
			Metadata:    chunk.Metadata,
		})
	}

	ix := domain.NewIndex(b.Fingerprint(), records, time.Now())
	if err := b.store.Save(ix); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	elapsed := time.Since(start)
	logger.Info("indexed %d chunks from %d documents (%d dropped) in %s",
		ix.Len(), len(docs), dropped, elapsed.Round(time.Millisecond))

	return &BuildResult{
		Index:         ix,
		Documents:     len(docs),
		ChunksTotal:   len(chunks),
		ChunksDropped: dropped,
		Elapsed:       elapsed,
	}, nil
}

// embedAll fans chunks out to a bounded pool of workers. The returned
// slice is parallel to chunks; a nil vector marks a dropped chunk.
func (b *Builder) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, int) {
	vectors := make([][]float32, len(chunks))
	if len(chunks) == 0 {
		return vectors, 0
	}

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range chunks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu      sync.Mutex
		done    int
		dropped int
		wg      sync.WaitGroup
	)

	workers := b.concurrency
	if workers > len(chunks) {
		workers = len(chunks)
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				chunk := chunks[i]
				vec, err := b.embedChunk(ctx, chunk)

				mu.Lock()
				if err != nil {
					if ctx.Err() == nil {
						dropped++
						logger.Warn("dropping chunk %s/%d after %d attempts: %v",
							chunk.SourceID, chunk.StartOffset, b.maxRetries, err)
					}
				} else {
					vectors[i] = vec
				}
				done++
				if b.progress != nil {
					b.progress(done, len(chunks))
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return vectors, dropped
}

// embedChunk embeds one chunk with bounded retries. Context cancellation
// stops immediately; other failures back off and try again.
func (b *Builder) embedChunk(ctx context.Context, chunk domain.Chunk) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		vec, err := b.embedder.Embed(callCtx, chunk.Text)
		cancel()
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug("embed attempt %d/%d for chunk %s/%d failed: %v",
			attempt+1, b.maxRetries, chunk.SourceID, chunk.StartOffset, err)
	}
	return nil, lastErr
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
