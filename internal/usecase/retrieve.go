package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"priorart/internal/domain"
	"priorart/internal/port"
)

// Retriever answers queries against the current index snapshot: compose
// the query text, embed it once, search, assemble results.
type Retriever struct {
	embedder port.Embedder
	searcher port.Searcher
	timeout  time.Duration

	mu sync.RWMutex
	ix *domain.Index
}

func NewRetriever(embedder port.Embedder, searcher port.Searcher, timeout time.Duration) *Retriever {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		timeout:  timeout,
	}
}

// SetIndex publishes a snapshot. In-flight retrievals keep the snapshot
// they started with.
func (r *Retriever) SetIndex(ix *domain.Index) {
	r.mu.Lock()
	r.ix = ix
	r.mu.Unlock()
}

func (r *Retriever) index() *domain.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ix
}

// Retrieve returns the k most similar chunks to the query. The query
// embedding is attempted exactly once; provider failures propagate to
// the caller rather than being retried.
func (r *Retriever) Retrieve(ctx context.Context, q domain.Query, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", domain.ErrConfiguration, k)
	}

	text, err := q.Text()
	if err != nil {
		return nil, err
	}

	ix := r.index()
	if ix == nil {
		return nil, fmt.Errorf("%w: no index snapshot loaded", domain.ErrNotIndexed)
	}
	if ix.Len() == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	vector, err := r.embedder.Embed(callCtx, text)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.searcher.Search(ix, vector, k)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		rec, ok := ix.Record(hit.ChunkID)
		if !ok {
			continue
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:     rec.ChunkID,
			SourceID:    rec.SourceID,
			StartOffset: rec.StartOffset,
			Score:       hit.Score,
			Text:        rec.Text,
			Metadata:    rec.Metadata,
		})
	}
	return results, nil
}
