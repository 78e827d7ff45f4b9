package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"priorart/internal/domain"
)

type countingRetriever struct {
	mu      sync.Mutex
	calls   int
	results []domain.RetrievalResult
	err     error
}

func (r *countingRetriever) SetIndex(ix *domain.Index) {}

func (r *countingRetriever) Retrieve(ctx context.Context, q domain.Query, k int) ([]domain.RetrievalResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.results, r.err
}

func (r *countingRetriever) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestCachedRetrieverServesRepeatQueries(t *testing.T) {
	inner := &countingRetriever{results: []domain.RetrievalResult{{ChunkID: "a", Score: 0.9}}}
	cached := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	q := domain.RawText("video encoder")
	for i := 0; i < 3; i++ {
		results, err := cached.Retrieve(context.Background(), q, 5)
		if err != nil {
			t.Fatalf("Retrieve %d: %v", i, err)
		}
		if len(results) != 1 || results[0].ChunkID != "a" {
			t.Fatalf("Retrieve %d returned %+v", i, results)
		}
	}

	if got := inner.callCount(); got != 1 {
		t.Errorf("inner retriever called %d times, want 1", got)
	}
}

func TestCachedRetrieverKeysOnQueryAndK(t *testing.T) {
	inner := &countingRetriever{results: []domain.RetrievalResult{{ChunkID: "a"}}}
	cached := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	calls := []struct {
		q domain.Query
		k int
	}{
		{domain.RawText("one"), 5},
		{domain.RawText("two"), 5},
		{domain.RawText("one"), 3},
		{domain.RawText("one"), 5},
	}
	for _, c := range calls {
		if _, err := cached.Retrieve(context.Background(), c.q, c.k); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
	}

	if got := inner.callCount(); got != 3 {
		t.Errorf("inner retriever called %d times, want 3 (one per distinct key)", got)
	}
}

func TestCachedRetrieverInvalidatesOnPublish(t *testing.T) {
	inner := &countingRetriever{results: []domain.RetrievalResult{{ChunkID: "a"}}}
	cached := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	q := domain.RawText("video encoder")
	if _, err := cached.Retrieve(context.Background(), q, 5); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	fp := domain.Fingerprint{Provider: "mock", ChunkSize: 400, ChunkOverlap: 100}
	cached.SetIndex(domain.NewIndex(fp, nil, time.Now()))

	if _, err := cached.Retrieve(context.Background(), q, 5); err != nil {
		t.Fatalf("Retrieve after publish: %v", err)
	}
	if got := inner.callCount(); got != 2 {
		t.Errorf("inner retriever called %d times, want 2 after invalidation", got)
	}
}

func TestCachedRetrieverSkipsErrors(t *testing.T) {
	inner := &countingRetriever{err: fmt.Errorf("%w: down", domain.ErrProvider)}
	cached := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))

	q := domain.RawText("video encoder")
	for i := 0; i < 2; i++ {
		if _, err := cached.Retrieve(context.Background(), q, 5); err == nil {
			t.Fatalf("Retrieve %d: expected error", i)
		}
	}

	if got := inner.callCount(); got != 2 {
		t.Errorf("inner retriever called %d times, want 2 (failures are not cached)", got)
	}
}

func TestQueryCacheEvictsOldest(t *testing.T) {
	c := NewQueryCache(2, time.Minute)

	c.Put("first", 5, nil)
	c.Put("second", 5, nil)
	c.Put("third", 5, nil)

	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
	if _, hit := c.Get("first", 5); hit {
		t.Error("oldest entry should have been evicted")
	}
	if _, hit := c.Get("third", 5); !hit {
		t.Error("newest entry missing")
	}
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, 10*time.Millisecond)

	c.Put("query", 5, []domain.RetrievalResult{{ChunkID: "a"}})
	if _, hit := c.Get("query", 5); !hit {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(20 * time.Millisecond)
	if _, hit := c.Get("query", 5); hit {
		t.Error("expired entry should miss")
	}
}
