package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"priorart/internal/adapter/chunker"
	"priorart/internal/adapter/embedding"
	"priorart/internal/adapter/memstore"
	"priorart/internal/domain"
)

type staticLoader struct {
	docs []domain.SourceDocument
	err  error
}

func (l *staticLoader) Load(dir string) ([]domain.SourceDocument, error) {
	return l.docs, l.err
}

// scriptedEmbedder runs a behavior function per call and records call
// counts per text. Safe for concurrent use.
type scriptedEmbedder struct {
	mu        sync.Mutex
	calls     map[string]int
	active    int
	maxActive int
	behavior  func(text string, attempt int) ([]float32, error)
}

func newScriptedEmbedder(behavior func(text string, attempt int) ([]float32, error)) *scriptedEmbedder {
	return &scriptedEmbedder{
		calls:    make(map[string]int),
		behavior: behavior,
	}
}

func (e *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls[text]++
	attempt := e.calls[text]
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	e.mu.Unlock()

	vec, err := e.behavior(text, attempt)

	e.mu.Lock()
	e.active--
	e.mu.Unlock()
	return vec, err
}

func (e *scriptedEmbedder) Dimension() int { return 2 }

func (e *scriptedEmbedder) ProviderID() string { return "test/scripted" }

func (e *scriptedEmbedder) callCount(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

func okVector(string, int) ([]float32, error) { return []float32{1, 0}, nil }

func testBuilder(t *testing.T, loader *staticLoader, emb *scriptedEmbedder, store *memstore.MemoryStore, opts BuildOptions) *Builder {
	t.Helper()
	ck, err := chunker.NewWindowChunker(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		t.Fatalf("NewWindowChunker: %v", err)
	}
	b, err := NewBuilder(loader, ck, emb, store, opts)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func defaultOpts() BuildOptions {
	return BuildOptions{
		ChunkSize:    10,
		ChunkOverlap: 2,
		Concurrency:  2,
		MaxRetries:   3,
	}
}

func TestBuildCreatesIndex(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: strings.Repeat("a", 20), Metadata: map[string]string{"title": "First"}},
		{ID: "pat-2", Text: strings.Repeat("b", 8)},
	}}
	emb := newScriptedEmbedder(okVector)
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	result, err := b.Build(context.Background(), "unused")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 20 runes at size 10 step 8 give offsets 0, 8, 16; 8 runes fit one window.
	if result.ChunksTotal != 4 {
		t.Errorf("ChunksTotal = %d, want 4", result.ChunksTotal)
	}
	if result.ChunksDropped != 0 {
		t.Errorf("ChunksDropped = %d, want 0", result.ChunksDropped)
	}
	if result.Documents != 2 {
		t.Errorf("Documents = %d, want 2", result.Documents)
	}

	ix, err := store.Load(b.Fingerprint())
	if err != nil {
		t.Fatalf("Load after build: %v", err)
	}
	if ix.Len() != 4 {
		t.Fatalf("index has %d records, want 4", ix.Len())
	}

	rec, ok := ix.Record(domain.ChunkID("pat-1", 8))
	if !ok {
		t.Fatal("record for pat-1 offset 8 missing")
	}
	if rec.SourceID != "pat-1" || rec.StartOffset != 8 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Metadata["title"] != "First" {
		t.Errorf("metadata title = %q, want First", rec.Metadata["title"])
	}
	if len(rec.Vector) != 2 {
		t.Errorf("vector length = %d, want 2", len(rec.Vector))
	}
}

func TestBuildRejectsDuplicateSourceIDs(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: "first body"},
		{ID: "pat-1", Text: "second body"},
	}}
	emb := newScriptedEmbedder(okVector)
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	_, err := b.Build(context.Background(), "unused")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "pat-1") {
		t.Errorf("error should name the duplicate id, got: %v", err)
	}
	if _, err := store.Load(b.Fingerprint()); !errors.Is(err, domain.ErrNotIndexed) {
		t.Errorf("store should stay empty after rejected build, err = %v", err)
	}
}

func TestBuildRetriesTransientFailures(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: "flaky"},
	}}
	emb := newScriptedEmbedder(func(text string, attempt int) ([]float32, error) {
		if attempt < 3 {
			return nil, fmt.Errorf("%w: transient", domain.ErrProvider)
		}
		return []float32{1, 0}, nil
	})
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	result, err := b.Build(context.Background(), "unused")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.ChunksDropped != 0 {
		t.Errorf("ChunksDropped = %d, want 0 after successful retry", result.ChunksDropped)
	}
	if got := emb.callCount("flaky"); got != 3 {
		t.Errorf("embed attempts = %d, want 3", got)
	}
	if result.Index.Len() != 1 {
		t.Errorf("index has %d records, want 1", result.Index.Len())
	}
}

func TestBuildDropsChunksThatKeepFailing(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: "good text"},
		{ID: "pat-2", Text: "bad text"},
	}}
	emb := newScriptedEmbedder(func(text string, attempt int) ([]float32, error) {
		if strings.HasPrefix(text, "bad") {
			return nil, fmt.Errorf("%w: rejected input", domain.ErrProvider)
		}
		return []float32{1, 0}, nil
	})
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	result, err := b.Build(context.Background(), "unused")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.ChunksDropped != 1 {
		t.Errorf("ChunksDropped = %d, want 1", result.ChunksDropped)
	}
	if got := emb.callCount("bad text"); got != 3 {
		t.Errorf("failing chunk attempts = %d, want 3", got)
	}

	ix := result.Index
	if ix.Len() != 1 {
		t.Fatalf("index has %d records, want 1", ix.Len())
	}
	if _, ok := ix.Record(domain.ChunkID("pat-2", 0)); ok {
		t.Error("dropped chunk must not appear in the index")
	}
	if _, ok := ix.Record(domain.ChunkID("pat-1", 0)); !ok {
		t.Error("healthy chunk missing from the index")
	}
}

func TestBuildKeepsPreviousSnapshotWhenAllFail(t *testing.T) {
	store := memstore.NewMemoryStore()

	healthy := newScriptedEmbedder(okVector)
	loader := &staticLoader{docs: []domain.SourceDocument{{ID: "pat-1", Text: "original"}}}
	b := testBuilder(t, loader, healthy, store, defaultOpts())
	if _, err := b.Build(context.Background(), "unused"); err != nil {
		t.Fatalf("seed build: %v", err)
	}

	broken := newScriptedEmbedder(func(string, int) ([]float32, error) {
		return nil, fmt.Errorf("%w: provider down", domain.ErrProvider)
	})
	b2 := testBuilder(t, loader, broken, store, defaultOpts())

	_, err := b2.Build(context.Background(), "unused")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}

	ix, err := store.Load(b.Fingerprint())
	if err != nil {
		t.Fatalf("previous snapshot should survive a failed build: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("previous snapshot has %d records, want 1", ix.Len())
	}
}

func TestBuildAbortsOnCanceledContext(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: strings.Repeat("a", 50)},
	}}
	emb := newScriptedEmbedder(okVector)
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, "unused")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := store.Load(b.Fingerprint()); !errors.Is(err, domain.ErrNotIndexed) {
		t.Errorf("aborted build must not publish a snapshot, err = %v", err)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	loader := &staticLoader{}
	emb := newScriptedEmbedder(okVector)
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	result, err := b.Build(context.Background(), "unused")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Index.Len() != 0 {
		t.Errorf("empty corpus should produce an empty index, got %d records", result.Index.Len())
	}
	if _, err := store.Load(b.Fingerprint()); err != nil {
		t.Errorf("empty index should still be persisted: %v", err)
	}
}

func TestBuildRebuildIdempotent(t *testing.T) {
	docs := []domain.SourceDocument{
		{ID: "pat-1", Text: strings.Repeat("回転弁の機構", 5), Metadata: map[string]string{"title": "Valve"}},
		{ID: "pat-2", Text: "a short abstract about heat exchangers"},
	}

	build := func() *domain.Index {
		t.Helper()
		store := memstore.NewMemoryStore()
		ck, err := chunker.NewWindowChunker(10, 2)
		if err != nil {
			t.Fatalf("NewWindowChunker: %v", err)
		}
		b, err := NewBuilder(&staticLoader{docs: docs}, ck, embedding.NewMockEmbedder(8), store, BuildOptions{
			ChunkSize:    10,
			ChunkOverlap: 2,
			Concurrency:  3,
			MaxRetries:   3,
		})
		if err != nil {
			t.Fatalf("NewBuilder: %v", err)
		}
		result, err := b.Build(context.Background(), "unused")
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return result.Index
	}

	first := build()
	second := build()

	if !reflect.DeepEqual(first.Records(), second.Records()) {
		t.Error("rebuilding from identical documents produced different records")
	}
}

func TestBuildReportsProgress(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: strings.Repeat("a", 26)},
	}}
	emb := newScriptedEmbedder(okVector)
	store := memstore.NewMemoryStore()

	var mu sync.Mutex
	var calls [][2]int
	opts := defaultOpts()
	opts.Progress = func(done, total int) {
		mu.Lock()
		calls = append(calls, [2]int{done, total})
		mu.Unlock()
	}
	b := testBuilder(t, loader, emb, store, opts)

	result, err := b.Build(context.Background(), "unused")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != result.ChunksTotal {
		t.Fatalf("progress called %d times, want %d", len(calls), result.ChunksTotal)
	}
	last := calls[len(calls)-1]
	if last[0] != result.ChunksTotal || last[1] != result.ChunksTotal {
		t.Errorf("final progress = %v, want [%d %d]", last, result.ChunksTotal, result.ChunksTotal)
	}
}

func TestBuildHonorsConcurrencyCap(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{
		{ID: "pat-1", Text: strings.Repeat("a", 82)},
	}}
	emb := newScriptedEmbedder(func(string, int) ([]float32, error) {
		time.Sleep(5 * time.Millisecond)
		return []float32{1, 0}, nil
	})
	store := memstore.NewMemoryStore()
	b := testBuilder(t, loader, emb, store, defaultOpts())

	if _, err := b.Build(context.Background(), "unused"); err != nil {
		t.Fatalf("Build: %v", err)
	}

	emb.mu.Lock()
	defer emb.mu.Unlock()
	if emb.maxActive > 2 {
		t.Errorf("observed %d concurrent embeds, cap is 2", emb.maxActive)
	}
}

func TestNewBuilderValidation(t *testing.T) {
	loader := &staticLoader{}
	emb := newScriptedEmbedder(okVector)
	store := memstore.NewMemoryStore()
	ck, err := chunker.NewWindowChunker(10, 2)
	if err != nil {
		t.Fatalf("NewWindowChunker: %v", err)
	}

	bad := []BuildOptions{
		{ChunkSize: 10, ChunkOverlap: 2, Concurrency: 0, MaxRetries: 3},
		{ChunkSize: 10, ChunkOverlap: 2, Concurrency: 2, MaxRetries: 0},
	}
	for i, opts := range bad {
		if _, err := NewBuilder(loader, ck, emb, store, opts); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("case %d: err = %v, want ErrConfiguration", i, err)
		}
	}
}

func TestBuildFingerprintMatchesMockProvider(t *testing.T) {
	loader := &staticLoader{docs: []domain.SourceDocument{{ID: "pat-1", Text: "short"}}}
	store := memstore.NewMemoryStore()
	ck, err := chunker.NewWindowChunker(400, 100)
	if err != nil {
		t.Fatalf("NewWindowChunker: %v", err)
	}
	b, err := NewBuilder(loader, ck, embedding.NewMockEmbedder(8), store, BuildOptions{
		ChunkSize:    400,
		ChunkOverlap: 100,
		Concurrency:  2,
		MaxRetries:   3,
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if _, err := b.Build(context.Background(), "unused"); err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := domain.Fingerprint{Provider: "mock", ChunkSize: 400, ChunkOverlap: 100}
	if b.Fingerprint() != want {
		t.Errorf("fingerprint = %+v, want %+v", b.Fingerprint(), want)
	}
	if _, err := store.Load(want); err != nil {
		t.Errorf("Load with mock fingerprint: %v", err)
	}
}
