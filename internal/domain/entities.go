package domain

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MetaStartOffset is the metadata key the chunker adds to each chunk.
// It is reserved: source document metadata must not use it.
const MetaStartOffset = "startOffset"

type SourceDocument struct {
	ID       string
	Text     string
	Metadata map[string]string
}

type Chunk struct {
	SourceID    string
	StartOffset int
	Text        string
	Metadata    map[string]string
}

type IndexRecord struct {
	ChunkID     string            `json:"chunk_id"`
	SourceID    string            `json:"source_id"`
	StartOffset int               `json:"start_offset"`
	Vector      []float32         `json:"vector"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Fingerprint identifies the configuration that produced an index snapshot.
// A snapshot is only valid for queries when all three fields match exactly.
type Fingerprint struct {
	Provider     string `json:"provider"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

// Hash returns a short stable digest of the fingerprint, used as the
// storage key for persisted snapshots.
func (f Fingerprint) Hash() string {
	data, _ := json.Marshal(f)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// ChunkID derives the deterministic record key for a chunk. Identical
// source id and offset always produce the same id, so rebuilds overwrite
// rather than accumulate.
func ChunkID(sourceID string, startOffset int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", sourceID, startOffset)))
	return fmt.Sprintf("%x", sum[:8])
}

type Hit struct {
	ChunkID string
	Score   float64
}

type RetrievalResult struct {
	ChunkID     string            `json:"chunk_id"`
	SourceID    string            `json:"source_id"`
	StartOffset int               `json:"start_offset"`
	Score       float64           `json:"score"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Stats struct {
	Records   int
	Sources   int
	Dimension int
	BuiltAt   time.Time
}

// Index is a committed, immutable snapshot of the index store. Builds
// produce a new Index; readers are handed the whole value and never see a
// partially built one.
type Index struct {
	fingerprint Fingerprint
	records     []IndexRecord
	byID        map[string]int
	dimension   int
	builtAt     time.Time
}

// NewIndex assembles a snapshot from the given records. Records are copied
// and held in ascending chunk id order.
func NewIndex(fp Fingerprint, records []IndexRecord, builtAt time.Time) *Index {
	sorted := make([]IndexRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkID < sorted[j].ChunkID
	})

	byID := make(map[string]int, len(sorted))
	dimension := 0
	for i, r := range sorted {
		byID[r.ChunkID] = i
		if dimension == 0 {
			dimension = len(r.Vector)
		}
	}

	return &Index{
		fingerprint: fp,
		records:     sorted,
		byID:        byID,
		dimension:   dimension,
		builtAt:     builtAt,
	}
}

func (ix *Index) Fingerprint() Fingerprint { return ix.fingerprint }

func (ix *Index) Len() int { return len(ix.records) }

func (ix *Index) Dimension() int { return ix.dimension }

func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// Records returns the snapshot's records in ascending chunk id order.
// Callers must treat the slice as read-only.
func (ix *Index) Records() []IndexRecord { return ix.records }

func (ix *Index) Record(chunkID string) (IndexRecord, bool) {
	i, ok := ix.byID[chunkID]
	if !ok {
		return IndexRecord{}, false
	}
	return ix.records[i], true
}

func (ix *Index) Stats() Stats {
	sources := make(map[string]struct{}, len(ix.records))
	for _, r := range ix.records {
		sources[r.SourceID] = struct{}{}
	}
	return Stats{
		Records:   len(ix.records),
		Sources:   len(sources),
		Dimension: ix.dimension,
		BuiltAt:   ix.builtAt,
	}
}
