// Package search ranks index records against a query vector.
package search

import (
	"fmt"
	"math"
	"sort"

	"priorart/internal/domain"
)

// BruteSearcher scores every record in the index with cosine similarity.
// Brute force is fine at this corpus scale; swap in an ANN structure if
// indexes grow past a few hundred thousand chunks.
type BruteSearcher struct{}

func NewBruteSearcher() *BruteSearcher {
	return &BruteSearcher{}
}

// Search returns the top k hits ordered by score descending. Equal scores
// order by chunk ID ascending so results are stable across runs.
func (s *BruteSearcher) Search(ix *domain.Index, queryVector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", domain.ErrConfiguration, k)
	}
	if ix.Len() == 0 {
		return nil, nil
	}
	if len(queryVector) != ix.Dimension() {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", ix.Dimension(), len(queryVector))
	}

	hits := make([]domain.Hit, 0, ix.Len())
	for _, r := range ix.Records() {
		hits = append(hits, domain.Hit{
			ChunkID: r.ChunkID,
			Score:   cosineSimilarity(queryVector, r.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
