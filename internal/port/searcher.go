package port

import "priorart/internal/domain"

// Searcher ranks index records against a query vector. Implementations
// must order results by descending score, breaking ties by ascending
// chunk id, so identical inputs always produce identical output.
type Searcher interface {
	Search(ix *domain.Index, queryVector []float32, k int) ([]domain.Hit, error)
}
