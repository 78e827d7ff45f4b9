package port

import "priorart/internal/domain"

type Chunker interface {
	Chunk(doc domain.SourceDocument) ([]domain.Chunk, error)
}
