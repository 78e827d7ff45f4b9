package port

import "priorart/internal/domain"

// CorpusLoader reads normalized source documents from a corpus directory.
// Parsing and validation of raw files happens here, outside the core.
type CorpusLoader interface {
	Load(dir string) ([]domain.SourceDocument, error)
}
