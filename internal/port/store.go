package port

import "priorart/internal/domain"

// Store persists committed index snapshots keyed by fingerprint.
type Store interface {
	// Save replaces the persisted snapshot atomically. A reader never
	// observes a mix of old and new records.
	Save(ix *domain.Index) error

	// Load returns the snapshot whose persisted fingerprint matches fp
	// exactly. Any mismatch or absent state returns
	// domain.ErrNotIndexed.
	Load(fp domain.Fingerprint) (*domain.Index, error)

	Close() error
}
