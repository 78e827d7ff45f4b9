// Package memstore holds index snapshots in memory. It backs tests and
// throwaway runs where persisting to disk is not wanted.
package memstore

import (
	"fmt"
	"sync"

	"priorart/internal/domain"
)

type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Index
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*domain.Index)}
}

func (m *MemoryStore) Save(ix *domain.Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[ix.Fingerprint().Hash()] = ix
	return nil
}

func (m *MemoryStore) Load(fp domain.Fingerprint) (*domain.Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ix, ok := m.snapshots[fp.Hash()]
	if !ok || ix.Fingerprint() != fp {
		return nil, fmt.Errorf("%w: no snapshot for fingerprint %s", domain.ErrNotIndexed, fp.Hash())
	}
	return ix, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
