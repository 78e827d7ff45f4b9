package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"priorart/internal/domain"
)

// currentSchemaVersion guards the storage format. Bump on breaking
// changes; old snapshots then read as not indexed and get rebuilt.
const currentSchemaVersion = 1

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keySnapshot   = []byte("snapshot")
)

// BoltStore persists index snapshots in a bbolt file. One file holds one
// snapshot; Save replaces it in a single transaction, so a crash leaves
// either the old snapshot or the new one, never a mix.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

type storedRecord struct {
	SourceID    string            `json:"s"`
	StartOffset int               `json:"o"`
	Vector      []float32         `json:"v"`
	Text        string            `json:"t"`
	Metadata    map[string]string `json:"m,omitempty"`
}

type snapshotMeta struct {
	SchemaVersion int                `json:"schema_version"`
	Fingerprint   domain.Fingerprint `json:"fingerprint"`
	BuiltAt       time.Time          `json:"built_at"`
}

// Save replaces the persisted snapshot with ix.
func (s *BoltStore) Save(ix *domain.Index) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		records, err := tx.CreateBucket(bucketRecords)
		if err != nil {
			return err
		}

		for _, r := range ix.Records() {
			data, err := json.Marshal(storedRecord{
				SourceID:    r.SourceID,
				StartOffset: r.StartOffset,
				Vector:      r.Vector,
				Text:        r.Text,
				Metadata:    r.Metadata,
			})
			if err != nil {
				return err
			}
			if err := records.Put([]byte(r.ChunkID), data); err != nil {
				return err
			}
		}

		meta, err := json.Marshal(snapshotMeta{
			SchemaVersion: currentSchemaVersion,
			Fingerprint:   ix.Fingerprint(),
			BuiltAt:       ix.BuiltAt(),
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySnapshot, meta)
	})
}

// Load reads the persisted snapshot if its fingerprint matches fp in
// every field. Absent state, a schema change or any fingerprint mismatch
// returns domain.ErrNotIndexed; a mismatch is a rebuild signal, never a
// reason to hand out the wrong snapshot.
func (s *BoltStore) Load(fp domain.Fingerprint) (*domain.Index, error) {
	ix, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if ix.Fingerprint() != fp {
		return nil, fmt.Errorf("%w: snapshot fingerprint %s does not match %s", domain.ErrNotIndexed, ix.Fingerprint().Hash(), fp.Hash())
	}
	return ix, nil
}

// Snapshot reads the persisted snapshot regardless of fingerprint. Used
// for inspection; retrieval paths go through Load so they never search
// an index built under different settings.
func (s *BoltStore) Snapshot() (*domain.Index, error) {
	var ix *domain.Index
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySnapshot)
		if data == nil {
			return fmt.Errorf("%w: no snapshot present", domain.ErrNotIndexed)
		}

		var meta snapshotMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("%w: unreadable snapshot metadata", domain.ErrNotIndexed)
		}
		if meta.SchemaVersion != currentSchemaVersion {
			return fmt.Errorf("%w: snapshot schema v%d, want v%d", domain.ErrNotIndexed, meta.SchemaVersion, currentSchemaVersion)
		}

		var records []domain.IndexRecord
		b := tx.Bucket(bucketRecords)
		err := b.ForEach(func(k, v []byte) error {
			var sr storedRecord
			if err := json.Unmarshal(v, &sr); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			records = append(records, domain.IndexRecord{
				ChunkID:     string(k),
				SourceID:    sr.SourceID,
				StartOffset: sr.StartOffset,
				Vector:      sr.Vector,
				Text:        sr.Text,
				Metadata:    sr.Metadata,
			})
			return nil
		})
		if err != nil {
			return err
		}

		ix = domain.NewIndex(meta.Fingerprint, records, meta.BuiltAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
