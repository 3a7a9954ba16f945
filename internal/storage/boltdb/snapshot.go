package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/crdtstore/internal/storage"
)

var _ storage.SnapshotStore = (*Storage)(nil)

// SaveSnapshot stores or replaces the snapshot of a document
func (s *Storage) SaveSnapshot(ctx context.Context, docID string, data []byte) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}

	var savedAt [8]byte
	binary.BigEndian.PutUint64(savedAt[:], uint64(time.Now().UnixMilli()))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketSnapshots).Put([]byte(docID), data); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		if err := tx.Bucket(bucketMeta).Put([]byte(docID), savedAt[:]); err != nil {
			return fmt.Errorf("failed to save snapshot meta: %w", err)
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves the snapshot of a document
func (s *Storage) LoadSnapshot(ctx context.Context, docID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	var data []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketSnapshots).Get([]byte(docID))
		if value == nil {
			return storage.ErrSnapshotNotFound
		}

		// Значение действительно только внутри транзакции
		data = make([]byte, len(value))
		copy(data, value)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return data, nil
}

// SavedAt returns the time the snapshot of a document was last saved
func (s *Storage) SavedAt(ctx context.Context, docID string) (time.Time, error) {
	if s.closed.Load() {
		return time.Time{}, storage.ErrStorageClosed
	}

	var savedAt time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketMeta).Get([]byte(docID))
		if len(value) != 8 {
			return storage.ErrSnapshotNotFound
		}
		savedAt = time.UnixMilli(int64(binary.BigEndian.Uint64(value)))
		return nil
	})

	if err != nil {
		return time.Time{}, err
	}

	return savedAt, nil
}

// DeleteSnapshot removes the snapshot of a document
func (s *Storage) DeleteSnapshot(ctx context.Context, docID string) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket.Get([]byte(docID)) == nil {
			return storage.ErrSnapshotNotFound
		}

		if err := bucket.Delete([]byte(docID)); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		return tx.Bucket(bucketMeta).Delete([]byte(docID))
	})

	if err != nil {
		return err
	}

	return nil
}

// ListSnapshots returns IDs of all stored documents in key order
func (s *Storage) ListSnapshots(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	var ids []string

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return ids, nil
}
