package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/crdtstore/internal/storage"
)

var _ storage.ReplicaIDStore = (*Storage)(nil)

// LoadReplicaID returns the stored replica ID of a document
func (s *Storage) LoadReplicaID(ctx context.Context, docID string) (uint32, error) {
	if s.closed.Load() {
		return 0, storage.ErrStorageClosed
	}

	var id uint32

	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketReplicas).Get([]byte(docID))
		if value == nil {
			return storage.ErrReplicaIDNotFound
		}
		if len(value) != 4 {
			return fmt.Errorf("invalid replica id record for %q: %d bytes", docID, len(value))
		}

		id = binary.BigEndian.Uint32(value)
		return nil
	})

	if err != nil {
		return 0, err
	}

	return id, nil
}

// SaveReplicaID stores or replaces the replica ID of a document
func (s *Storage) SaveReplicaID(ctx context.Context, docID string, id uint32) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}

	var value [4]byte
	binary.BigEndian.PutUint32(value[:], id)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReplicas).Put([]byte(docID), value[:])
	})

	if err != nil {
		return fmt.Errorf("failed to save replica id: %w", err)
	}

	return nil
}
