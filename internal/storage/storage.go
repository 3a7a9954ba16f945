// Package storage описывает внешние хранилища состояния документов.
// Ядро (internal/crdt) работает только с этими интерфейсами и само не выполняет I/O.
package storage

import (
	"context"
	"time"
)

//go:generate moq -out snapshotstore_mock.go . SnapshotStore
//go:generate moq -out updatejournal_mock.go . UpdateJournal

// SnapshotStore defines interface for storing full document snapshots
type SnapshotStore interface {
	// SaveSnapshot stores or replaces the snapshot of a document
	SaveSnapshot(ctx context.Context, docID string, data []byte) error

	// LoadSnapshot retrieves the snapshot of a document
	// Returns ErrSnapshotNotFound if no snapshot exists
	LoadSnapshot(ctx context.Context, docID string) ([]byte, error)

	// DeleteSnapshot removes the snapshot of a document
	DeleteSnapshot(ctx context.Context, docID string) error
}

// UpdateJournal defines interface for an append-only journal of encoded updates
type UpdateJournal interface {
	// AppendUpdate stores an encoded update and returns its sequence number
	AppendUpdate(ctx context.Context, docID string, data []byte) (int64, error)

	// UpdatesSince returns updates of a document with sequence number greater than seq,
	// ordered by sequence number
	UpdatesSince(ctx context.Context, docID string, seq int64) ([]JournalRecord, error)
}

// ReplicaIDStore defines interface for keeping the local replica ID of a document
// between restarts. Идентификаторы элементов лога - пары (replica, seq), поэтому
// реплика после перезапуска должна продолжать под тем же ID.
type ReplicaIDStore interface {
	// LoadReplicaID returns the stored replica ID of a document
	// Returns ErrReplicaIDNotFound if none was saved
	LoadReplicaID(ctx context.Context, docID string) (uint32, error)

	// SaveReplicaID stores or replaces the replica ID of a document
	SaveReplicaID(ctx context.Context, docID string, id uint32) error
}

// JournalRecord represents one stored update
type JournalRecord struct {
	CreatedAt time.Time
	DocID     string
	Data      []byte
	Seq       int64
}
