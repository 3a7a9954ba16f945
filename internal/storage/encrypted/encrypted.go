// Package encrypted шифрует данные снапшотов и журнала перед передачей
// в нижележащее хранилище. ID документа используется как AAD, поэтому
// данные одного документа не расшифруются под другим ID.
package encrypted

import (
	"context"
	"fmt"

	"github.com/iudanet/crdtstore/internal/crypto"
	"github.com/iudanet/crdtstore/internal/storage"
)

var _ storage.SnapshotStore = (*Snapshots)(nil)
var _ storage.UpdateJournal = (*Journal)(nil)
var _ storage.ReplicaIDStore = (*Snapshots)(nil)

type truncater interface {
	TruncateUpdates(ctx context.Context, docID string, seq int64) (int64, error)
}

// Snapshots wraps a SnapshotStore with AES-256-GCM encryption
type Snapshots struct {
	next storage.SnapshotStore
	key  []byte
}

// NewSnapshots returns encrypting snapshot store. key must be crypto.KeySize bytes.
func NewSnapshots(next storage.SnapshotStore, key []byte) (*Snapshots, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w, got %d", crypto.ErrInvalidKey, len(key))
	}
	return &Snapshots{next: next, key: key}, nil
}

func (s *Snapshots) SaveSnapshot(ctx context.Context, docID string, data []byte) error {
	enc, err := crypto.Encrypt(data, s.key, []byte(docID))
	if err != nil {
		return fmt.Errorf("failed to encrypt snapshot: %w", err)
	}
	return s.next.SaveSnapshot(ctx, docID, enc)
}

// LoadSnapshot returns errors of the wrapped store unchanged
func (s *Snapshots) LoadSnapshot(ctx context.Context, docID string) ([]byte, error) {
	enc, err := s.next.LoadSnapshot(ctx, docID)
	if err != nil {
		return nil, err
	}

	data, err := crypto.Decrypt(enc, s.key, []byte(docID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot %q: %w", docID, err)
	}
	return data, nil
}

func (s *Snapshots) DeleteSnapshot(ctx context.Context, docID string) error {
	return s.next.DeleteSnapshot(ctx, docID)
}

// LoadReplicaID передает вызов хранилищу, если оно хранит ID реплик.
// ID реплики не секретен и не шифруется.
func (s *Snapshots) LoadReplicaID(ctx context.Context, docID string) (uint32, error) {
	ids, ok := s.next.(storage.ReplicaIDStore)
	if !ok {
		return 0, storage.ErrReplicaIDNotFound
	}
	return ids.LoadReplicaID(ctx, docID)
}

// SaveReplicaID передает вызов хранилищу, если оно хранит ID реплик,
// иначе ничего не делает.
func (s *Snapshots) SaveReplicaID(ctx context.Context, docID string, id uint32) error {
	ids, ok := s.next.(storage.ReplicaIDStore)
	if !ok {
		return nil
	}
	return ids.SaveReplicaID(ctx, docID, id)
}

// Journal wraps an UpdateJournal with AES-256-GCM encryption
type Journal struct {
	next storage.UpdateJournal
	key  []byte
}

// NewJournal returns encrypting update journal. key must be crypto.KeySize bytes.
func NewJournal(next storage.UpdateJournal, key []byte) (*Journal, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w, got %d", crypto.ErrInvalidKey, len(key))
	}
	return &Journal{next: next, key: key}, nil
}

func (j *Journal) AppendUpdate(ctx context.Context, docID string, data []byte) (int64, error) {
	enc, err := crypto.Encrypt(data, j.key, []byte(docID))
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt update: %w", err)
	}
	return j.next.AppendUpdate(ctx, docID, enc)
}

func (j *Journal) UpdatesSince(ctx context.Context, docID string, seq int64) ([]storage.JournalRecord, error) {
	records, err := j.next.UpdatesSince(ctx, docID, seq)
	if err != nil {
		return nil, err
	}

	out := make([]storage.JournalRecord, len(records))
	for i, rec := range records {
		data, err := crypto.Decrypt(rec.Data, j.key, []byte(rec.DocID))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt update %d: %w", rec.Seq, err)
		}
		rec.Data = data
		out[i] = rec
	}
	return out, nil
}

// TruncateUpdates передает вызов журналу, если он поддерживает удаление
// записей, иначе ничего не делает.
func (j *Journal) TruncateUpdates(ctx context.Context, docID string, seq int64) (int64, error) {
	t, ok := j.next.(truncater)
	if !ok {
		return 0, nil
	}
	return t.TruncateUpdates(ctx, docID, seq)
}
