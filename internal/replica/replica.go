// Package replica связывает документ с хранилищем снапшотов и журналом
// обновлений: восстановление при открытии, запись локальных изменений
// в журнал и периодические снапшоты.
package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/iudanet/crdtstore/internal/config"
	"github.com/iudanet/crdtstore/internal/crdt"
	"github.com/iudanet/crdtstore/internal/storage"
	"github.com/iudanet/crdtstore/internal/storage/boltdb"
	"github.com/iudanet/crdtstore/internal/storage/encrypted"
	"github.com/iudanet/crdtstore/internal/storage/sqlite"
)

// truncater журнал, умеющий удалять записи, уже вошедшие в снапшот
type truncater interface {
	TruncateUpdates(ctx context.Context, docID string, seq int64) (int64, error)
}

// Replica handles persistence of one document
type Replica struct {
	doc       *crdt.Document
	snapshots storage.SnapshotStore
	journal   storage.UpdateJournal
	logger    *slog.Logger
	committed crdt.DocumentVector // векторы состояния на момент последней записи в журнал
	docID     string
	closers   []io.Closer
	seq       int64 // последний записанный или примененный номер журнала
	mu        sync.Mutex
}

// Open восстанавливает документ docID из снапшота (если он есть) и
// применяет поверх него записи журнала.
func Open(ctx context.Context, docID string, snapshots storage.SnapshotStore, journal storage.UpdateJournal, logger *slog.Logger, opts ...crdt.Option) (*Replica, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = append(opts, crdt.WithLogger(logger))

	// Сохраненный ID реплики идет первым: явно заданный в opts имеет приоритет
	ids, keepsIDs := snapshots.(storage.ReplicaIDStore)
	var storedID uint32
	hasStoredID := false
	if keepsIDs {
		id, err := ids.LoadReplicaID(ctx, docID)
		switch {
		case err == nil:
			storedID, hasStoredID = id, true
			opts = append([]crdt.Option{crdt.WithReplicaID(id)}, opts...)
		case !errors.Is(err, storage.ErrReplicaIDNotFound):
			return nil, fmt.Errorf("failed to load replica id: %w", err)
		}
	}

	doc, err := crdt.Restore(ctx, snapshots, docID, opts...)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
		logger.Info("No snapshot found, starting empty document", "doc_id", docID)
		doc = crdt.New(opts...)
	case err != nil:
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}

	seq, err := crdt.ReplayJournal(ctx, journal, docID, doc, 0)
	if err != nil {
		_ = doc.Close()
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}

	if keepsIDs && (!hasStoredID || storedID != doc.ReplicaID()) {
		if err := ids.SaveReplicaID(ctx, docID, doc.ReplicaID()); err != nil {
			_ = doc.Close()
			return nil, fmt.Errorf("failed to save replica id: %w", err)
		}
	}

	logger.Info("Replica opened",
		"doc_id", docID,
		"replica_id", doc.ReplicaID(),
		"collections", len(doc.Collections()),
		"journal_seq", seq)

	return &Replica{
		doc:       doc,
		snapshots: snapshots,
		journal:   journal,
		logger:    logger,
		committed: doc.StateVector(),
		docID:     docID,
		seq:       seq,
	}, nil
}

// OpenFromConfig открывает BoltDB снапшоты и SQLite журнал по путям из
// конфигурации. Хранилища закрываются вместе с репликой.
func OpenFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Replica, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	snapshots, err := boltdb.New(ctx, cfg.Storage.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot storage: %w", err)
	}

	journal, err := sqlite.New(ctx, cfg.Storage.JournalPath)
	if err != nil {
		_ = snapshots.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	closeAll := func() {
		_ = journal.Close()
		_ = snapshots.Close()
	}

	var (
		snapshotStore storage.SnapshotStore = snapshots
		updateJournal storage.UpdateJournal = journal
	)
	if cfg.Storage.Encryption.Enabled() {
		snapshotStore, updateJournal, err = encryptStores(&cfg.Storage.Encryption, snapshots, journal)
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	r, err := Open(ctx, cfg.Replica.DocumentID, snapshotStore, updateJournal, logger, cfg.StoreOptions(logger)...)
	if err != nil {
		closeAll()
		return nil, err
	}

	r.closers = []io.Closer{journal, snapshots}
	return r, nil
}

func encryptStores(cfg *config.EncryptionConfig, snapshots storage.SnapshotStore, journal storage.UpdateJournal) (*encrypted.Snapshots, *encrypted.Journal, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	es, err := encrypted.NewSnapshots(snapshots, key)
	if err != nil {
		return nil, nil, err
	}

	ej, err := encrypted.NewJournal(journal, key)
	if err != nil {
		return nil, nil, err
	}

	return es, ej, nil
}

// Document returns the replicated document
func (r *Replica) Document() *crdt.Document {
	return r.doc
}

// Commit записывает в журнал изменения документа с момента предыдущей записи,
// включая примененные удаленные обновления. Возвращает номер записи журнала.
func (r *Replica) Commit(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.commitLocked(ctx)
}

func (r *Replica) commitLocked(ctx context.Context) (int64, error) {
	current := r.doc.StateVector()
	if vectorsEqual(current, r.committed) {
		return r.seq, nil
	}

	seq, err := crdt.Journal(ctx, r.journal, r.docID, r.doc, r.committed)
	if err != nil {
		return r.seq, fmt.Errorf("failed to journal update: %w", err)
	}

	r.committed = current
	r.seq = seq

	r.logger.Debug("Committed update", "doc_id", r.docID, "seq", seq)
	return seq, nil
}

// Checkpoint сохраняет снапшот документа и удаляет из журнала вошедшие
// в него записи, если журнал это поддерживает.
func (r *Replica) Checkpoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.commitLocked(ctx); err != nil {
		return err
	}

	if err := crdt.Persist(ctx, r.snapshots, r.docID, r.doc); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	t, ok := r.journal.(truncater)
	if !ok || r.seq == 0 {
		return nil
	}

	removed, err := t.TruncateUpdates(ctx, r.docID, r.seq)
	if err != nil {
		return fmt.Errorf("failed to truncate journal: %w", err)
	}

	r.logger.Info("Checkpoint saved", "doc_id", r.docID, "seq", r.seq, "truncated", removed)
	return nil
}

// Close записывает незафиксированные изменения, закрывает документ и
// хранилища, открытые OpenFromConfig.
func (r *Replica) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, commitErr := r.commitLocked(ctx)
	errs := []error{commitErr, r.doc.Close()}

	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil

	return errors.Join(errs...)
}

func vectorsEqual(a, b crdt.DocumentVector) bool {
	return maps.EqualFunc(a, b, func(x, y crdt.StateVector) bool {
		return maps.Equal(x, y)
	})
}
