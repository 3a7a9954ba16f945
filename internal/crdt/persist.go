package crdt

import (
	"context"
	"fmt"

	"github.com/iudanet/crdtstore/internal/storage"
)

// Persist сохраняет полное состояние документа как снапшот docID.
// Ошибки хранилища возвращаются без изменений.
func Persist(ctx context.Context, store storage.SnapshotStore, docID string, d *Document) error {
	data, err := d.EncodeState()
	if err != nil {
		return fmt.Errorf("failed to encode document state: %w", err)
	}
	return store.SaveSnapshot(ctx, docID, data)
}

// Restore восстанавливает документ из снапшота docID.
// Ошибки хранилища (в том числе storage.ErrSnapshotNotFound) возвращаются без изменений.
func Restore(ctx context.Context, store storage.SnapshotStore, docID string, opts ...Option) (*Document, error) {
	data, err := store.LoadSnapshot(ctx, docID)
	if err != nil {
		return nil, err
	}
	return DecodeState(data, opts...)
}

// Journal записывает в журнал дельту документа относительно векторов since.
// Возвращает порядковый номер записи журнала.
func Journal(ctx context.Context, journal storage.UpdateJournal, docID string, d *Document, since DocumentVector) (int64, error) {
	data, err := d.EncodeUpdate(since)
	if err != nil {
		return 0, fmt.Errorf("failed to encode document update: %w", err)
	}
	return journal.AppendUpdate(ctx, docID, data)
}

// ReplayJournal применяет к документу все записи журнала с номером больше after.
// Возвращает номер последней примененной записи.
func ReplayJournal(ctx context.Context, journal storage.UpdateJournal, docID string, d *Document, after int64) (int64, error) {
	records, err := journal.UpdatesSince(ctx, docID, after)
	if err != nil {
		return after, err
	}

	last := after
	for _, rec := range records {
		if err := d.ApplyUpdate(rec.Data); err != nil {
			return last, fmt.Errorf("failed to replay update %d: %w", rec.Seq, err)
		}
		last = rec.Seq
	}
	return last, nil
}
