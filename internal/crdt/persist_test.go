package crdt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/crdtstore/internal/models"
	"github.com/iudanet/crdtstore/internal/storage"
)

// newMemoryJournal возвращает мок журнала поверх среза в памяти.
func newMemoryJournal() (*storage.UpdateJournalMock, *[]storage.JournalRecord) {
	var records []storage.JournalRecord
	mock := &storage.UpdateJournalMock{
		AppendUpdateFunc: func(ctx context.Context, docID string, data []byte) (int64, error) {
			seq := int64(len(records) + 1)
			records = append(records, storage.JournalRecord{Seq: seq, DocID: docID, Data: data, CreatedAt: time.Now()})
			return seq, nil
		},
		UpdatesSinceFunc: func(ctx context.Context, docID string, seq int64) ([]storage.JournalRecord, error) {
			var out []storage.JournalRecord
			for _, rec := range records {
				if rec.DocID == docID && rec.Seq > seq {
					out = append(out, rec)
				}
			}
			return out, nil
		},
	}
	return mock, &records
}

func TestPersistAndRestore(t *testing.T) {
	ctx := context.Background()
	snapshots := make(map[string][]byte)
	mockStore := &storage.SnapshotStoreMock{
		SaveSnapshotFunc: func(ctx context.Context, docID string, data []byte) error {
			snapshots[docID] = data
			return nil
		},
		LoadSnapshotFunc: func(ctx context.Context, docID string) ([]byte, error) {
			data, ok := snapshots[docID]
			if !ok {
				return nil, storage.ErrSnapshotNotFound
			}
			return data, nil
		},
	}

	d := newTestDocument(t, 1)
	root, err := d.DeclareRoot("settings")
	require.NoError(t, err)
	require.NoError(t, root.Set("theme", models.String("dark")))

	require.NoError(t, Persist(ctx, mockStore, "doc-1", d))
	require.Len(t, mockStore.SaveSnapshotCalls(), 1)
	assert.Equal(t, "doc-1", mockStore.SaveSnapshotCalls()[0].DocID)

	restored, err := Restore(ctx, mockStore, "doc-1", WithClock(newTestClock(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = restored.Close() })

	rootR, err := restored.DeclareRoot("settings")
	require.NoError(t, err)
	assert.Equal(t, contents(root), contents(rootR))

	_, err = Restore(ctx, mockStore, "missing")
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
}

func TestPersist_StorageErrorsAreReturnedUnchanged(t *testing.T) {
	ctx := context.Background()
	errDisk := errors.New("disk full")
	mockStore := &storage.SnapshotStoreMock{
		SaveSnapshotFunc: func(ctx context.Context, docID string, data []byte) error {
			return errDisk
		},
		LoadSnapshotFunc: func(ctx context.Context, docID string) ([]byte, error) {
			return nil, storage.ErrStorageClosed
		},
	}

	d := newTestDocument(t, 1)

	err := Persist(ctx, mockStore, "doc", d)
	assert.Same(t, errDisk, err)

	_, err = Restore(ctx, mockStore, "doc")
	assert.Same(t, storage.ErrStorageClosed, err)
}

func TestRestore_CorruptedSnapshot(t *testing.T) {
	mockStore := &storage.SnapshotStoreMock{
		LoadSnapshotFunc: func(ctx context.Context, docID string) ([]byte, error) {
			return []byte(`{"version":1,"collections":[{"id":"bogus"}]}`), nil
		},
	}

	_, err := Restore(context.Background(), mockStore, "doc")
	assert.ErrorIs(t, err, ErrMalformedUpdate)
}

func TestJournalAndReplay(t *testing.T) {
	ctx := context.Background()
	journal, records := newMemoryJournal()

	d := newTestDocument(t, 1)
	root, err := d.DeclareRoot("todo")
	require.NoError(t, err)

	require.NoError(t, root.Set("a", models.Int(1)))
	since := d.StateVector()
	seq, err := Journal(ctx, journal, "doc", d, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	require.NoError(t, root.Set("b", models.Int(2)))
	require.NoError(t, root.Delete("a"))
	seq, err = Journal(ctx, journal, "doc", d, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
	assert.Len(t, *records, 2)

	replica := newTestDocument(t, 2)
	last, err := ReplayJournal(ctx, journal, "doc", replica, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	rootR, err := replica.DeclareRoot("todo")
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Value{"b": models.Int(2)}, contents(rootR))

	// Повторный проход после последней записи ничего не применяет
	last, err = ReplayJournal(ctx, journal, "doc", replica, last)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)
	assert.Equal(t, int64(2), journal.UpdatesSinceCalls()[1].Seq)
}

func TestReplayJournal_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("journal error is returned unchanged", func(t *testing.T) {
		journal := &storage.UpdateJournalMock{
			UpdatesSinceFunc: func(ctx context.Context, docID string, seq int64) ([]storage.JournalRecord, error) {
				return nil, storage.ErrStorageClosed
			},
		}

		last, err := ReplayJournal(ctx, journal, "doc", newTestDocument(t, 1), 7)
		assert.Same(t, storage.ErrStorageClosed, err)
		assert.Equal(t, int64(7), last)
	})

	t.Run("stops at malformed record", func(t *testing.T) {
		source := newTestDocument(t, 1)
		root, err := source.DeclareRoot("r")
		require.NoError(t, err)
		require.NoError(t, root.Set("k", models.Int(1)))
		good, err := source.EncodeState()
		require.NoError(t, err)

		journal := &storage.UpdateJournalMock{
			UpdatesSinceFunc: func(ctx context.Context, docID string, seq int64) ([]storage.JournalRecord, error) {
				return []storage.JournalRecord{
					{Seq: 3, Data: good},
					{Seq: 4, Data: []byte("not json")},
					{Seq: 5, Data: good},
				}, nil
			},
		}

		target := newTestDocument(t, 2)
		last, err := ReplayJournal(ctx, journal, "doc", target, 2)
		require.ErrorIs(t, err, ErrMalformedUpdate)
		assert.Contains(t, err.Error(), "failed to replay update 4")
		assert.Equal(t, int64(3), last)
		assert.Equal(t, []string{"root/r"}, target.Collections())
	})
}
