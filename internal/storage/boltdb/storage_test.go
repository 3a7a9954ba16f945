package boltdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/crdtstore/internal/storage"
)

func TestNew_Success(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "testdb.db")

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() {
		require.NoError(t, store.Close())
	}()

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	err = store.db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshots, bucketMeta} {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(t.TempDir(), "missing", "dir", "db"))
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.True(t, store.closed.Load())

	// Второй вызов Close ничего не делает
	assert.NoError(t, store.Close())
}

func TestClose_ConcurrentWithReads(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(t.TempDir(), "testdb.db"))
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, "doc", []byte("state")))

	var wg sync.WaitGroup
	errs := make(chan error, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := store.LoadSnapshot(ctx, "doc")
				errs <- err
			}
		}()
	}

	require.NoError(t, store.Close())
	wg.Wait()
	close(errs)

	// Чтение, начатое до Close, может получить ошибку самого bbolt
	for err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, storage.ErrStorageClosed) || errors.Is(err, bbolt.ErrDatabaseNotOpen), "unexpected error: %v", err)
		}
	}

	_, err = store.LoadSnapshot(ctx, "doc")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestReopenKeepsSnapshots(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, "doc", []byte("state")))
	require.NoError(t, store.Close())

	store, err = New(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	data, err := store.LoadSnapshot(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), data)
}
