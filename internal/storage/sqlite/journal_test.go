package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/crdtstore/internal/storage"
)

func TestJournal_AppendAndReadSince(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	before := time.Now().Add(-time.Second)

	var seqs []int64
	for _, u := range []string{"u1", "u2", "u3"} {
		seq, err := s.AppendUpdate(ctx, "doc-a", []byte(u))
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	_, err := s.AppendUpdate(ctx, "doc-b", []byte("other"))
	require.NoError(t, err)

	assert.Less(t, seqs[0], seqs[1])
	assert.Less(t, seqs[1], seqs[2])

	tests := []struct {
		name     string
		docID    string
		expected []string
		since    int64
	}{
		{name: "from the beginning", docID: "doc-a", since: 0, expected: []string{"u1", "u2", "u3"}},
		{name: "after first", docID: "doc-a", since: seqs[0], expected: []string{"u2", "u3"}},
		{name: "after last", docID: "doc-a", since: seqs[2], expected: nil},
		{name: "other document", docID: "doc-b", since: 0, expected: []string{"other"}},
		{name: "unknown document", docID: "doc-c", since: 0, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.UpdatesSince(ctx, tt.docID, tt.since)
			require.NoError(t, err)

			var got []string
			for _, rec := range records {
				assert.Equal(t, tt.docID, rec.DocID)
				assert.True(t, rec.CreatedAt.After(before))
				got = append(got, string(rec.Data))
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestJournal_LatestSeqAndTruncate(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	latest, err := s.LatestSeq(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)

	first, err := s.AppendUpdate(ctx, "doc", []byte("u1"))
	require.NoError(t, err)
	second, err := s.AppendUpdate(ctx, "doc", []byte("u2"))
	require.NoError(t, err)

	latest, err = s.LatestSeq(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	removed, err := s.TruncateUpdates(ctx, "doc", first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	records, err := s.UpdatesSince(ctx, "doc", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte("u2"), records[0].Data)

	// Номера не переиспользуются после удаления
	third, err := s.AppendUpdate(ctx, "doc", []byte("u3"))
	require.NoError(t, err)
	assert.Greater(t, third, second)
}

func TestJournal_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.AppendUpdate(ctx, "doc", []byte("u"))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = s.UpdatesSince(ctx, "doc", 0)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = s.LatestSeq(ctx, "doc")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = s.TruncateUpdates(ctx, "doc", 1)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
