package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iudanet/crdtstore/internal/storage"
)

var _ storage.UpdateJournal = (*Storage)(nil)

// AppendUpdate stores an encoded update and returns its sequence number
func (s *Storage) AppendUpdate(ctx context.Context, docID string, data []byte) (int64, error) {
	if s.closed.Load() {
		return 0, storage.ErrStorageClosed
	}

	query := `
		INSERT INTO document_updates (doc_id, data, created_at)
		VALUES (?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, docID, data, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to append update: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get update seq: %w", err)
	}

	return seq, nil
}

// UpdatesSince returns updates of a document with sequence number greater than seq
func (s *Storage) UpdatesSince(ctx context.Context, docID string, seq int64) (records []storage.JournalRecord, err error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	query := `
		SELECT seq, doc_id, data, created_at
		FROM document_updates
		WHERE doc_id = ? AND seq > ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, docID, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to query updates: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return scanRecords(rows)
}

// LatestSeq returns the highest sequence number stored for a document, 0 if none
func (s *Storage) LatestSeq(ctx context.Context, docID string) (int64, error) {
	if s.closed.Load() {
		return 0, storage.ErrStorageClosed
	}

	var seq sql.NullInt64
	query := `SELECT MAX(seq) FROM document_updates WHERE doc_id = ?`
	if err := s.db.QueryRowContext(ctx, query, docID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to query latest seq: %w", err)
	}

	return seq.Int64, nil
}

// TruncateUpdates removes updates of a document with sequence number up to seq inclusive.
// Используется после сохранения снапшота, уже включающего эти обновления.
func (s *Storage) TruncateUpdates(ctx context.Context, docID string, seq int64) (int64, error) {
	if s.closed.Load() {
		return 0, storage.ErrStorageClosed
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM document_updates WHERE doc_id = ? AND seq <= ?`, docID, seq)
	if err != nil {
		return 0, fmt.Errorf("failed to truncate updates: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return removed, nil
}

// scanRecords читает строки журнала
func scanRecords(rows *sql.Rows) ([]storage.JournalRecord, error) {
	var records []storage.JournalRecord

	for rows.Next() {
		var (
			rec       storage.JournalRecord
			createdAt int64
		)

		if err := rows.Scan(&rec.Seq, &rec.DocID, &rec.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan update: %w", err)
		}

		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}
