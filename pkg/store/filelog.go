package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const fileLogColumns = `id, company_id, store_id, file_name, file_type, direction,
	status, file_hash, size_bytes, record_count, processing_ms,
	error_code, error_message, skip_reason, source_path, processed_path,
	created_at, processed_at`

// FileSeen reports whether a file with this content hash has already
// been logged for the store, in any status.
func (s *Store) FileSeen(ctx context.Context, storeID, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM file_logs
		WHERE store_id = ? AND file_hash = ?`), storeID, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check file hash: %w", err)
	}
	return n > 0, nil
}

// CreateFileLog inserts the row for a newly observed file. For
// non-SKIPPED rows the partial (store_id, file_hash) index makes a
// concurrent duplicate fail here rather than process twice; SKIPPED
// duplicate rows insert freely, one per redelivered filename.
func (s *Store) CreateFileLog(ctx context.Context, f *FileLog) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = FilePending
	}
	if f.Direction == "" {
		f.Direction = "INBOUND"
	}
	f.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO file_logs (`+fileLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.CompanyID, f.StoreID, f.FileName, f.FileType, f.Direction,
		string(f.Status), f.FileHash, f.SizeBytes, f.RecordCount, f.ProcessingMs,
		f.ErrorCode, f.ErrorMessage, f.SkipReason, f.SourcePath, f.ProcessedPath,
		f.CreatedAt, nullTime(f.ProcessedAt))
	if err != nil {
		return fmt.Errorf("create file log %s: %w", f.FileName, err)
	}
	return nil
}

// MarkFileProcessing moves a PENDING file log to PROCESSING.
func (s *Store) MarkFileProcessing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE file_logs SET status = ?
		WHERE id = ? AND status = ?`),
		string(FileProcessing), id, string(FilePending))
	if err != nil {
		return fmt.Errorf("mark file processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishFileLog writes the terminal outcome of one file. Terminal rows
// never transition again.
func (s *Store) FinishFileLog(ctx context.Context, f *FileLog) error {
	if !f.Status.Terminal() {
		return fmt.Errorf("finish file log %s: status %s is not terminal", f.ID, f.Status)
	}
	f.ProcessedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE file_logs
		SET status = ?, record_count = ?, processing_ms = ?,
			error_code = ?, error_message = ?, skip_reason = ?,
			processed_path = ?, processed_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		string(f.Status), f.RecordCount, f.ProcessingMs,
		f.ErrorCode, f.ErrorMessage, f.SkipReason,
		f.ProcessedPath, f.ProcessedAt,
		f.ID, string(FilePending), string(FileProcessing))
	if err != nil {
		return fmt.Errorf("finish file log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFileLog removes a non-terminal file log, releasing its hash for
// a later retry. Terminal rows stay.
func (s *Store) DeleteFileLog(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM file_logs
		WHERE id = ? AND status IN (?, ?)`),
		id, string(FilePending), string(FileProcessing))
	if err != nil {
		return fmt.Errorf("delete file log: %w", err)
	}
	return nil
}

// GetFileLog fetches one file log by id.
func (s *Store) GetFileLog(ctx context.Context, id string) (*FileLog, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+fileLogColumns+` FROM file_logs WHERE id = ?`), id)
	return scanFileLog(row.Scan)
}

// GetFileLogByHash fetches the file log for a store content hash.
// Duplicate deliveries add later SKIPPED rows under the same hash; the
// earliest row is the one that processed.
func (s *Store) GetFileLogByHash(ctx context.Context, storeID, hash string) (*FileLog, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+fileLogColumns+` FROM file_logs
		WHERE store_id = ? AND file_hash = ?
		ORDER BY created_at ASC LIMIT 1`), storeID, hash)
	return scanFileLog(row.Scan)
}

// ListFileLogs returns the most recent file logs for a store.
func (s *Store) ListFileLogs(ctx context.Context, storeID string, limit int) ([]*FileLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+fileLogColumns+` FROM file_logs
		WHERE store_id = ? ORDER BY created_at DESC, file_name DESC LIMIT ?`), storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list file logs: %w", err)
	}
	defer rows.Close()

	var out []*FileLog
	for rows.Next() {
		f, err := scanFileLog(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFileLog(scan func(...any) error) (*FileLog, error) {
	var f FileLog
	var status string
	var processedAt sql.NullTime
	err := scan(&f.ID, &f.CompanyID, &f.StoreID, &f.FileName, &f.FileType, &f.Direction,
		&status, &f.FileHash, &f.SizeBytes, &f.RecordCount, &f.ProcessingMs,
		&f.ErrorCode, &f.ErrorMessage, &f.SkipReason, &f.SourcePath, &f.ProcessedPath,
		&f.CreatedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file log: %w", err)
	}
	f.Status = FileStatus(status)
	f.ProcessedAt = scanNullTime(processedAt)
	return &f, nil
}
