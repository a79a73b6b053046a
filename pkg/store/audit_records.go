package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AuditStatus is the exchange outcome lattice. Transitions only move
// forward; terminal records are immutable.
type AuditStatus string

const (
	AuditPending    AuditStatus = "PENDING"
	AuditProcessing AuditStatus = "PROCESSING"
	AuditSuccess    AuditStatus = "SUCCESS"
	AuditFailed     AuditStatus = "FAILED"
	AuditPartial    AuditStatus = "PARTIAL"
)

// Terminal reports whether the status admits no further transition.
func (s AuditStatus) Terminal() bool {
	switch s {
	case AuditSuccess, AuditFailed, AuditPartial:
		return true
	}
	return false
}

// AuditRecord is one data-exchange audit row. It is created before the
// side effects it describes, so a crash leaves evidence, not silence.
type AuditRecord struct {
	ExchangeID         string
	CompanyID          string
	StoreID            string
	ExchangeType       string
	Direction          string // INBOUND | OUTBOUND
	DataCategory       string
	SourceSystem       string
	DestinationSystem  string
	ContainsPII        bool
	ContainsFinancial  bool
	Status             AuditStatus
	RecordCount        int
	DataSize           int64
	FileName           string
	FileHash           string
	PayloadHash        string
	ErrorCode          string
	ErrorMessage       string
	RetentionPolicy    string
	RetentionExpiresAt time.Time
	CreatedAt          time.Time
	CompletedAt        time.Time
}

const auditColumns = `exchange_id, company_id, store_id, exchange_type, direction,
	data_category, source_system, destination_system,
	contains_pii, contains_financial, status, record_count, data_size,
	file_name, file_hash, payload_hash, error_code, error_message,
	retention_policy, retention_expires_at, created_at, completed_at`

// CreateAuditRecord inserts a new exchange record, normally PENDING.
func (s *Store) CreateAuditRecord(ctx context.Context, r *AuditRecord) error {
	if r.Status == "" {
		r.Status = AuditPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO audit_records (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ExchangeID, r.CompanyID, r.StoreID, r.ExchangeType, r.Direction,
		r.DataCategory, r.SourceSystem, r.DestinationSystem,
		r.ContainsPII, r.ContainsFinancial, string(r.Status), r.RecordCount, r.DataSize,
		r.FileName, r.FileHash, r.PayloadHash, r.ErrorCode, r.ErrorMessage,
		r.RetentionPolicy, nullTime(r.RetentionExpiresAt), r.CreatedAt, nullTime(r.CompletedAt))
	if err != nil {
		return fmt.Errorf("create audit record %s: %w", r.ExchangeID, err)
	}
	return nil
}

// AdvanceAuditRecord moves a record forward in the status lattice. The
// guard clause refuses to touch terminal rows, so a stale caller gets
// ErrNotFound instead of silently rewriting history.
func (s *Store) AdvanceAuditRecord(ctx context.Context, exchangeID string, to AuditStatus, recordCount int, errorCode, errorMessage string) error {
	var completed any
	if to.Terminal() {
		completed = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE audit_records
		SET status = ?, record_count = ?, error_code = ?, error_message = ?, completed_at = ?
		WHERE exchange_id = ? AND status IN (?, ?)`),
		string(to), recordCount, errorCode, errorMessage, completed,
		exchangeID, string(AuditPending), string(AuditProcessing))
	if err != nil {
		return fmt.Errorf("advance audit record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAuditRecord fetches one exchange record.
func (s *Store) GetAuditRecord(ctx context.Context, exchangeID string) (*AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+auditColumns+` FROM audit_records
		WHERE exchange_id = ?`), exchangeID)
	return scanAuditRecord(row.Scan)
}

// FindOutboundAuditByHash locates the pending outbound record an
// acknowledgment file refers to.
func (s *Store) FindOutboundAuditByHash(ctx context.Context, storeID, fileHash string) (*AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+auditColumns+` FROM audit_records
		WHERE store_id = ? AND direction = ? AND file_hash = ?
		ORDER BY created_at DESC LIMIT 1`),
		storeID, "OUTBOUND", fileHash)
	return scanAuditRecord(row.Scan)
}

// FindOutboundAuditByName locates the outbound record for an exported
// file name, the key acknowledgment documents reference.
func (s *Store) FindOutboundAuditByName(ctx context.Context, storeID, fileName string) (*AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+auditColumns+` FROM audit_records
		WHERE store_id = ? AND direction = ? AND file_name = ?
		ORDER BY created_at DESC LIMIT 1`),
		storeID, "OUTBOUND", fileName)
	return scanAuditRecord(row.Scan)
}

// SweepExpiredAuditRecords deletes records past their retention expiry.
func (s *Store) SweepExpiredAuditRecords(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM audit_records
		WHERE retention_expires_at IS NOT NULL AND retention_expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired audit records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanAuditRecord(scan func(...any) error) (*AuditRecord, error) {
	var r AuditRecord
	var status string
	var expires, completed sql.NullTime
	err := scan(&r.ExchangeID, &r.CompanyID, &r.StoreID, &r.ExchangeType, &r.Direction,
		&r.DataCategory, &r.SourceSystem, &r.DestinationSystem,
		&r.ContainsPII, &r.ContainsFinancial, &status, &r.RecordCount, &r.DataSize,
		&r.FileName, &r.FileHash, &r.PayloadHash, &r.ErrorCode, &r.ErrorMessage,
		&r.RetentionPolicy, &expires, &r.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit record: %w", err)
	}
	r.Status = AuditStatus(status)
	r.RetentionExpiresAt = scanNullTime(expires)
	r.CompletedAt = scanNullTime(completed)
	return &r, nil
}
