// Package audit maintains the data-exchange audit trail. Every file the
// core ingests or emits gets a record created BEFORE its side effects
// run, so a crash mid-exchange leaves a PENDING tombstone rather than
// silence. Records move forward through a small status lattice and are
// immutable once terminal.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/cstorehq/backoffice/pkg/store"
)

var (
	// ErrTerminal is returned when a caller tries to advance a record
	// that already reached SUCCESS, FAILED, or PARTIAL.
	ErrTerminal = errors.New("audit: record is terminal")

	// ErrUnknownPolicy is returned for retention policies not in the table.
	ErrUnknownPolicy = errors.New("audit: unknown retention policy")
)

// Retention policies. Financial exchanges keep their records for seven
// years; operational ones for two.
const (
	PolicyStandard  = "STANDARD"
	PolicyFinancial = "FINANCIAL_7Y"
	PolicyPII       = "PII_3Y"
)

var retentionPeriods = map[string]time.Duration{
	PolicyStandard:  2 * 365 * 24 * time.Hour,
	PolicyFinancial: 7 * 365 * 24 * time.Hour,
	PolicyPII:       3 * 365 * 24 * time.Hour,
}

// Exchange describes one data exchange about to happen.
type Exchange struct {
	CompanyID         string
	StoreID           string
	Type              string // FUEL_GRADE_MOVEMENT, POS_JOURNAL, DEPARTMENT_EXPORT, ...
	Direction         string // INBOUND | OUTBOUND
	DataCategory      string
	SourceSystem      string
	DestinationSystem string
	ContainsPII       bool
	ContainsFinancial bool
	FileName          string
	FileHash          string
	DataSize          int64
	RetentionPolicy   string

	// Payload is optional exchange metadata. It is canonicalized and
	// hashed, never stored verbatim.
	Payload any
}

// Recorder writes audit records through the store.
type Recorder struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRecorder builds a recorder over the operational store.
func NewRecorder(s *store.Store, log *slog.Logger) *Recorder {
	return &Recorder{
		store: s,
		log:   log.With("component", "audit"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Begin creates the PENDING record for an exchange and returns its id.
// Callers must invoke this before touching the data the record describes.
func (r *Recorder) Begin(ctx context.Context, ex Exchange) (string, error) {
	policy := ex.RetentionPolicy
	if policy == "" {
		policy = PolicyStandard
		if ex.ContainsFinancial {
			policy = PolicyFinancial
		} else if ex.ContainsPII {
			policy = PolicyPII
		}
	}
	period, ok := retentionPeriods[policy]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}

	payloadHash := ""
	if ex.Payload != nil {
		h, err := HashPayload(ex.Payload)
		if err != nil {
			return "", err
		}
		payloadHash = h
	}

	now := r.now()
	rec := &store.AuditRecord{
		ExchangeID:        uuid.NewString(),
		CompanyID:         ex.CompanyID,
		StoreID:           ex.StoreID,
		ExchangeType:      ex.Type,
		Direction:         ex.Direction,
		DataCategory:      ex.DataCategory,
		SourceSystem:      ex.SourceSystem,
		DestinationSystem: ex.DestinationSystem,
		ContainsPII:       ex.ContainsPII,
		ContainsFinancial: ex.ContainsFinancial,
		Status:            store.AuditPending,
		DataSize:          ex.DataSize,
		FileName:          ex.FileName,
		FileHash:          ex.FileHash,
		PayloadHash:       payloadHash,
		RetentionPolicy:   policy,

		RetentionExpiresAt: now.Add(period),
		CreatedAt:          now,
	}
	if err := r.store.CreateAuditRecord(ctx, rec); err != nil {
		return "", err
	}
	r.log.Debug("exchange recorded",
		"exchangeId", rec.ExchangeID,
		"type", rec.ExchangeType,
		"direction", rec.Direction,
		"store", rec.StoreID)
	return rec.ExchangeID, nil
}

// Start moves a record to PROCESSING.
func (r *Recorder) Start(ctx context.Context, exchangeID string) error {
	err := r.store.AdvanceAuditRecord(ctx, exchangeID, store.AuditProcessing, 0, "", "")
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTerminal, exchangeID)
	}
	return err
}

// Complete closes a record with its terminal outcome.
func (r *Recorder) Complete(ctx context.Context, exchangeID string, status store.AuditStatus, recordCount int, errorCode, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("audit: %s is not a terminal status", status)
	}
	err := r.store.AdvanceAuditRecord(ctx, exchangeID, status, recordCount, errorCode, errorMessage)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTerminal, exchangeID)
	}
	if err != nil {
		return err
	}
	if status != store.AuditSuccess {
		r.log.Warn("exchange closed with errors",
			"exchangeId", exchangeID, "status", string(status), "errorCode", errorCode)
	}
	return nil
}

// Resolve finds the outbound record an acknowledgment refers to and
// closes it with the acknowledged outcome.
func (r *Recorder) Resolve(ctx context.Context, storeID, fileHash string, ok bool, message string) error {
	rec, err := r.store.FindOutboundAuditByHash(ctx, storeID, fileHash)
	if err != nil {
		return err
	}
	return r.complete(ctx, rec, ok, message)
}

// ResolveByName is Resolve keyed by exported file name, which is what
// acknowledgment documents actually carry.
func (r *Recorder) ResolveByName(ctx context.Context, storeID, fileName string, ok bool, message string) error {
	rec, err := r.store.FindOutboundAuditByName(ctx, storeID, fileName)
	if err != nil {
		return err
	}
	return r.complete(ctx, rec, ok, message)
}

func (r *Recorder) complete(ctx context.Context, rec *store.AuditRecord, ok bool, message string) error {
	status := store.AuditSuccess
	code := ""
	if !ok {
		status = store.AuditFailed
		code = "POS_REJECTED"
	}
	return r.Complete(ctx, rec.ExchangeID, status, rec.RecordCount, code, message)
}

// Sweep deletes records past their retention expiry.
func (r *Recorder) Sweep(ctx context.Context) (int64, error) {
	n, err := r.store.SweepExpiredAuditRecords(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info("expired audit records swept", "count", n)
	}
	return n, nil
}

// HashPayload returns the sha256 of the JCS canonical form of v, so the
// same logical payload always hashes identically regardless of map
// ordering.
func HashPayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("audit: encode payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
