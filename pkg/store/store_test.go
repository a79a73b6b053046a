package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegration_Roundtrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	in := &store.POSIntegration{
		CompanyID:           "co-1",
		StoreID:             "st-1",
		POSType:             adapter.POSGilbarcoPassport,
		ConnectionMode:      store.ConnFileExchange,
		ExchangeRoot:        "/exchange/st-1",
		NAXMLVersion:        "3.4",
		ArchiveProcessed:    true,
		SyncEnabled:         true,
		SyncIntervalMins:    60,
		SyncDepartments:     true,
		IsActive:            true,
		PollIntervalSeconds: 900,
	}
	require.NoError(t, s.CreateIntegration(ctx, in))
	require.NotEmpty(t, in.ID)

	got, err := s.GetIntegrationByStore(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, adapter.POSGilbarcoPassport, got.POSType)
	assert.True(t, got.FileBased())
	assert.True(t, got.LastSyncAt.IsZero())

	// One integration per store.
	dup := &store.POSIntegration{CompanyID: "co-1", StoreID: "st-1", POSType: adapter.POSVerifoneRuby2}
	assert.Error(t, s.CreateIntegration(ctx, dup))

	_, err = s.GetIntegration(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListActiveIntegrations_OrderedByStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, st := range []string{"st-b", "st-a", "st-c"} {
		require.NoError(t, s.CreateIntegration(ctx, &store.POSIntegration{
			CompanyID: "co-1", StoreID: st, POSType: adapter.POSGenericNAXML, IsActive: true,
		}))
	}
	require.NoError(t, s.CreateIntegration(ctx, &store.POSIntegration{
		CompanyID: "co-1", StoreID: "st-off", POSType: adapter.POSGenericNAXML, IsActive: false,
	}))

	got, err := s.ListActiveIntegrations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "st-a", got[0].StoreID)
	assert.Equal(t, "st-c", got[2].StoreID)
}

func TestFileLog_Lifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	f := &store.FileLog{
		CompanyID: "co-1",
		StoreID:   "st-1",
		FileName:  "FGM_20260109-235900.xml",
		FileType:  "FGM",
		FileHash:  "abc123",
		SizeBytes: 2048,
	}
	require.NoError(t, s.CreateFileLog(ctx, f))
	assert.Equal(t, store.FilePending, f.Status)

	seen, err := s.FileSeen(ctx, "st-1", "abc123")
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = s.FileSeen(ctx, "st-2", "abc123")
	require.NoError(t, err)
	assert.False(t, seen, "hash uniqueness is per store")

	// Same content at the same store cannot be logged twice.
	dup := &store.FileLog{CompanyID: "co-1", StoreID: "st-1", FileName: "copy.xml", FileHash: "abc123"}
	assert.Error(t, s.CreateFileLog(ctx, dup))

	require.NoError(t, s.MarkFileProcessing(ctx, f.ID))
	assert.ErrorIs(t, s.MarkFileProcessing(ctx, f.ID), store.ErrNotFound)

	f.Status = store.FileSuccess
	f.RecordCount = 4
	f.ProcessingMs = 12
	f.ProcessedPath = "/archive/20260110T000000Z_FGM_20260109-235900.xml"
	require.NoError(t, s.FinishFileLog(ctx, f))

	got, err := s.GetFileLogByHash(ctx, "st-1", "abc123")
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, got.Status)
	assert.Equal(t, 4, got.RecordCount)
	assert.False(t, got.ProcessedAt.IsZero())

	// Terminal rows never transition again.
	f.Status = store.FileFailed
	assert.ErrorIs(t, s.FinishFileLog(ctx, f), store.ErrNotFound)

	f.Status = store.FileProcessing
	assert.Error(t, s.FinishFileLog(ctx, f), "non-terminal finish is rejected")
}

func TestAuditRecord_ForwardOnlyLattice(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := &store.AuditRecord{
		ExchangeID:        "ex-1",
		CompanyID:         "co-1",
		StoreID:           "st-1",
		ExchangeType:      "FUEL_GRADE_MOVEMENT",
		Direction:         "INBOUND",
		DataCategory:      "FINANCIAL",
		SourceSystem:      "GILBARCO_NAXML",
		DestinationSystem: "backoffice",
		ContainsFinancial: true,
		FileHash:          "abc123",
		RetentionPolicy:   "FINANCIAL_7Y",
	}
	require.NoError(t, s.CreateAuditRecord(ctx, r))
	assert.Equal(t, store.AuditPending, r.Status)

	require.NoError(t, s.AdvanceAuditRecord(ctx, "ex-1", store.AuditProcessing, 0, "", ""))
	require.NoError(t, s.AdvanceAuditRecord(ctx, "ex-1", store.AuditSuccess, 7, "", ""))

	got, err := s.GetAuditRecord(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, store.AuditSuccess, got.Status)
	assert.Equal(t, 7, got.RecordCount)
	assert.False(t, got.CompletedAt.IsZero())

	// Terminal records are immutable.
	err = s.AdvanceAuditRecord(ctx, "ex-1", store.AuditFailed, 0, "X", "late failure")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, _ = s.GetAuditRecord(ctx, "ex-1")
	assert.Equal(t, store.AuditSuccess, got.Status)
}

func TestSweepExpiredAuditRecords(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := &store.AuditRecord{ExchangeID: "ex-old", CompanyID: "co-1", StoreID: "st-1",
		ExchangeType: "T", Direction: "INBOUND", RetentionExpiresAt: now.Add(-time.Hour)}
	keep := &store.AuditRecord{ExchangeID: "ex-new", CompanyID: "co-1", StoreID: "st-1",
		ExchangeType: "T", Direction: "INBOUND", RetentionExpiresAt: now.Add(time.Hour)}
	forever := &store.AuditRecord{ExchangeID: "ex-forever", CompanyID: "co-1", StoreID: "st-1",
		ExchangeType: "T", Direction: "INBOUND"}
	require.NoError(t, s.CreateAuditRecord(ctx, expired))
	require.NoError(t, s.CreateAuditRecord(ctx, keep))
	require.NoError(t, s.CreateAuditRecord(ctx, forever))

	n, err := s.SweepExpiredAuditRecords(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetAuditRecord(ctx, "ex-old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetAuditRecord(ctx, "ex-forever")
	assert.NoError(t, err, "records without expiry are never swept")
}

func TestFindOutboundAuditByHash(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	out := &store.AuditRecord{ExchangeID: "ex-out", CompanyID: "co-1", StoreID: "st-1",
		ExchangeType: "DEPARTMENT_EXPORT", Direction: "OUTBOUND", FileHash: "h1"}
	in := &store.AuditRecord{ExchangeID: "ex-in", CompanyID: "co-1", StoreID: "st-1",
		ExchangeType: "DEPARTMENT_EXPORT", Direction: "INBOUND", FileHash: "h1"}
	require.NoError(t, s.CreateAuditRecord(ctx, out))
	require.NoError(t, s.CreateAuditRecord(ctx, in))

	got, err := s.FindOutboundAuditByHash(ctx, "st-1", "h1")
	require.NoError(t, err)
	assert.Equal(t, "ex-out", got.ExchangeID)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, s.InsertDepartment(ctx, tx, &store.Department{
			CompanyID: "co-1", StoreID: "st-1", Code: "FUEL", POSCode: "001",
			Name: "Fuel", IsActive: true, POSSource: "GILBARCO_NAXML",
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		depts, err := s.ListDepartments(ctx, tx, "st-1", "GILBARCO_NAXML")
		require.NoError(t, err)
		assert.Empty(t, depts, "failed transaction left no rows behind")
		return nil
	})
	require.NoError(t, err)
}

// TestPostgresRebind proves ?-placeholders become $n when the store
// runs against postgres.
func TestPostgresRebind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(db, "postgres")
	mock.ExpectExec(`UPDATE pos_integrations\s+SET poll_interval_seconds = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(300, sqlmock.AnyArg(), "int-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpdatePollInterval(context.Background(), "int-1", 300))
	assert.NoError(t, mock.ExpectationsWereMet())
}
