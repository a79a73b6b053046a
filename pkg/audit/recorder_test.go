package audit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/store"
)

func newRecorder(t *testing.T) (*audit.Recorder, *store.Store) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return audit.NewRecorder(s, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestRecorder_FullLifecycle(t *testing.T) {
	r, s := newRecorder(t)
	ctx := context.Background()

	id, err := r.Begin(ctx, audit.Exchange{
		CompanyID:         "co-1",
		StoreID:           "st-1",
		Type:              "FUEL_GRADE_MOVEMENT",
		Direction:         "INBOUND",
		SourceSystem:      "GILBARCO_NAXML",
		DestinationSystem: "backoffice",
		ContainsFinancial: true,
		FileHash:          "h1",
		DataSize:          2048,
		Payload:           map[string]any{"fileName": "FGM_20260109-235900.xml"},
	})
	require.NoError(t, err)

	rec, err := s.GetAuditRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.AuditPending, rec.Status, "record exists before processing starts")
	assert.Equal(t, audit.PolicyFinancial, rec.RetentionPolicy, "financial data defaults to 7y retention")
	assert.NotEmpty(t, rec.PayloadHash)
	assert.False(t, rec.RetentionExpiresAt.IsZero())

	require.NoError(t, r.Start(ctx, id))
	require.NoError(t, r.Complete(ctx, id, store.AuditSuccess, 7, "", ""))

	rec, err = s.GetAuditRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.AuditSuccess, rec.Status)
	assert.Equal(t, 7, rec.RecordCount)

	assert.ErrorIs(t, r.Start(ctx, id), audit.ErrTerminal)
	assert.ErrorIs(t, r.Complete(ctx, id, store.AuditFailed, 0, "X", "late"), audit.ErrTerminal)
}

func TestRecorder_CompleteRejectsNonTerminal(t *testing.T) {
	r, _ := newRecorder(t)
	id, err := r.Begin(context.Background(), audit.Exchange{
		CompanyID: "co-1", StoreID: "st-1", Type: "T", Direction: "INBOUND",
	})
	require.NoError(t, err)
	assert.Error(t, r.Complete(context.Background(), id, store.AuditProcessing, 0, "", ""))
}

func TestRecorder_UnknownPolicy(t *testing.T) {
	r, _ := newRecorder(t)
	_, err := r.Begin(context.Background(), audit.Exchange{
		CompanyID: "co-1", StoreID: "st-1", Type: "T", Direction: "INBOUND",
		RetentionPolicy: "FOREVER",
	})
	assert.ErrorIs(t, err, audit.ErrUnknownPolicy)
}

func TestRecorder_ResolveAcknowledgment(t *testing.T) {
	r, s := newRecorder(t)
	ctx := context.Background()

	id, err := r.Begin(ctx, audit.Exchange{
		CompanyID: "co-1", StoreID: "st-1", Type: "DEPARTMENT_EXPORT",
		Direction: "OUTBOUND", FileHash: "h-out",
	})
	require.NoError(t, err)

	require.NoError(t, r.Resolve(ctx, "st-1", "h-out", false, "department 99 rejected"))

	rec, err := s.GetAuditRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.AuditFailed, rec.Status)
	assert.Equal(t, "POS_REJECTED", rec.ErrorCode)
}

// TestHashPayload_CanonicalOrdering proves logically equal payloads hash
// identically regardless of field order at the source.
func TestHashPayload_CanonicalOrdering(t *testing.T) {
	a, err := audit.HashPayload(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := audit.HashPayload(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := audit.HashPayload(map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
