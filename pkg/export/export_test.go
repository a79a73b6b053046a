package export_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/export"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/store"
)

type fixture struct {
	exp   *export.Exporter
	rec   *audit.Recorder
	store *store.Store
	tgt   export.Target
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	root := t.TempDir()
	paths, err := adapter.GilbarcoProfile().ResolvePaths(root, adapter.Overrides{})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := audit.NewRecorder(s, log)
	integ := &store.POSIntegration{
		CompanyID:       "co-1",
		StoreID:         "st-1",
		POSType:         adapter.POSGilbarcoPassport,
		StoreLocationID: "241",
		NAXMLVersion:    "3.4",
	}
	return &fixture{
		exp:   export.New(s, rec, log),
		rec:   rec,
		store: s,
		tgt:   export.Target{Integration: integ, Paths: paths},
	}
}

func readInbox(t *testing.T, tgt export.Target, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(tgt.Paths.Inbox, name))
	require.NoError(t, err)
	return data
}

func TestExportDepartments_RoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.InsertDepartment(ctx, f.store.DB(), &store.Department{
		ID: "d1", CompanyID: "co-1", StoreID: "st-1",
		Code: "GROCERY", POSCode: "010", Name: "Grocery",
		Taxable: true, IsActive: true, POSSource: "GILBARCO_NAXML",
	}))
	require.NoError(t, f.store.InsertDepartment(ctx, f.store.DB(), &store.Department{
		ID: "d2", CompanyID: "co-1", StoreID: "st-1",
		Code: "RETIRED", POSCode: "090", Name: "Retired",
		IsActive: false, POSSource: "GILBARCO_NAXML",
	}))

	res, err := f.exp.ExportDepartments(ctx, f.tgt)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordCount, "inactive departments are excluded")
	assert.Contains(t, res.FileName, "DeptMaint_")
	assert.Len(t, res.FileHash, 64)

	// The vendor classification table must recognize the name we emit.
	docType, ok := adapter.GilbarcoProfile().Classify(res.FileName)
	require.True(t, ok)
	assert.Equal(t, naxml.DocDepartmentMaint, docType)

	// And our own parser must read back what we wrote.
	doc, err := naxml.Parse(readInbox(t, f.tgt, res.FileName))
	require.NoError(t, err)
	maint := doc.(*naxml.MaintenanceDoc)
	assert.Equal(t, naxml.MaintFull, maint.Mode)
	assert.Equal(t, "241", maint.StoreID)
	require.Len(t, maint.Entries, 1)
	assert.Equal(t, "010", maint.Entries[0].POSCode)
	require.NotNil(t, maint.Entries[0].Taxable)
	assert.True(t, *maint.Entries[0].Taxable)
}

func TestExport_AuditStaysOpenUntilAck(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.InsertTaxRate(ctx, f.store.DB(), &store.TaxRate{
		ID: "t1", CompanyID: "co-1", StoreID: "st-1",
		Code: "STATE", POSCode: "1", Name: "State Sales",
		RatePercent: 7.0, IsActive: true, POSSource: "GILBARCO_NAXML",
	}))

	res, err := f.exp.ExportTaxRates(ctx, f.tgt)
	require.NoError(t, err)

	rec, err := f.store.GetAuditRecord(ctx, res.ExchangeID)
	require.NoError(t, err)
	assert.Equal(t, store.AuditProcessing, rec.Status, "open until the POS acknowledges")
	assert.Equal(t, "OUTBOUND", rec.Direction)
	assert.Equal(t, res.FileName, rec.FileName)
	assert.Equal(t, res.FileHash, rec.FileHash)

	// The acknowledgment closes it.
	require.NoError(t, f.rec.ResolveByName(ctx, "st-1", res.FileName, true, ""))
	rec, err = f.store.GetAuditRecord(ctx, res.ExchangeID)
	require.NoError(t, err)
	assert.Equal(t, store.AuditSuccess, rec.Status)
}

func TestExportTenderTypes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.InsertTenderType(ctx, f.store.DB(), &store.TenderType{
		ID: "tt1", CompanyID: "co-1", StoreID: "st-1",
		Code: "CREDIT", POSCode: "CC", Name: "Credit Card",
		Electronic: true, IsActive: true, POSSource: "GILBARCO_NAXML",
	}))

	res, err := f.exp.ExportTenderTypes(ctx, f.tgt)
	require.NoError(t, err)

	doc, err := naxml.Parse(readInbox(t, f.tgt, res.FileName))
	require.NoError(t, err)
	maint := doc.(*naxml.MaintenanceDoc)
	assert.Equal(t, naxml.DocTenderMaint, maint.Kind)
	require.Len(t, maint.Entries, 1)
	assert.Equal(t, "CC", maint.Entries[0].POSCode)
	require.NotNil(t, maint.Entries[0].Electronic)
	assert.True(t, *maint.Entries[0].Electronic)
}

func TestExportPriceBook(t *testing.T) {
	f := setup(t)

	res, err := f.exp.ExportPriceBook(context.Background(), f.tgt, []export.PriceBookItem{
		{ItemCode: "00012", Description: "COFFEE 16OZ", DepartmentCode: "020", UnitPrice: 1.99},
		{ItemCode: "00013", Description: "WATER 1L", DepartmentCode: "020", UnitPrice: 2.49},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordCount)
	assert.Contains(t, res.FileName, "PriceBook_")

	doc, err := naxml.Parse(readInbox(t, f.tgt, res.FileName))
	require.NoError(t, err)
	maint := doc.(*naxml.MaintenanceDoc)
	assert.Equal(t, naxml.DocPriceBookMaint, maint.Kind)
	require.Len(t, maint.Entries, 2)
	assert.Equal(t, "00012", maint.Entries[0].POSCode, "leading zeros survive the round trip")
}

func TestWriteAck(t *testing.T) {
	f := setup(t)

	name, err := f.exp.WriteAck(f.tgt, "PJR_99001.xml", true, "", "")
	require.NoError(t, err)
	assert.Contains(t, name, "Ack_")

	doc, err := naxml.Parse(readInbox(t, f.tgt, name))
	require.NoError(t, err)
	ack := doc.(*naxml.AckDoc)
	assert.Equal(t, "PJR_99001.xml", ack.DocumentName)
	assert.Equal(t, "Accepted", ack.Status)
	assert.Empty(t, ack.Errors)
}

func TestWriteAck_Rejection(t *testing.T) {
	f := setup(t)

	name, err := f.exp.WriteAck(f.tgt, "FGM_bad.xml", false, "FGM_INVALID_SALES_VOLUME", "negative volume")
	require.NoError(t, err)

	doc, err := naxml.Parse(readInbox(t, f.tgt, name))
	require.NoError(t, err)
	ack := doc.(*naxml.AckDoc)
	assert.Equal(t, "Rejected", ack.Status)
	require.Len(t, ack.Errors, 1)
	assert.Equal(t, "FGM_INVALID_SALES_VOLUME", ack.Errors[0].Code)
}
