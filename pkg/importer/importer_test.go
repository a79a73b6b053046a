package importer_test

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
	"github.com/cstorehq/backoffice/pkg/importer"
	"github.com/cstorehq/backoffice/pkg/projector"
	"github.com/cstorehq/backoffice/pkg/store"
)

const fgmShift = `<NAXML-MovementReport version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <FuelGradeMovement>
    <FGMHeader>
      <PrimaryReportPeriod>98</PrimaryReportPeriod>
      <BusinessDate>2026-01-09</BusinessDate>
    </FGMHeader>
    <FGMDetail>
      <FuelGradeID>001</FuelGradeID>
      <FGMTenderSummary>
        <Tender><TenderCode>cash</TenderCode></Tender>
        <FGMSalesTotals>
          <FuelGradeSalesVolume>100.0</FuelGradeSalesVolume>
          <FuelGradeSalesAmount>310.00</FuelGradeSalesAmount>
        </FGMSalesTotals>
      </FGMTenderSummary>
    </FGMDetail>
    <FGMDetail>
      <FuelGradeID>DSL1</FuelGradeID>
      <FGMTenderSummary>
        <Tender><TenderCode>outsideCredit</TenderCode></Tender>
        <FGMSalesTotals>
          <FuelGradeSalesVolume>50.0</FuelGradeSalesVolume>
          <FuelGradeSalesAmount>180.00</FuelGradeSalesAmount>
        </FGMSalesTotals>
      </FGMTenderSummary>
    </FGMDetail>
  </FuelGradeMovement>
</NAXML-MovementReport>`

const fpmReport = `<NAXML-MovementReport version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <FuelProductMovement>
    <FPMHeader>
      <PrimaryReportPeriod>2</PrimaryReportPeriod>
      <BusinessDate>2026-01-09</BusinessDate>
    </FPMHeader>
    <FPMDetail>
      <FuelProductID>001</FuelProductID>
      <FPMNonResettableTotals>
        <FuelPositionID>1</FuelPositionID>
        <FuelProductNonResettableTotalVolume>120034.551</FuelProductNonResettableTotalVolume>
        <FuelProductNonResettableTotalAmount>391203.77</FuelProductNonResettableTotalAmount>
      </FPMNonResettableTotals>
      <FPMNonResettableTotals>
        <FuelPositionID>2</FuelPositionID>
        <FuelProductNonResettableTotalVolume>98811.203</FuelProductNonResettableTotalVolume>
        <FuelProductNonResettableTotalAmount>322518.10</FuelProductNonResettableTotalAmount>
      </FPMNonResettableTotals>
    </FPMDetail>
  </FuelProductMovement>
</NAXML-MovementReport>`

type fixture struct {
	svc   *importer.Service
	store *store.Store
	integ *store.POSIntegration
	paths adapter.Paths
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	root := t.TempDir()
	reg := adapter.NewRegistry()
	paths, err := adapter.GilbarcoProfile().ResolvePaths(root, adapter.Overrides{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(paths.Outbox, 0o755))
	require.NoError(t, os.MkdirAll(paths.Archive, 0o755))

	integ := &store.POSIntegration{
		ID:             "int-1",
		CompanyID:      "co-1",
		StoreID:        "st-1",
		POSType:        adapter.POSGilbarcoPassport,
		ConnectionMode: store.ConnFileExchange,
		ExchangeRoot:   root,
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := importer.New(s, projector.New(s, log), reg, log)
	return &fixture{svc: svc, store: s, integ: integ, paths: paths}
}

func (f *fixture) place(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRun_SeedsGradesAndPositions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.place(t, f.paths.Outbox, "FGM_001.xml", fgmShift)
	f.place(t, f.paths.Outbox, "FPM_001.xml", fpmReport)
	// Archived files keep their timestamp prefix but still classify.
	f.place(t, f.paths.Archive, "20260110T060000_FGM_000.xml", fgmShift)
	// Non-fuel files are invisible to the pass.
	f.place(t, f.paths.Outbox, "PJR_001.xml", "<junk>")

	prog, err := f.svc.Run(ctx, f.integ)
	require.NoError(t, err)
	assert.Equal(t, importer.ImportCompleted, prog.Status)
	assert.Equal(t, 3, prog.FilesScanned)
	assert.Equal(t, 0, prog.FilesSkipped)
	assert.Equal(t, 2, prog.Grades, "duplicate grade mentions collapse")
	assert.Equal(t, 2, prog.Positions)
	assert.False(t, prog.CompletedAt.IsZero())

	grade, err := f.store.FindOrCreateFuelGrade(ctx, f.store.DB(), "co-1", "DSL1", "ignored", store.FuelOther)
	require.NoError(t, err)
	assert.Equal(t, store.FuelDiesel, grade.ProductType, "existing grade keeps its discovered type")

	pos, err := f.store.FindOrCreateFuelPosition(ctx, f.store.DB(), "co-1", "st-1", "2")
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
}

func TestRun_IsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.place(t, f.paths.Outbox, "FGM_001.xml", fgmShift)

	first, err := f.svc.Run(ctx, f.integ)
	require.NoError(t, err)
	second, err := f.svc.Run(ctx, f.integ)
	require.NoError(t, err)
	assert.Equal(t, first.Grades, second.Grades)
	assert.Equal(t, importer.ImportCompleted, second.Status)
}

func TestRun_MalformedHistoricalFileIsSkipped(t *testing.T) {
	f := setup(t)

	f.place(t, f.paths.Outbox, "FGM_good.xml", fgmShift)
	f.place(t, f.paths.Outbox, "FGM_torn.xml", "<NAXML-MovementReport><FuelGradeMovement>")

	prog, err := f.svc.Run(context.Background(), f.integ)
	require.NoError(t, err)
	assert.Equal(t, importer.ImportCompleted, prog.Status)
	assert.Equal(t, 1, prog.FilesScanned)
	assert.Equal(t, 1, prog.FilesSkipped)
}

func TestRun_MissingArchiveFolderIsFine(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.RemoveAll(f.paths.Archive))
	f.place(t, f.paths.Outbox, "FGM_001.xml", fgmShift)

	prog, err := f.svc.Run(context.Background(), f.integ)
	require.NoError(t, err)
	assert.Equal(t, 1, prog.FilesScanned)
}

func TestRun_UnknownPOSType(t *testing.T) {
	f := setup(t)
	f.integ.POSType = adapter.POSType("FANCY_POS")

	_, err := f.svc.Run(context.Background(), f.integ)
	require.ErrorIs(t, err, importer.ErrUnsupportedPOSType)
}

func TestProgress_Snapshot(t *testing.T) {
	f := setup(t)

	_, ok := f.svc.Progress("int-1")
	assert.False(t, ok)

	f.place(t, f.paths.Outbox, "FGM_001.xml", fgmShift)
	_, err := f.svc.Run(context.Background(), f.integ)
	require.NoError(t, err)

	prog, ok := f.svc.Progress("int-1")
	require.True(t, ok)
	assert.Equal(t, importer.ImportCompleted, prog.Status)
	assert.Equal(t, 1, prog.FilesScanned)
}
