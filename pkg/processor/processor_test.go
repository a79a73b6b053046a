package processor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/processor"
	"github.com/cstorehq/backoffice/pkg/projector"
	"github.com/cstorehq/backoffice/pkg/store"
)

type fixture struct {
	proc  *processor.Processor
	store *store.Store
	reg   *adapter.Registry
	integ *store.POSIntegration
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &store.User{CompanyID: "co-1", Role: "import"}))

	integ := &store.POSIntegration{
		CompanyID:       "co-1",
		StoreID:         "st-1",
		POSType:         adapter.POSGilbarcoPassport,
		ConnectionMode:  store.ConnFileExchange,
		SyncDepartments: true,
		SyncTenderTypes: true,
		SyncCashiers:    true,
		SyncTaxRates:    true,
		IsActive:        true,
	}
	require.NoError(t, s.CreateIntegration(ctx, integ))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := adapter.NewRegistry()
	proc := processor.New(s, projector.New(s, log), audit.NewRecorder(s, log), log)
	return &fixture{proc: proc, store: s, reg: reg, integ: integ}
}

func (f *fixture) input(t *testing.T, posType adapter.POSType, name string, data string) processor.Input {
	t.Helper()
	a, ok := f.reg.Get(posType)
	require.True(t, ok)
	return processor.Input{
		Integration: f.integ,
		Adapter:     a,
		FileName:    name,
		FileHash:    "hash-" + name,
		Data:        []byte(data),
	}
}

// lastAudit returns the most recently created audit record for the
// fixture store.
func (f *fixture) lastAudit(t *testing.T) *store.AuditRecord {
	t.Helper()
	var id string
	err := f.store.DB().QueryRow(
		`SELECT exchange_id FROM audit_records ORDER BY created_at DESC, exchange_id LIMIT 1`).Scan(&id)
	require.NoError(t, err, "no audit records")

	rec, err := f.store.GetAuditRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}

const fgmDayClose = `<NAXML-MovementReport version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <FuelGradeMovement>
    <FGMHeader>
      <PrimaryReportPeriod>2</PrimaryReportPeriod>
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
      <FuelGradeID>003</FuelGradeID>
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

func TestProcess_FGMHappyPath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "FGM_241.xml", fgmDayClose))
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, out.Status)
	assert.Equal(t, naxml.DocFuelGradeMove, out.DocumentType)
	assert.Equal(t, 2, out.RecordCount)

	rec := f.lastAudit(t)
	assert.Equal(t, store.AuditSuccess, rec.Status)
	assert.Equal(t, "FILE_IMPORT", rec.ExchangeType)
	assert.Equal(t, audit.PolicyFinancial, rec.RetentionPolicy)
	assert.Equal(t, "FGM_241.xml", rec.FileName)
	assert.False(t, rec.CompletedAt.IsZero())

	// Gilbarco reports label the prior day; sales land on Jan 10.
	day, err := f.store.GetDaySummary(ctx, f.store.DB(), "st-1",
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 490.0, day.FuelSales, 1e-9)
	assert.InDelta(t, 150.0, day.FuelGallons, 1e-9)
}

const pjrTwoSales = `<NAXML-POSJournal version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <JournalReport>
    <SaleEvent>
      <TransactionID>5001</TransactionID>
      <TerminalID>1</TerminalID>
      <BusinessDate>2026-01-10</BusinessDate>
      <EventDateTime>2026-01-10T09:00:00</EventDateTime>
      <TransactionType>Sale</TransactionType>
      <TransactionDetailGroup>
        <LineItem>
          <LineNumber>1</LineNumber>
          <Description>COFFEE</Description>
          <DepartmentCode>020</DepartmentCode>
          <Quantity>1</Quantity>
          <UnitPrice>1.99</UnitPrice>
          <ExtendedPrice>1.99</ExtendedPrice>
        </LineItem>
        <Tender><TenderCode>CA</TenderCode><TenderAmount>1.99</TenderAmount></Tender>
      </TransactionDetailGroup>
      <TransactionTotals><GrandTotal>1.99</GrandTotal><ItemCount>1</ItemCount></TransactionTotals>
    </SaleEvent>
    <SaleEvent>
      <TransactionID>5002</TransactionID>
      <TerminalID>1</TerminalID>
      <BusinessDate>2026-01-10</BusinessDate>
      <EventDateTime>2026-01-10T09:05:00</EventDateTime>
      <TransactionType>Sale</TransactionType>
      <TransactionDetailGroup>
        <LineItem>
          <LineNumber>1</LineNumber>
          <Description>WATER</Description>
          <DepartmentCode>020</DepartmentCode>
          <Quantity>1</Quantity>
          <UnitPrice>2.49</UnitPrice>
          <ExtendedPrice>2.49</ExtendedPrice>
        </LineItem>
        <Tender><TenderCode>CA</TenderCode><TenderAmount>2.49</TenderAmount></Tender>
      </TransactionDetailGroup>
      <TransactionTotals><GrandTotal>2.49</GrandTotal><ItemCount>1</ItemCount></TransactionTotals>
    </SaleEvent>
  </JournalReport>
</NAXML-POSJournal>`

func TestProcess_JournalThenDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Journals book to an existing shift; they never open one.
	_, err := f.store.FindOrCreateShift(ctx, f.store.DB(), "co-1", "st-1",
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), "1", "101")
	require.NoError(t, err)

	in := f.input(t, adapter.POSGilbarcoPassport, "PJR_241.xml", pjrTwoSales)
	out, err := f.proc.Process(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, out.Status)
	assert.Equal(t, 2, out.RecordCount)

	// Same bytes delivered again: the projection-level hash gate skips
	// the file without writing rows.
	out, err = f.proc.Process(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, store.FileSkipped, out.Status)
	assert.Equal(t, "DUPLICATE", out.SkipReason)
	assert.True(t, out.Duplicate)
	assert.Zero(t, out.RecordCount)

	txs, err := f.store.ListTransactionsByDate(ctx, "st-1",
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestProcess_MalformedXML(t *testing.T) {
	f := setup(t)

	out, err := f.proc.Process(context.Background(),
		f.input(t, adapter.POSGilbarcoPassport, "broken.xml", `<DepartmentMaintenance><Department>`))
	require.NoError(t, err)
	assert.Equal(t, store.FileFailed, out.Status)
	assert.Equal(t, string(naxml.CodeInvalidXML), out.ErrorCode)

	rec := f.lastAudit(t)
	assert.Equal(t, store.AuditFailed, rec.Status)
	assert.Equal(t, string(naxml.CodeInvalidXML), rec.ErrorCode)
}

func TestProcess_UnknownRoot(t *testing.T) {
	f := setup(t)

	out, err := f.proc.Process(context.Background(),
		f.input(t, adapter.POSGilbarcoPassport, "odd.xml", `<SomeVendorExtension><X>1</X></SomeVendorExtension>`))
	require.NoError(t, err)
	assert.Equal(t, store.FileFailed, out.Status)
	assert.Equal(t, string(naxml.CodeUnknownDocumentType), out.ErrorCode)
}

const ismReport = `<NAXML-MovementReport version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <ItemSalesMovement>
    <ISMHeader><PrimaryReportPeriod>2</PrimaryReportPeriod><BusinessDate>2026-01-09</BusinessDate></ISMHeader>
  </ItemSalesMovement>
</NAXML-MovementReport>`

func TestProcess_RecognizedButUnprojected(t *testing.T) {
	f := setup(t)

	out, err := f.proc.Process(context.Background(),
		f.input(t, adapter.POSGilbarcoPassport, "ISM_241.xml", ismReport))
	require.NoError(t, err)
	assert.Equal(t, store.FileFailed, out.Status)
	assert.Equal(t, processor.CodeUnsupportedDocument, out.ErrorCode)
	assert.Equal(t, naxml.DocItemSalesMove, out.DocumentType)
}

const tlmReport = `<NAXML-MovementReport version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <TaxLevelMovement>
    <TLMHeader><PrimaryReportPeriod>2</PrimaryReportPeriod><BusinessDate>2026-01-09</BusinessDate></TLMHeader>
    <TLMDetail>
      <TaxLevelID>1</TaxLevelID>
      <Description>STATE SALES</Description>
      <TaxRate>7.000</TaxRate>
    </TLMDetail>
  </TaxLevelMovement>
</NAXML-MovementReport>`

func TestProcess_TLMExtraction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Gilbarco declares the extraction capability: the TLM becomes a tax
	// rate sync.
	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "TLM_241.xml", tlmReport))
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, out.Status)
	assert.Equal(t, 1, out.RecordCount)

	rates, err := f.store.ListTaxRates(ctx, f.store.DB(), "st-1", "GILBARCO_NAXML")
	require.NoError(t, err)
	require.Contains(t, rates, "1")
	assert.InDelta(t, 7.0, rates["1"].RatePercent, 1e-9)
}

func TestProcess_TLMWithoutCapabilityFails(t *testing.T) {
	f := setup(t)

	// Verifone does not extract movement-borne reference data.
	out, err := f.proc.Process(context.Background(),
		f.input(t, adapter.POSVerifoneRuby2, "TLM_241.xml", tlmReport))
	require.NoError(t, err)
	assert.Equal(t, store.FileFailed, out.Status)
	assert.Equal(t, processor.CodeUnsupportedDocument, out.ErrorCode)
}

func TestProcess_AcknowledgmentResolvesExport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := audit.NewRecorder(f.store, log)

	exportID, err := rec.Begin(ctx, audit.Exchange{
		CompanyID:    "co-1",
		StoreID:      "st-1",
		Type:         "DEPARTMENT_EXPORT",
		Direction:    "OUTBOUND",
		DataCategory: "POS_EXCHANGE",
		FileName:     "DeptMaint_20260110T120000.xml",
		FileHash:     "export-hash",
	})
	require.NoError(t, err)
	require.NoError(t, rec.Start(ctx, exportID))

	ack := `<Acknowledgment version="3.4">
		<DocumentName>DeptMaint_20260110T120000.xml</DocumentName>
		<Status>Accepted</Status>
	</Acknowledgment>`
	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "ACK_241.xml", ack))
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, out.Status)
	assert.Equal(t, 1, out.RecordCount)

	resolved, err := f.store.GetAuditRecord(ctx, exportID)
	require.NoError(t, err)
	assert.Equal(t, store.AuditSuccess, resolved.Status)
}

func TestProcess_AcknowledgmentRejection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := audit.NewRecorder(f.store, log)

	exportID, err := rec.Begin(ctx, audit.Exchange{
		CompanyID: "co-1",
		StoreID:   "st-1",
		Type:      "TAXRATE_EXPORT",
		Direction: "OUTBOUND",
		FileName:  "TaxMaint_20260110T130000.xml",
	})
	require.NoError(t, err)
	require.NoError(t, rec.Start(ctx, exportID))

	ack := `<Acknowledgment version="3.4">
		<DocumentName>TaxMaint_20260110T130000.xml</DocumentName>
		<Status>Rejected</Status>
		<Error><Code>E042</Code><Message>unknown tax level</Message></Error>
	</Acknowledgment>`
	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "ACK_242.xml", ack))
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, out.Status, "the ack file itself processed fine")

	resolved, err := f.store.GetAuditRecord(ctx, exportID)
	require.NoError(t, err)
	assert.Equal(t, store.AuditFailed, resolved.Status)
	assert.Equal(t, "POS_REJECTED", resolved.ErrorCode)
	assert.Contains(t, resolved.ErrorMessage, "E042")
}

func TestProcess_AcknowledgmentForUnknownExport(t *testing.T) {
	f := setup(t)

	ack := `<Acknowledgment version="3.4">
		<DocumentName>Never_Exported.xml</DocumentName>
		<Status>Accepted</Status>
	</Acknowledgment>`
	out, err := f.proc.Process(context.Background(),
		f.input(t, adapter.POSGilbarcoPassport, "ACK_243.xml", ack))
	require.NoError(t, err)
	assert.Equal(t, store.FilePartial, out.Status)
	assert.Contains(t, out.ErrorMessage, "Never_Exported.xml")
}

const deptMaintGood = `<DepartmentMaintenance version="3.4">
  <TransmissionHeader><StoreLocationID>241</StoreLocationID></TransmissionHeader>
  <MaintenanceHeader>
    <MaintenanceDate>2026-01-10</MaintenanceDate>
    <TableAction>Incremental</TableAction>
  </MaintenanceHeader>
  <Department Action="AddUpdate">
    <DepartmentCode>010</DepartmentCode>
    <Description>GROCERY</Description>
  </Department>
</DepartmentMaintenance>`

func TestProcess_DepartmentMaintenance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "DEPT_241.xml", deptMaintGood))
	require.NoError(t, err)
	assert.Equal(t, store.FileSuccess, out.Status)
	assert.Equal(t, 1, out.RecordCount)

	depts, err := f.store.ListDepartments(ctx, f.store.DB(), "st-1", "GILBARCO_NAXML")
	require.NoError(t, err)
	assert.Contains(t, depts, "010")
}

func TestProcess_DisabledCategoryIsSkipped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.integ.SyncDepartments = false

	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "DEPT_241.xml", deptMaintGood))
	require.NoError(t, err)
	assert.Equal(t, store.FileSkipped, out.Status)
	assert.Equal(t, processor.SkipSyncDisabled, out.SkipReason)
	assert.Zero(t, out.RecordCount)

	depts, err := f.store.ListDepartments(ctx, f.store.DB(), "st-1", "GILBARCO_NAXML")
	require.NoError(t, err)
	assert.Empty(t, depts)
}

func TestProcess_DisabledCategoryGatesExtraction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.integ.SyncTaxRates = false

	// TLM extraction feeds the tax-rate sync, so the same gate applies.
	out, err := f.proc.Process(ctx, f.input(t, adapter.POSGilbarcoPassport, "TLM_241.xml", tlmReport))
	require.NoError(t, err)
	assert.Equal(t, store.FileSkipped, out.Status)
	assert.Equal(t, processor.SkipSyncDisabled, out.SkipReason)

	rates, err := f.store.ListTaxRates(ctx, f.store.DB(), "st-1", "GILBARCO_NAXML")
	require.NoError(t, err)
	assert.Empty(t, rates)
}

const deptMaintNoCode = `<DepartmentMaintenance version="3.4">
  <MaintenanceHeader><TableAction>Incremental</TableAction></MaintenanceHeader>
  <Department Action="AddUpdate">
    <Description>NO CODE</Description>
  </Department>
</DepartmentMaintenance>`

func TestProcess_MaintenanceEntryWithoutCodeFails(t *testing.T) {
	f := setup(t)

	out, err := f.proc.Process(context.Background(),
		f.input(t, adapter.POSGilbarcoPassport, "DEPT_242.xml", deptMaintNoCode))
	require.NoError(t, err)
	assert.Equal(t, store.FileFailed, out.Status)
	assert.Equal(t, string(naxml.CodeMissingField), out.ErrorCode)

	rec := f.lastAudit(t)
	assert.Equal(t, store.AuditFailed, rec.Status)
}
