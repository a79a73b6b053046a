// Package naxml parses NAXML 3.x documents produced by fuel/convenience
// point-of-sale controllers into typed variants. The generic tree stage
// lives in the xmltree subpackage; everything this package returns is
// strongly typed.
package naxml

import "time"

// DocumentType enumerates the recognized NAXML dialects.
type DocumentType string

const (
	DocTransaction      DocumentType = "TransactionDocument"
	DocPOSJournal       DocumentType = "POSJournal"
	DocDepartmentMaint  DocumentType = "DepartmentMaintenance"
	DocTenderMaint      DocumentType = "TenderMaintenance"
	DocTaxRateMaint     DocumentType = "TaxRateMaintenance"
	DocPriceBookMaint   DocumentType = "PriceBookMaintenance"
	DocEmployeeMaint    DocumentType = "EmployeeMaintenance"
	DocInventory        DocumentType = "InventoryMovement"
	DocFuelGradeMove    DocumentType = "FuelGradeMovement"
	DocFuelProductMove  DocumentType = "FuelProductMovement"
	DocMiscSummaryMove  DocumentType = "MiscellaneousSummaryMovement"
	DocTaxLevelMove     DocumentType = "TaxLevelMovement"
	DocMerchCodeMove    DocumentType = "MerchandiseCodeMovement"
	DocItemSalesMove    DocumentType = "ItemSalesMovement"
	DocTankProductMove  DocumentType = "TankProductMovement"
	DocAcknowledgment   DocumentType = "Acknowledgment"
)

// Document is the closed set of parsed NAXML variants.
type Document interface {
	Type() DocumentType
	DocumentHeader() Header
}

// Header carries the envelope every dialect shares.
type Header struct {
	Version          string
	VersionSupported bool
	StoreLocationID  string
	VendorName       string
	VendorModel      string
	Warnings         []string
}

// TransactionType enumerates PJR event kinds.
type TransactionType string

const (
	TxSale       TransactionType = "Sale"
	TxRefund     TransactionType = "Refund"
	TxVoidSale   TransactionType = "VoidSale"
	TxNoSale     TransactionType = "NoSale"
	TxPaidOut    TransactionType = "PaidOut"
	TxPaidIn     TransactionType = "PaidIn"
	TxSafeDrop   TransactionType = "SafeDrop"
	TxEndOfShift TransactionType = "EndOfShift"
)

// TransactionLine is one sale line inside a journal event.
type TransactionLine struct {
	LineNumber     int
	ItemCode       string
	ItemType       string
	Description    string
	DepartmentCode string
	Quantity       float64
	UnitPrice      float64
	ExtendedPrice  float64
	TaxCode        string
	TaxAmount      float64
	DiscountAmount float64
	ModifierCodes  []string
	IsVoid         bool
	IsRefund       bool
	IsChange       bool
}

// TenderLine is one payment inside a journal event.
type TenderLine struct {
	Code        string
	Description string
	Amount      float64
	Reference   string
	CardType    string
	CardLast4   string
	ChangeGiven float64
	IsChange    bool
}

// TaxLine is one tax summary row inside a journal event.
type TaxLine struct {
	Code          string
	TaxableAmount float64
	TaxAmount     float64
	TaxRate       float64
}

// TransactionTotals is the per-event totals block.
type TransactionTotals struct {
	Subtotal      float64
	TaxTotal      float64
	GrandTotal    float64
	DiscountTotal float64
	ChangeDue     float64
	ItemCount     int
}

// TransactionEvent is a single journal event (one POS transaction).
type TransactionEvent struct {
	TransactionID       string
	TerminalID          string
	CashierID           string
	BusinessDate        time.Time
	Timestamp           time.Time
	Kind                TransactionType
	Lines               []TransactionLine
	Tenders             []TenderLine
	Taxes               []TaxLine
	Totals              TransactionTotals
	Training            bool
	OutsideSale         bool
	Offline             bool
	Suspended           bool
	LinkedTransactionID string
	LinkReason          string
}

// TransactionDoc is a TransactionDocument or POSJournal file: one or more
// journal events under a shared envelope.
type TransactionDoc struct {
	Header  Header
	Kind    DocumentType // DocTransaction or DocPOSJournal
	StoreID string
	Events  []TransactionEvent
}

func (d *TransactionDoc) Type() DocumentType     { return d.Kind }
func (d *TransactionDoc) DocumentHeader() Header { return d.Header }

// MaintenanceMode distinguishes complete snapshots from deltas.
type MaintenanceMode string

const (
	MaintFull        MaintenanceMode = "Full"
	MaintIncremental MaintenanceMode = "Incremental"
)

// EntryAction is the per-entity action on a maintenance record.
type EntryAction string

const (
	ActionAdd       EntryAction = "Add"
	ActionUpdate    EntryAction = "Update"
	ActionDelete    EntryAction = "Delete"
	ActionAddUpdate EntryAction = "AddUpdate"
)

// MaintenanceEntry is one reference-data record inside a maintenance file.
type MaintenanceEntry struct {
	POSCode     string
	Description string
	Action      EntryAction
	Taxable     *bool
	Electronic  *bool
	TaxRate     *float64
	Fields      map[string]string
}

// MaintenanceDoc is a Department/Tender/TaxRate/PriceBook/Employee
// maintenance file.
type MaintenanceDoc struct {
	Header          Header
	Kind            DocumentType
	StoreID         string
	MaintenanceDate time.Time
	Mode            MaintenanceMode
	Entries         []MaintenanceEntry
}

func (d *MaintenanceDoc) Type() DocumentType     { return d.Kind }
func (d *MaintenanceDoc) DocumentHeader() Header { return d.Header }

// Report periods for movement headers.
const (
	PeriodDayClose   = 2
	PeriodShiftClose = 98
)

// MovementHeader is the report envelope shared by FGM/FPM/MSM/TLM/MCM.
type MovementHeader struct {
	ReportSequence  string
	PrimaryPeriod   int
	SecondaryPeriod int
	BusinessDate    time.Time
	BeginDate       time.Time
	BeginTime       string
	EndDate         time.Time
	EndTime         string
}

// SalesMovementHeader identifies the register context of a shift report.
type SalesMovementHeader struct {
	RegisterID string
	CashierID  string
	TillID     string
}

// FuelTenderCode is the fuel-tender allowlist for FGM tender summaries.
type FuelTenderCode string

const (
	FuelTenderCash          FuelTenderCode = "cash"
	FuelTenderOutsideCredit FuelTenderCode = "outsideCredit"
	FuelTenderOutsideDebit  FuelTenderCode = "outsideDebit"
	FuelTenderInsideCredit  FuelTenderCode = "insideCredit"
	FuelTenderInsideDebit   FuelTenderCode = "insideDebit"
	FuelTenderFleet         FuelTenderCode = "fleet"
)

// FuelTotals is the totals block attached to FGM summaries.
type FuelTotals struct {
	Volume            float64
	Amount            float64
	DiscountAmount    float64
	DiscountCount     float64
	TransactionCount  int
	TaxExemptAmount   float64
	DispenserDiscount float64
	PumpTestVolume    float64
	PumpTestAmount    float64
}

// FGMTenderSummary is the tender-keyed half of an FGM detail.
type FGMTenderSummary struct {
	TenderCode    FuelTenderCode
	TenderSubCode string
	SellPrice     float64
	ServiceLevel  string
	Totals        FuelTotals
}

// PriceTierSummary is one price tier inside a position summary.
type PriceTierSummary struct {
	TierCode string
	Totals   FuelTotals
}

// FGMPositionSummary is the position-keyed half of an FGM detail.
type FGMPositionSummary struct {
	PositionID            string
	NonResettableVolume   float64
	NonResettableAmount   float64
	HasNonResettable      bool
	Tiers                 []PriceTierSummary
}

// FGMDetail carries a grade id plus exactly one of a tender summary or
// one-or-more position summaries.
type FGMDetail struct {
	GradeID   string
	Tender    *FGMTenderSummary
	Positions []FGMPositionSummary
}

// FGMDoc is a FuelGradeMovement report.
type FGMDoc struct {
	Header   Header
	StoreID  string
	Movement MovementHeader
	Sales    *SalesMovementHeader
	Details  []FGMDetail
}

func (d *FGMDoc) Type() DocumentType     { return DocFuelGradeMove }
func (d *FGMDoc) DocumentHeader() Header { return d.Header }

// FPMReading is one cumulative (non-resettable) meter row.
type FPMReading struct {
	PositionID string
	Volume     float64
	Amount     float64
}

// FPMDetail groups the readings of one fuel product.
type FPMDetail struct {
	ProductID string
	Readings  []FPMReading
}

// FPMDoc is a FuelProductMovement report.
type FPMDoc struct {
	Header   Header
	StoreID  string
	Movement MovementHeader
	Details  []FPMDetail
}

func (d *FPMDoc) Type() DocumentType     { return DocFuelProductMove }
func (d *FPMDoc) DocumentHeader() Header { return d.Header }

// MSMDetail is one miscellaneous-summary triple with its totals.
type MSMDetail struct {
	Code       string
	SubCode    string
	Modifier   string
	RegisterID string
	CashierID  string
	TillID     string
	Amount     float64
	Count      float64
	Tender     string
}

// MSMDoc is a MiscellaneousSummaryMovement report.
type MSMDoc struct {
	Header   Header
	StoreID  string
	Movement MovementHeader
	Details  []MSMDetail
}

func (d *MSMDoc) Type() DocumentType     { return DocMiscSummaryMove }
func (d *MSMDoc) DocumentHeader() Header { return d.Header }

// TLMDetail is one tax-level movement row; vendors that never emit pure
// TaxRateMaintenance deliver rate changes this way.
type TLMDetail struct {
	TaxLevelID         string
	Description        string
	TaxRate            float64
	TaxableSalesAmount float64
	TaxCollectedAmount float64
}

// TLMDoc is a TaxLevelMovement report.
type TLMDoc struct {
	Header   Header
	StoreID  string
	Movement MovementHeader
	Details  []TLMDetail
}

func (d *TLMDoc) Type() DocumentType     { return DocTaxLevelMove }
func (d *TLMDoc) DocumentHeader() Header { return d.Header }

// MCMDetail is one merchandise-code movement row; the department analogue
// of TLM for vendors without DepartmentMaintenance files.
type MCMDetail struct {
	MerchandiseCode string
	Description     string
	SalesAmount     float64
	SalesCount      float64
}

// MCMDoc is a MerchandiseCodeMovement report.
type MCMDoc struct {
	Header   Header
	StoreID  string
	Movement MovementHeader
	Details  []MCMDetail
}

func (d *MCMDoc) Type() DocumentType     { return DocMerchCodeMove }
func (d *MCMDoc) DocumentHeader() Header { return d.Header }

// GenericMovementDoc covers recognized-but-unprojected movement dialects
// (ItemSales, TankProduct, Inventory). Routing fails them with
// UNSUPPORTED_DOCUMENT_TYPE rather than UNKNOWN.
type GenericMovementDoc struct {
	Header   Header
	Kind     DocumentType
	StoreID  string
	Movement MovementHeader
}

func (d *GenericMovementDoc) Type() DocumentType     { return d.Kind }
func (d *GenericMovementDoc) DocumentHeader() Header { return d.Header }

// AckError is one error row inside an acknowledgment.
type AckError struct {
	Code    string
	Message string
}

// AckDoc is a POS acknowledgment of a previously exported document.
type AckDoc struct {
	Header       Header
	StoreID      string
	DocumentName string
	Status       string
	Errors       []AckError
}

func (d *AckDoc) Type() DocumentType     { return DocAcknowledgment }
func (d *AckDoc) DocumentHeader() Header { return d.Header }
