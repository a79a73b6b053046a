package store

import (
	"time"

	"github.com/cstorehq/backoffice/pkg/adapter"
)

// ConnectionMode is how an integration reaches its POS.
type ConnectionMode string

const (
	ConnNetwork      ConnectionMode = "NETWORK"
	ConnFileExchange ConnectionMode = "FILE_EXCHANGE"
)

// POSIntegration is the 1:1 store↔POS binding with its exchange and sync
// configuration. Encrypted credentials are opaque to the core.
type POSIntegration struct {
	ID                   string
	CompanyID            string
	StoreID              string
	POSType              adapter.POSType
	ConnectionMode       ConnectionMode
	ExchangeRoot         string
	ExportPath           string
	ImportPath           string
	ArchivePath          string
	ErrorPath            string
	NAXMLVersion         string
	StoreLocationID      string
	EncryptedCredentials string
	GenerateAcks         bool
	ArchiveProcessed     bool
	SyncEnabled          bool
	SyncIntervalMins     int
	SyncDepartments      bool
	SyncTenderTypes      bool
	SyncCashiers         bool
	SyncTaxRates         bool
	IsActive             bool
	PollIntervalSeconds  int
	LastSyncAt           time.Time
	NextSyncAt           time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FileBased reports whether the integration exchanges documents through
// folders (and therefore gets a watcher).
func (i *POSIntegration) FileBased() bool {
	return i.ConnectionMode == ConnFileExchange || i.ExchangeRoot != ""
}

// FileStatus is the FileLog lifecycle.
type FileStatus string

const (
	FilePending    FileStatus = "PENDING"
	FileProcessing FileStatus = "PROCESSING"
	FileSuccess    FileStatus = "SUCCESS"
	FileFailed     FileStatus = "FAILED"
	FilePartial    FileStatus = "PARTIAL"
	FileSkipped    FileStatus = "SKIPPED"
)

// Terminal reports whether the status admits no further transition.
func (s FileStatus) Terminal() bool {
	switch s {
	case FileSuccess, FileFailed, FilePartial, FileSkipped:
		return true
	}
	return false
}

// FileLog records one observed exchange file. (store_id, file_hash)
// uniqueness is the exactly-once guarantee.
type FileLog struct {
	ID            string
	CompanyID     string
	StoreID       string
	FileName      string
	FileType      string
	Direction     string // INBOUND | OUTBOUND
	Status        FileStatus
	FileHash      string
	SizeBytes     int64
	RecordCount   int
	ProcessingMs  int64
	ErrorCode     string
	ErrorMessage  string
	SkipReason    string
	SourcePath    string
	ProcessedPath string
	CreatedAt     time.Time
	ProcessedAt   time.Time
}

// Department is a merchandise department discovered from maintenance or
// journal files.
type Department struct {
	ID           string
	CompanyID    string
	StoreID      string
	Code         string
	POSCode      string
	Name         string
	Taxable      bool
	IsActive     bool
	POSSource    string
	LastSyncedAt time.Time
	UpdatedAt    time.Time
}

// TenderType is a method of payment.
type TenderType struct {
	ID           string
	CompanyID    string
	StoreID      string
	Code         string
	POSCode      string
	Name         string
	Electronic   bool
	IsActive     bool
	POSSource    string
	LastSyncedAt time.Time
	UpdatedAt    time.Time
}

// TaxRate is a tax level with its percentage.
type TaxRate struct {
	ID           string
	CompanyID    string
	StoreID      string
	Code         string
	POSCode      string
	Name         string
	RatePercent  float64
	IsActive     bool
	POSSource    string
	LastSyncedAt time.Time
	UpdatedAt    time.Time
}

// FuelProductType buckets grades for reporting.
type FuelProductType string

const (
	FuelGasoline FuelProductType = "GASOLINE"
	FuelDiesel   FuelProductType = "DIESEL"
	FuelDEF      FuelProductType = "DEF"
	FuelKerosene FuelProductType = "KEROSENE"
	FuelOther    FuelProductType = "OTHER"
)

// FuelGrade is a fuel product, company-scoped with stable vendor identity.
type FuelGrade struct {
	ID          string
	CompanyID   string
	GradeID     string
	Name        string
	ProductType FuelProductType
	CreatedAt   time.Time
}

// FuelPosition is a dispenser position at one store.
type FuelPosition struct {
	ID         string
	CompanyID  string
	StoreID    string
	PositionID string
	Name       string
	CreatedAt  time.Time
}

// FuelTenderBucket is the projected tender dimension on fuel summaries.
type FuelTenderBucket string

const (
	BucketCash          FuelTenderBucket = "CASH"
	BucketOutsideCredit FuelTenderBucket = "OUTSIDE_CREDIT"
	BucketOutsideDebit  FuelTenderBucket = "OUTSIDE_DEBIT"
	BucketInsideCredit  FuelTenderBucket = "INSIDE_CREDIT"
	BucketInsideDebit   FuelTenderBucket = "INSIDE_DEBIT"
	BucketFleet         FuelTenderBucket = "FLEET"
	BucketOther         FuelTenderBucket = "OTHER"
)

// ShiftFuelSummary is the per-(shift, grade, tender) fuel rollup.
type ShiftFuelSummary struct {
	ID               string
	CompanyID        string
	StoreID          string
	ShiftSummaryID   string
	FuelGradeID      string
	TenderType       FuelTenderBucket
	BusinessDate     time.Time
	Volume           float64
	Amount           float64
	DiscountAmount   float64
	TransactionCount int
	SourceFileHash   string
	UpdatedAt        time.Time
}

// MeterReadingType distinguishes open/close meter captures.
type MeterReadingType string

const (
	ReadingOpen  MeterReadingType = "OPEN"
	ReadingClose MeterReadingType = "CLOSE"
)

// MeterReading is a lifetime-cumulative dispenser totalizer row.
type MeterReading struct {
	ID             string
	CompanyID      string
	StoreID        string
	PositionID     string
	ProductID      string
	BusinessDate   time.Time
	ReadingType    MeterReadingType
	Volume         float64
	Amount         float64
	SourceFileHash string
	CreatedAt      time.Time
}

// DaySummary is the per-(store, business date) rollup.
type DaySummary struct {
	ID               string
	CompanyID        string
	StoreID          string
	BusinessDate     time.Time
	FuelSales        float64
	FuelGallons      float64
	MerchandiseSales float64
	NetSales         float64
	GrossSales       float64
	TaxTotal         float64
	TransactionCount int
	VoidCount        int
	RefundCount      int
	SafeDropTotal    float64
	SafeLoanTotal    float64
	OpeningBalance   float64
	ClosingBalance   float64
	UpdatedAt        time.Time
}

// ShiftStatus is the shift lifecycle.
type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "OPEN"
	ShiftClosed ShiftStatus = "CLOSED"
)

// ShiftSummary is one register shift at a store.
type ShiftSummary struct {
	ID           string
	CompanyID    string
	StoreID      string
	BusinessDate time.Time
	RegisterID   string
	CashierID    string
	TillID       string
	Status       ShiftStatus
	NetSales     float64
	OpenedAt     time.Time
	ClosedAt     time.Time
}

// Transaction is one projected POS transaction.
type Transaction struct {
	ID                  string
	PublicID            string
	CompanyID           string
	StoreID             string
	POSTransactionID    string
	TerminalID          string
	CashierCode         string
	ShiftID             string
	UserID              string
	Kind                string
	BusinessDate        time.Time
	Timestamp           time.Time
	NetTotal            float64
	TaxTotal            float64
	DiscountTotal       float64
	GrandTotal          float64
	ItemCount           int
	IsTrainingMode      bool
	IsOutsideSale       bool
	IsOffline           bool
	IsSuspended         bool
	LinkedTransactionID string
	LinkReason          string
	SourceFileHash      string
	CreatedAt           time.Time
}

// LineItemType is the projected line classification.
type LineItemType string

const (
	LineFuel        LineItemType = "FUEL"
	LineLottery     LineItemType = "LOTTERY"
	LinePrepay      LineItemType = "PREPAY"
	LineMerchandise LineItemType = "MERCHANDISE"
)

// LineItem is one projected sale line.
type LineItem struct {
	ID             string
	TransactionID  string
	StoreID        string
	LineNumber     int
	ItemCode       string
	ItemType       LineItemType
	Description    string
	DepartmentCode string
	Quantity       float64
	UnitPrice      float64
	ExtendedPrice  float64
	TaxAmount      float64
	DiscountAmount float64
	IsVoid         bool
	IsRefund       bool
}

// Payment is one projected tender on a transaction.
type Payment struct {
	ID            string
	TransactionID string
	StoreID       string
	TenderCode    string
	Description   string
	Amount        float64
	Reference     string
	CardType      string
	CardLast4     string
	ChangeGiven   float64
}

// User is the minimal slice of the platform user model the projector
// needs for import attribution.
type User struct {
	ID        string
	CompanyID string
	Role      string // import | owner | staff
}

// SyncStatus is the per-cycle aggregate outcome.
type SyncStatus string

const (
	SyncSuccess        SyncStatus = "SUCCESS"
	SyncPartialSuccess SyncStatus = "PARTIAL_SUCCESS"
	SyncFailed         SyncStatus = "FAILED"
)

// CategoryCounts is the per-category result of a sync cycle.
type CategoryCounts struct {
	Received    int      `json:"received"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Deactivated int      `json:"deactivated"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors,omitempty"`
}

// SyncLog captures one sync cycle for one integration.
type SyncLog struct {
	ID            string
	IntegrationID string
	CompanyID     string
	StoreID       string
	Status        SyncStatus
	Categories    map[string]CategoryCounts
	DurationMs    int64
	StartedAt     time.Time
	CompletedAt   time.Time
}
