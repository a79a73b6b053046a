// Package export constructs outbound NAXML maintenance documents and
// acknowledgment files. Every emitted file is content-hashed and tracked
// by an outbound audit record; the record stays open until the POS
// acknowledges the document.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/store"
)

// File name prefixes, matched by the vendor classification tables.
const (
	PrefixDepartments = "DeptMaint"
	PrefixTenderTypes = "TenderMaint"
	PrefixTaxRates    = "TaxMaint"
	PrefixPriceBook   = "PriceBook"
	PrefixEmployees   = "EmpMaint"
)

const timestampLayout = "20060102T150405"

// Target binds an export run to its integration.
type Target struct {
	Integration *store.POSIntegration
	Paths       adapter.Paths
}

// Result describes one emitted file.
type Result struct {
	FileName    string
	FileHash    string
	RecordCount int
	ExchangeID  string
}

// Exporter writes maintenance snapshots into vendor inboxes.
type Exporter struct {
	store *store.Store
	audit *audit.Recorder
	log   *slog.Logger
	now   func() time.Time
}

// New builds an exporter.
func New(s *store.Store, rec *audit.Recorder, log *slog.Logger) *Exporter {
	return &Exporter{
		store: s,
		audit: rec,
		log:   log.With("component", "export"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type transmissionHeader struct {
	StoreLocationID string `xml:"StoreLocationID"`
}

type maintenanceHeader struct {
	MaintenanceDate string `xml:"MaintenanceDate"`
	TableAction     string `xml:"TableAction"`
}

type departmentEntry struct {
	Action         string `xml:"Action,attr"`
	DepartmentCode string `xml:"DepartmentCode"`
	Description    string `xml:"Description"`
	TaxableFlag    string `xml:"TaxableFlag"`
}

type departmentMaintenance struct {
	XMLName     xml.Name           `xml:"DepartmentMaintenance"`
	Version     string             `xml:"version,attr"`
	Header      transmissionHeader `xml:"TransmissionHeader"`
	Maintenance maintenanceHeader  `xml:"MaintenanceHeader"`
	Departments []departmentEntry  `xml:"Department"`
}

type tenderEntry struct {
	Action         string `xml:"Action,attr"`
	TenderCode     string `xml:"TenderCode"`
	Description    string `xml:"Description"`
	ElectronicFlag string `xml:"ElectronicFlag"`
}

type tenderMaintenance struct {
	XMLName     xml.Name           `xml:"TenderMaintenance"`
	Version     string             `xml:"version,attr"`
	Header      transmissionHeader `xml:"TransmissionHeader"`
	Maintenance maintenanceHeader  `xml:"MaintenanceHeader"`
	Tenders     []tenderEntry      `xml:"Tender"`
}

type taxRateEntry struct {
	Action         string  `xml:"Action,attr"`
	TaxRateCode    string  `xml:"TaxRateCode"`
	Description    string  `xml:"Description"`
	TaxRatePercent float64 `xml:"TaxRatePercent"`
}

type taxRateMaintenance struct {
	XMLName     xml.Name           `xml:"TaxRateMaintenance"`
	Version     string             `xml:"version,attr"`
	Header      transmissionHeader `xml:"TransmissionHeader"`
	Maintenance maintenanceHeader  `xml:"MaintenanceHeader"`
	TaxRates    []taxRateEntry     `xml:"TaxRate"`
}

// PriceBookItem is one sellable item supplied by the platform's price
// book, which lives upstream of this core.
type PriceBookItem struct {
	ItemCode       string
	Description    string
	DepartmentCode string
	UnitPrice      float64
}

type priceBookItem struct {
	Action         string  `xml:"Action,attr"`
	ItemCode       string  `xml:"ItemCode"`
	Description    string  `xml:"Description"`
	DepartmentCode string  `xml:"DepartmentCode"`
	UnitPrice      float64 `xml:"RegularSellPrice"`
}

type priceBookMaintenance struct {
	XMLName     xml.Name           `xml:"PriceBookMaintenance"`
	Version     string             `xml:"version,attr"`
	Header      transmissionHeader `xml:"TransmissionHeader"`
	Maintenance maintenanceHeader  `xml:"MaintenanceHeader"`
	Items       []priceBookItem    `xml:"Item"`
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func (e *Exporter) version(t Target) string {
	if v := t.Integration.NAXMLVersion; v != "" {
		return v
	}
	return "3.4"
}

func (e *Exporter) envelope(t Target) (transmissionHeader, maintenanceHeader) {
	return transmissionHeader{StoreLocationID: t.Integration.StoreLocationID},
		maintenanceHeader{
			MaintenanceDate: e.now().Format("2006-01-02"),
			TableAction:     "Full",
		}
}

// ExportDepartments emits the active departments as a Full snapshot.
func (e *Exporter) ExportDepartments(ctx context.Context, t Target) (*Result, error) {
	depts, err := e.store.ListDepartments(ctx, e.store.DB(), t.Integration.StoreID, t.Integration.POSType.PosSource())
	if err != nil {
		return nil, err
	}
	th, mh := e.envelope(t)
	doc := departmentMaintenance{Version: e.version(t), Header: th, Maintenance: mh}
	for _, code := range sortedKeys(depts) {
		d := depts[code]
		if !d.IsActive {
			continue
		}
		doc.Departments = append(doc.Departments, departmentEntry{
			Action:         "AddUpdate",
			DepartmentCode: d.POSCode,
			Description:    d.Name,
			TaxableFlag:    yn(d.Taxable),
		})
	}
	return e.emit(ctx, t, PrefixDepartments, "DEPARTMENT_EXPORT", doc, len(doc.Departments))
}

// ExportTenderTypes emits the active tender types as a Full snapshot.
func (e *Exporter) ExportTenderTypes(ctx context.Context, t Target) (*Result, error) {
	tenders, err := e.store.ListTenderTypes(ctx, e.store.DB(), t.Integration.StoreID, t.Integration.POSType.PosSource())
	if err != nil {
		return nil, err
	}
	th, mh := e.envelope(t)
	doc := tenderMaintenance{Version: e.version(t), Header: th, Maintenance: mh}
	for _, code := range sortedKeys(tenders) {
		tt := tenders[code]
		if !tt.IsActive {
			continue
		}
		doc.Tenders = append(doc.Tenders, tenderEntry{
			Action:         "AddUpdate",
			TenderCode:     tt.POSCode,
			Description:    tt.Name,
			ElectronicFlag: yn(tt.Electronic),
		})
	}
	return e.emit(ctx, t, PrefixTenderTypes, "TENDER_EXPORT", doc, len(doc.Tenders))
}

// ExportTaxRates emits the active tax rates as a Full snapshot.
func (e *Exporter) ExportTaxRates(ctx context.Context, t Target) (*Result, error) {
	rates, err := e.store.ListTaxRates(ctx, e.store.DB(), t.Integration.StoreID, t.Integration.POSType.PosSource())
	if err != nil {
		return nil, err
	}
	th, mh := e.envelope(t)
	doc := taxRateMaintenance{Version: e.version(t), Header: th, Maintenance: mh}
	for _, code := range sortedKeys(rates) {
		r := rates[code]
		if !r.IsActive {
			continue
		}
		doc.TaxRates = append(doc.TaxRates, taxRateEntry{
			Action:         "AddUpdate",
			TaxRateCode:    r.POSCode,
			Description:    r.Name,
			TaxRatePercent: r.RatePercent,
		})
	}
	return e.emit(ctx, t, PrefixTaxRates, "TAXRATE_EXPORT", doc, len(doc.TaxRates))
}

// ExportPriceBook emits a price book snapshot. Items come from the
// caller; the price book itself is owned by the platform.
func (e *Exporter) ExportPriceBook(ctx context.Context, t Target, items []PriceBookItem) (*Result, error) {
	th, mh := e.envelope(t)
	doc := priceBookMaintenance{Version: e.version(t), Header: th, Maintenance: mh}
	for _, it := range items {
		doc.Items = append(doc.Items, priceBookItem{
			Action:         "AddUpdate",
			ItemCode:       it.ItemCode,
			Description:    it.Description,
			DepartmentCode: it.DepartmentCode,
			UnitPrice:      it.UnitPrice,
		})
	}
	return e.emit(ctx, t, PrefixPriceBook, "PRICEBOOK_EXPORT", doc, len(doc.Items))
}

// emit serializes, audits, and writes one outbound document. The audit
// record is created before the file exists and stays PROCESSING until
// the POS acknowledgment closes it.
func (e *Exporter) emit(ctx context.Context, t Target, prefix, exchangeType string, doc any, records int) (*Result, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", prefix, err)
	}
	data := append([]byte(xml.Header), body...)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	name := fmt.Sprintf("%s_%s.xml", prefix, e.now().Format(timestampLayout))

	exchangeID, err := e.audit.Begin(ctx, audit.Exchange{
		CompanyID:         t.Integration.CompanyID,
		StoreID:           t.Integration.StoreID,
		Type:              exchangeType,
		Direction:         "OUTBOUND",
		DataCategory:      "POS_EXCHANGE",
		SourceSystem:      "backoffice",
		DestinationSystem: t.Integration.POSType.PosSource(),
		FileName:          name,
		FileHash:          hash,
		DataSize:          int64(len(data)),
	})
	if err != nil {
		return nil, err
	}
	if err := e.audit.Start(ctx, exchangeID); err != nil {
		return nil, err
	}

	if err := writeAtomic(filepath.Join(t.Paths.Inbox, name), data); err != nil {
		if cerr := e.audit.Complete(ctx, exchangeID, store.AuditFailed, 0, "WRITE_FAILED", err.Error()); cerr != nil {
			e.log.Error("audit completion failed", "exchangeId", exchangeID, "error", cerr)
		}
		return nil, err
	}

	e.log.Info("document exported",
		"file", name, "type", exchangeType, "records", records, "store", t.Integration.StoreID)
	return &Result{FileName: name, FileHash: hash, RecordCount: records, ExchangeID: exchangeID}, nil
}

type ackError struct {
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

type acknowledgment struct {
	XMLName      xml.Name           `xml:"Acknowledgment"`
	Version      string             `xml:"version,attr"`
	Header       transmissionHeader `xml:"TransmissionHeader"`
	DocumentName string             `xml:"DocumentName"`
	Status       string             `xml:"Status"`
	Errors       []ackError         `xml:"Error"`
}

// WriteAck emits an acknowledgment for a processed inbound document into
// the vendor inbox. Used when the integration asks for acknowledgments.
func (e *Exporter) WriteAck(t Target, docName string, ok bool, errCode, errMsg string) (string, error) {
	doc := acknowledgment{
		Version:      e.version(t),
		Header:       transmissionHeader{StoreLocationID: t.Integration.StoreLocationID},
		DocumentName: docName,
		Status:       "Accepted",
	}
	if !ok {
		doc.Status = "Rejected"
		doc.Errors = append(doc.Errors, ackError{Code: errCode, Message: errMsg})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode acknowledgment: %w", err)
	}
	name := fmt.Sprintf("Ack_%s.xml", e.now().Format(timestampLayout))
	if err := writeAtomic(filepath.Join(t.Paths.Inbox, name), append([]byte(xml.Header), body...)); err != nil {
		return "", err
	}
	return name, nil
}

// writeAtomic writes beside the destination and renames, so the POS
// never reads a half-written document.
func writeAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", dest, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]*V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
