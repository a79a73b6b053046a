package naxml

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/cstorehq/backoffice/pkg/naxml/xmltree"
)

// DefaultVersion is assumed when the root carries no version attribute or
// an unsupported one.
const DefaultVersion = "3.4"

var supportedVersions = map[string]bool{}

func init() {
	for _, v := range []string{"3.2", "3.4", "4.0"} {
		supportedVersions[mustCanonical(v)] = true
	}
}

func mustCanonical(v string) string {
	sv := semver.MustParse(v)
	return fmt.Sprintf("%d.%d", sv.Major(), sv.Minor())
}

// RepeatingElements is the allowlist of element names every dialect
// materializes as sequences, single occurrence or not.
var RepeatingElements = []string{
	"LineItem", "Tender", "Tax", "Department", "Item", "Employee",
	"TaxRate", "ModifierCode", "Error", "SaleEvent", "JournalReport",
	"FGMDetail", "FGMTenderSummary", "FGMPositionSummary", "FGMPriceTierSummary",
	"FPMDetail", "FPMNonResettableTotals", "MSMDetail", "TLMDetail", "MCMDetail",
}

// Parse decodes and types a NAXML document in one step.
func Parse(data []byte) (Document, error) {
	root, err := xmltree.Decode(data)
	if err != nil {
		return nil, &Error{Code: CodeInvalidXML, Msg: err.Error(), Cause: err}
	}
	return ParseTree(root)
}

// ParseTree types an already decoded tree. Unknown roots fail with
// UNKNOWN_DOCUMENT_TYPE; movement/journal wrappers recurse one level to
// find the inner dialect.
func ParseTree(root *xmltree.Node) (Document, error) {
	hdr := parseEnvelope(root)

	switch root.Name {
	case "TransactionDocument":
		return parseTransactionDoc(root, hdr, DocTransaction)
	case "NAXML-POSJournal", "POSJournal":
		return parseTransactionDoc(root, hdr, DocPOSJournal)
	case "DepartmentMaintenance":
		return parseMaintenance(root, hdr, DocDepartmentMaint)
	case "TenderMaintenance":
		return parseMaintenance(root, hdr, DocTenderMaint)
	case "TaxRateMaintenance":
		return parseMaintenance(root, hdr, DocTaxRateMaint)
	case "PriceBookMaintenance", "ItemMaintenance":
		return parseMaintenance(root, hdr, DocPriceBookMaint)
	case "EmployeeMaintenance":
		return parseMaintenance(root, hdr, DocEmployeeMaint)
	case "Acknowledgment", "NAXML-Acknowledgment":
		return parseAck(root, hdr)
	case "FuelGradeMovement":
		return parseFGM(root, hdr)
	case "FuelProductMovement":
		return parseFPM(root, hdr)
	case "MiscellaneousSummaryMovement":
		return parseMSM(root, hdr)
	case "NAXML-MovementReport":
		return parseMovementWrapper(root, hdr)
	case "InventoryMovement":
		return parseGenericMovement(root, root, hdr, DocInventory)
	}
	return nil, errf(CodeUnknownDocumentType, "", "unrecognized root element %q", root.Name)
}

// parseMovementWrapper descends one level below NAXML-MovementReport to
// find the concrete dialect.
func parseMovementWrapper(root *xmltree.Node, hdr Header) (Document, error) {
	type probe struct {
		names []string
		parse func(*xmltree.Node, Header) (Document, error)
	}
	probes := []probe{
		{[]string{"FuelGradeMovement", "FGMHeader", "FGMDetail"}, parseFGM},
		{[]string{"FuelProductMovement", "FPMHeader", "FPMDetail"}, parseFPM},
		{[]string{"MiscellaneousSummaryMovement", "MSMHeader", "MSMDetail"}, parseMSM},
		{[]string{"TaxLevelMovement", "TLMHeader", "TLMDetail"}, parseTLM},
		{[]string{"MerchandiseCodeMovement", "MCMHeader", "MCMDetail"}, parseMCM},
	}
	for _, p := range probes {
		for _, name := range p.names {
			if inner := root.Child(name); inner != nil {
				// Dialect elements may sit directly under the wrapper
				// (FGMHeader at top level) or inside a named section.
				scope := inner
				if strings.HasSuffix(name, "Header") || strings.HasSuffix(name, "Detail") {
					scope = root
				}
				return p.parse(scope, hdr)
			}
		}
	}
	if inner := root.Child("ItemSalesMovement", "ISMHeader"); inner != nil {
		return parseGenericMovement(root, inner, hdr, DocItemSalesMove)
	}
	if inner := root.Child("TankProductMovement", "TPMHeader"); inner != nil {
		return parseGenericMovement(root, inner, hdr, DocTankProductMove)
	}
	if inner := root.Child("POSJournal", "JournalReport", "SaleEvent"); inner != nil {
		return parseTransactionDoc(root, hdr, DocPOSJournal)
	}
	return nil, errf(CodeUnknownDocumentType, "", "movement report with no recognized inner dialect")
}

// parseEnvelope reads the shared transmission envelope: version attribute
// and TransmissionHeader fields. Version drift is a warning, never a
// failure: parsing proceeds assuming 3.4.
func parseEnvelope(root *xmltree.Node) Header {
	hdr := Header{Version: DefaultVersion, VersionSupported: true}

	raw := root.Attr("version")
	if raw == "" {
		raw = root.Attr("Version")
	}
	if raw != "" {
		hdr.Version = raw
		if sv, err := semver.NewVersion(raw); err != nil || !supportedVersions[fmt.Sprintf("%d.%d", sv.Major(), sv.Minor())] {
			hdr.VersionSupported = false
			hdr.Warnings = append(hdr.Warnings, fmt.Sprintf(
				"%s: version %q is not supported, assuming %s", CodeUnsupportedVersion, raw, DefaultVersion))
		}
	}

	if th := root.Child("TransmissionHeader"); th != nil {
		hdr.StoreLocationID = th.Str("StoreLocationID", "StoreLocationId")
		hdr.VendorName = th.Str("VendorName")
		hdr.VendorModel = th.Str("VendorModelVersion", "VendorModel")
	}
	return hdr
}

func storeID(root *xmltree.Node, hdr Header) string {
	if hdr.StoreLocationID != "" {
		return hdr.StoreLocationID
	}
	return root.Str("StoreLocationID", "StoreLocationId", "StoreID", "StoreId")
}

// parseMovementHeader reads the report envelope of a movement dialect.
// prefix is the dialect's three-letter header element prefix.
func parseMovementHeader(scope *xmltree.Node, prefix string) (MovementHeader, *xmltree.Node, error) {
	h := scope.Child(prefix + "Header")
	if h == nil {
		h = scope.Child("MovementHeader")
	}
	if h == nil {
		return MovementHeader{}, nil, errf(CodeMissingField, prefix+"Header", "movement header is required")
	}

	mh := MovementHeader{
		ReportSequence: h.Str("ReportSequenceNumber", "ReportSequence"),
		BeginTime:      h.Str("BeginTime"),
		EndTime:        h.Str("EndTime"),
	}
	mh.PrimaryPeriod = parseIntDefault(h.Str("PrimaryReportPeriod"), 0)
	mh.SecondaryPeriod = parseIntDefault(h.Str("SecondaryReportPeriod"), 0)
	mh.BusinessDate = parseDate(h.Str("BusinessDate", "BusinessDay"))
	mh.BeginDate = parseDate(h.Str("BeginDate"))
	mh.EndDate = parseDate(h.Str("EndDate"))
	return mh, h, nil
}

func parseSalesMovementHeader(scope *xmltree.Node) *SalesMovementHeader {
	h := scope.Child("SalesMovementHeader")
	if h == nil {
		return nil
	}
	return &SalesMovementHeader{
		RegisterID: h.Str("RegisterID", "RegisterId"),
		CashierID:  h.Str("CashierID", "CashierId"),
		TillID:     h.Str("TillID", "TillId"),
	}
}

func parseGenericMovement(root, scope *xmltree.Node, hdr Header, kind DocumentType) (Document, error) {
	prefix := map[DocumentType]string{
		DocItemSalesMove:   "ISM",
		DocTankProductMove: "TPM",
		DocInventory:       "Inventory",
	}[kind]
	mh, _, err := parseMovementHeader(scope, prefix)
	if err != nil {
		// Recognized dialects without a projectable body still classify.
		mh = MovementHeader{}
	}
	return &GenericMovementDoc{Header: hdr, Kind: kind, StoreID: storeID(root, hdr), Movement: mh}, nil
}

func parseAck(root *xmltree.Node, hdr Header) (Document, error) {
	doc := &AckDoc{
		Header:       hdr,
		StoreID:      storeID(root, hdr),
		DocumentName: root.Str("DocumentName", "FileName"),
		Status:       root.Str("Status", "AcknowledgmentStatus"),
	}
	if doc.Status == "" {
		doc.Status = "Accepted"
	}
	for _, e := range root.List("Error") {
		doc.Errors = append(doc.Errors, AckError{
			Code:    e.Str("Code", "ErrorCode"),
			Message: e.Str("Message", "ErrorMessage"),
		})
	}
	return doc, nil
}

// ---- scalar parse helpers -------------------------------------------------

var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102150405",
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseFloatDefault(s string, def float64) float64 {
	if f, ok := parseFloat(s); ok {
		return f
	}
	return def
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(n *xmltree.Node, names ...string) bool {
	v, ok := n.Bool(names...)
	return ok && v
}
