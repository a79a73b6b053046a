package naxml

import (
	"strings"

	"github.com/cstorehq/backoffice/pkg/naxml/xmltree"
)

var maintenanceEntityNames = map[DocumentType][]string{
	DocDepartmentMaint: {"Department"},
	DocTenderMaint:     {"Tender"},
	DocTaxRateMaint:    {"TaxRate", "TaxLevel"},
	DocPriceBookMaint:  {"Item", "ITTDetail"},
	DocEmployeeMaint:   {"Employee"},
}

var maintenanceCodeNames = map[DocumentType][]string{
	DocDepartmentMaint: {"DepartmentCode", "DepartmentID", "DepartmentId"},
	DocTenderMaint:     {"TenderCode", "TenderID", "TenderId"},
	DocTaxRateMaint:    {"TaxRateCode", "TaxLevelID", "TaxLevelId"},
	DocPriceBookMaint:  {"ItemCode", "ItemID", "ItemId", "POSCode"},
	DocEmployeeMaint:   {"EmployeeCode", "EmployeeID", "EmployeeId"},
}

var entryActions = map[string]EntryAction{
	"Add":       ActionAdd,
	"Update":    ActionUpdate,
	"Delete":    ActionDelete,
	"AddUpdate": ActionAddUpdate,
}

// parseMaintenance extracts a reference-data maintenance document. The
// vendor code comes from Code, @Code, or the kind-specific <entity>Code
// element, in that order of preference.
func parseMaintenance(root *xmltree.Node, hdr Header, kind DocumentType) (Document, error) {
	doc := &MaintenanceDoc{
		Header:  hdr,
		Kind:    kind,
		StoreID: storeID(root, hdr),
		Mode:    MaintIncremental,
	}

	if mh := root.Child("MaintenanceHeader"); mh != nil {
		doc.MaintenanceDate = parseDate(mh.Str("MaintenanceDate", "Date"))
		doc.Mode = parseMode(mh.Str("TableAction", "MaintenanceType", "Type"))
	} else if raw := root.Attr("type"); raw != "" {
		doc.Mode = parseMode(raw)
	}

	scope := root
	if body := root.Child("MaintenanceDetail", kind.String()+"Detail"); body != nil {
		scope = body
	}

	for _, el := range scope.List(maintenanceEntityNames[kind]...) {
		entry, err := parseMaintenanceEntry(el, kind)
		if err != nil {
			return nil, err
		}
		doc.Entries = append(doc.Entries, entry)
	}
	return doc, nil
}

func (t DocumentType) String() string { return string(t) }

func parseMode(raw string) MaintenanceMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(MaintFull)) {
		return MaintFull
	}
	return MaintIncremental
}

var maintenanceKnownFields = map[string]bool{
	"Code": true, "Description": true, "Name": true,
	"TaxableFlag": true, "Taxable": true,
	"ElectronicFlag": true, "EBTFlag": true,
	"TaxRatePercent": true, "TaxRate": true, "Percent": true,
}

func parseMaintenanceEntry(el *xmltree.Node, kind DocumentType) (MaintenanceEntry, error) {
	entry := MaintenanceEntry{
		Description: el.Str("Description", "Name"),
		Action:      ActionAddUpdate,
	}

	codeNames := append([]string{"Code"}, maintenanceCodeNames[kind]...)
	entry.POSCode = el.Str(codeNames...)
	if entry.POSCode == "" {
		entry.POSCode = el.Attr("Code")
	}
	if entry.POSCode == "" {
		return entry, errf(CodeMissingField, "Code", "%s entry without a vendor code", kind)
	}

	if raw := el.Attr("Action"); raw != "" {
		action, ok := entryActions[raw]
		if !ok {
			return entry, errf(CodeInvalidFieldValue, "Action", "unrecognized entry action %q", raw)
		}
		entry.Action = action
	}

	if v, ok := el.Bool("TaxableFlag", "Taxable"); ok {
		entry.Taxable = &v
	}
	if v, ok := el.Bool("ElectronicFlag", "EBTFlag"); ok {
		entry.Electronic = &v
	}
	if f, ok := parseFloat(el.Str("TaxRatePercent", "TaxRate", "Percent")); ok {
		entry.TaxRate = &f
	}

	for _, child := range el.Children() {
		if maintenanceKnownFields[child.Name] || len(child.Children()) > 0 {
			continue
		}
		known := false
		for _, cn := range codeNames {
			if child.Name == cn {
				known = true
				break
			}
		}
		if known || child.Text == "" {
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]string)
		}
		entry.Fields[child.Name] = child.Text
	}
	return entry, nil
}

// ToMaintenance converts a TLM report into tax-rate maintenance entries.
// Gilbarco never emits TaxRateMaintenance files; rate state arrives via
// tax-level movement instead.
func (d *TLMDoc) ToMaintenance() *MaintenanceDoc {
	out := &MaintenanceDoc{
		Header:          d.Header,
		Kind:            DocTaxRateMaint,
		StoreID:         d.StoreID,
		MaintenanceDate: d.Movement.BusinessDate,
		Mode:            MaintIncremental,
	}
	for _, det := range d.Details {
		rate := det.TaxRate
		out.Entries = append(out.Entries, MaintenanceEntry{
			POSCode:     det.TaxLevelID,
			Description: det.Description,
			Action:      ActionAddUpdate,
			TaxRate:     &rate,
		})
	}
	return out
}

// ToMaintenance converts an MCM report into department maintenance
// entries, the merchandise-code analogue of TLM extraction.
func (d *MCMDoc) ToMaintenance() *MaintenanceDoc {
	out := &MaintenanceDoc{
		Header:          d.Header,
		Kind:            DocDepartmentMaint,
		StoreID:         d.StoreID,
		MaintenanceDate: d.Movement.BusinessDate,
		Mode:            MaintIncremental,
	}
	for _, det := range d.Details {
		out.Entries = append(out.Entries, MaintenanceEntry{
			POSCode:     det.MerchandiseCode,
			Description: det.Description,
			Action:      ActionAddUpdate,
		})
	}
	return out
}
