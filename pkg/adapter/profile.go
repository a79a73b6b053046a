// Package adapter encodes vendor-specific file-exchange conventions:
// folder layouts, filename classification, path hardening, and the
// registry that dispatches on POS type.
package adapter

import (
	"regexp"
	"time"

	"github.com/cstorehq/backoffice/pkg/naxml"
)

// POSType enumerates supported point-of-sale vendors. REST vendors
// (Clover/Square/Toast) live behind external adapters and are listed here
// only so integrations can be classified.
type POSType string

const (
	POSGilbarcoPassport POSType = "GILBARCO_PASSPORT"
	POSVerifoneRuby2    POSType = "VERIFONE_RUBY2"
	POSGenericNAXML     POSType = "GENERIC_NAXML"
	POSClover           POSType = "CLOVER"
	POSSquare           POSType = "SQUARE"
	POSToast            POSType = "TOAST"
)

// PosSource is the provenance stamp written on every projected entity.
func (t POSType) PosSource() string {
	switch t {
	case POSGilbarcoPassport:
		return "GILBARCO_NAXML"
	case POSVerifoneRuby2:
		return "VERIFONE_NAXML"
	default:
		return string(t) + "_NAXML"
	}
}

// ClassificationRule maps one filename glob to its NAXML document type.
type ClassificationRule struct {
	Glob    string
	DocType naxml.DocumentType

	re *regexp.Regexp
}

// Profile declares a vendor's file-exchange conventions relative to the
// integration's exchange root.
type Profile struct {
	Type        POSType
	DisplayName string

	// InboxDir receives documents destined for the POS; OutboxDir holds
	// documents the POS produced. Archive and error paths default under
	// the outbox and are overridable per integration.
	InboxDir   string
	OutboxDir  string
	ArchiveDir string
	ErrorDir   string

	// AltDirCasings lists additional accepted spellings of Inbox/Outbox
	// (Verifone installations vary between In/ and IN/).
	AltDirCasings bool

	// SalesDayOffset is added to an FGM header business date to obtain
	// the calendar sales day. Gilbarco stamps the period-start date
	// (11:59 PM), so its sales day is businessDate + 1.
	SalesDayOffset int

	Rules []ClassificationRule
}

func (p *Profile) compile() {
	for i := range p.Rules {
		p.Rules[i].re = GlobToRegexp(p.Rules[i].Glob)
	}
}

// Classify resolves a filename to its expected document type.
func (p *Profile) Classify(filename string) (naxml.DocumentType, bool) {
	for _, r := range p.Rules {
		if r.re.MatchString(filename) {
			return r.DocType, true
		}
	}
	return "", false
}

// SalesDay converts an FGM header business date into the calendar day the
// sales belong to.
func (p *Profile) SalesDay(businessDate time.Time) time.Time {
	return businessDate.AddDate(0, 0, p.SalesDayOffset)
}

// naxmlRules is the classification table shared by NAXML vendors.
func naxmlRules() []ClassificationRule {
	return []ClassificationRule{
		{Glob: "PJR*.xml", DocType: naxml.DocPOSJournal},
		{Glob: "FGM*.xml", DocType: naxml.DocFuelGradeMove},
		{Glob: "FPM*.xml", DocType: naxml.DocFuelProductMove},
		{Glob: "MSM*.xml", DocType: naxml.DocMiscSummaryMove},
		{Glob: "TLM*.xml", DocType: naxml.DocTaxLevelMove},
		{Glob: "MCM*.xml", DocType: naxml.DocMerchCodeMove},
		{Glob: "ISM*.xml", DocType: naxml.DocItemSalesMove},
		{Glob: "TPM*.xml", DocType: naxml.DocTankProductMove},
		{Glob: "DeptMaint*.xml", DocType: naxml.DocDepartmentMaint},
		{Glob: "TenderMaint*.xml", DocType: naxml.DocTenderMaint},
		{Glob: "TaxMaint*.xml", DocType: naxml.DocTaxRateMaint},
		{Glob: "EmpMaint*.xml", DocType: naxml.DocEmployeeMaint},
		{Glob: "PriceBook*.xml", DocType: naxml.DocPriceBookMaint},
		{Glob: "Ack*.xml", DocType: naxml.DocAcknowledgment},
		{Glob: "*_Ack.xml", DocType: naxml.DocAcknowledgment},
	}
}

// GilbarcoProfile is the Passport XMLGateway layout.
func GilbarcoProfile() *Profile {
	p := &Profile{
		Type:           POSGilbarcoPassport,
		DisplayName:    "Gilbarco Passport (XMLGateway)",
		InboxDir:       "BOInbox",
		OutboxDir:      "BOOutbox",
		ArchiveDir:     "BOOutbox/Processed",
		ErrorDir:       "BOOutbox/Error",
		SalesDayOffset: 1,
		Rules:          naxmlRules(),
	}
	p.compile()
	return p
}

// VerifoneProfile is the Ruby2/Commander layout.
func VerifoneProfile() *Profile {
	p := &Profile{
		Type:          POSVerifoneRuby2,
		DisplayName:   "Verifone Ruby2",
		InboxDir:      "In",
		OutboxDir:     "Out",
		ArchiveDir:    "Out/Processed",
		ErrorDir:      "Out/Error",
		AltDirCasings: true,
		Rules:         naxmlRules(),
	}
	p.compile()
	return p
}

// GenericProfile covers compatible controllers that follow the plain
// NAXML folder convention.
func GenericProfile() *Profile {
	p := &Profile{
		Type:        POSGenericNAXML,
		DisplayName: "Generic NAXML controller",
		InboxDir:    "Inbox",
		OutboxDir:   "Outbox",
		ArchiveDir:  "Outbox/Processed",
		ErrorDir:    "Outbox/Error",
		Rules:       naxmlRules(),
	}
	p.compile()
	return p
}
