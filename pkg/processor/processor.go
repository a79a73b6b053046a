// Package processor routes parsed NAXML documents to their projections.
// One source file maps to one audit record and one database transaction;
// the watcher owns file logs and disposition, the processor owns
// everything between parse and commit.
package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/audit"
	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/projector"
	"github.com/cstorehq/backoffice/pkg/store"
)

// Error codes surfaced on file logs beyond the parser's own.
const (
	CodeUnsupportedDocument = "UNSUPPORTED_DOCUMENT_TYPE"
	CodeProjectionFailed    = "PROJECTION_FAILED"
	CodeAuditUnavailable    = "AUDIT_UNAVAILABLE"
)

// SkipSyncDisabled marks files skipped because the integration has the
// document's sync category turned off.
const SkipSyncDisabled = "SYNC_DISABLED"

// Input is one file handed over by a watcher.
type Input struct {
	Integration *store.POSIntegration
	Adapter     adapter.Adapter
	FileName    string
	FileHash    string
	Data        []byte
}

// Outcome is the processor's verdict on one file; the watcher folds it
// into the file log and decides disposition.
type Outcome struct {
	Status       store.FileStatus
	DocumentType naxml.DocumentType
	RecordCount  int
	ErrorCode    string
	ErrorMessage string
	SkipReason   string
	Duplicate    bool
	Warnings     []string

	// Counts carries the projection's created/updated/deactivated
	// breakdown so sync cycles can aggregate per category.
	Counts store.CategoryCounts
}

// Processor parses, audits, and projects inbound documents.
type Processor struct {
	store     *store.Store
	projector *projector.Projector
	audit     *audit.Recorder
	log       *slog.Logger
}

// New wires a processor over its collaborators.
func New(s *store.Store, p *projector.Projector, a *audit.Recorder, log *slog.Logger) *Processor {
	return &Processor{store: s, projector: p, audit: a, log: log.With("component", "processor")}
}

func failed(code, msg string) Outcome {
	return Outcome{Status: store.FileFailed, ErrorCode: code, ErrorMessage: msg}
}

// Process runs one inbound file end to end: audit record first, then
// parse, then one transaction of projections. It never returns an error
// for per-file problems; those live in the Outcome. An error return
// means the audit trail itself is unavailable and the caller must not
// touch the file.
func (p *Processor) Process(ctx context.Context, in Input) (Outcome, error) {
	tgt := projector.Target{
		CompanyID: in.Integration.CompanyID,
		StoreID:   in.Integration.StoreID,
		Profile:   in.Adapter.Profile(),
		FileHash:  in.FileHash,
	}

	exchangeID, err := p.audit.Begin(ctx, audit.Exchange{
		CompanyID:         tgt.CompanyID,
		StoreID:           tgt.StoreID,
		Type:              "FILE_IMPORT",
		Direction:         "INBOUND",
		DataCategory:      "POS_EXCHANGE",
		SourceSystem:      tgt.PosSource(),
		DestinationSystem: "backoffice",
		ContainsFinancial: true,
		FileName:          in.FileName,
		FileHash:          in.FileHash,
		DataSize:          int64(len(in.Data)),
	})
	if err != nil {
		// No audit record, no side effects.
		return Outcome{}, fmt.Errorf("%s: %w", CodeAuditUnavailable, err)
	}
	if err := p.audit.Start(ctx, exchangeID); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", CodeAuditUnavailable, err)
	}

	out := p.run(ctx, tgt, in)

	auditStatus := store.AuditSuccess
	switch out.Status {
	case store.FileFailed:
		auditStatus = store.AuditFailed
	case store.FilePartial:
		auditStatus = store.AuditPartial
	}
	if err := p.audit.Complete(ctx, exchangeID, auditStatus, out.RecordCount, out.ErrorCode, out.ErrorMessage); err != nil {
		p.log.Error("audit completion failed", "exchangeId", exchangeID, "error", err)
	}
	return out, nil
}

func (p *Processor) run(ctx context.Context, tgt projector.Target, in Input) Outcome {
	started := time.Now()

	doc, err := naxml.Parse(in.Data)
	if err != nil {
		return p.parseFailure(err)
	}

	hdr := doc.DocumentHeader()
	out := Outcome{DocumentType: doc.Type(), Warnings: hdr.Warnings}
	for _, w := range hdr.Warnings {
		p.log.Warn("document warning", "file", in.FileName, "warning", w)
	}

	// Acknowledgments close an outbound audit record; no projection
	// transaction is involved.
	if ack, isAck := doc.(*naxml.AckDoc); isAck {
		p.resolveAck(ctx, tgt, ack, &out)
		if out.Status == "" {
			out.Status = store.FileSuccess
		}
		return out
	}

	err = p.store.WithTx(ctx, func(tx *sql.Tx) error {
		return p.route(ctx, tx, tgt, in, doc, &out)
	})
	if err != nil {
		if out.Status == store.FileFailed {
			return out
		}
		return failed(CodeProjectionFailed, err.Error())
	}

	if out.Status == "" {
		out.Status = store.FileSuccess
	}
	p.log.Info("file processed",
		"file", in.FileName,
		"type", string(out.DocumentType),
		"status", string(out.Status),
		"records", out.RecordCount,
		"durationMs", time.Since(started).Milliseconds())
	return out
}

// route dispatches one parsed document inside the file's transaction.
func (p *Processor) route(ctx context.Context, tx *sql.Tx, tgt projector.Target, in Input, doc naxml.Document, out *Outcome) error {
	switch d := doc.(type) {
	case *naxml.FGMDoc:
		counts, err := p.projector.ProjectFGM(ctx, tx, tgt, d)
		if err != nil {
			return err
		}
		out.RecordCount = counts.Received
		out.Counts = counts
		return nil

	case *naxml.FPMDoc:
		counts, err := p.projector.ProjectFPM(ctx, tx, tgt, d)
		if err != nil {
			return err
		}
		out.RecordCount = counts.Received
		out.Counts = counts
		return nil

	case *naxml.MSMDoc:
		counts, err := p.projector.ProjectMSM(ctx, tx, tgt, d)
		if err != nil {
			return err
		}
		out.RecordCount = counts.Received
		out.Counts = counts
		return nil

	case *naxml.TransactionDoc:
		res, err := p.projector.ProjectTransactions(ctx, tx, tgt, d)
		if err != nil {
			return err
		}
		out.RecordCount = res.Projected
		out.Counts = store.CategoryCounts{
			Received: res.Projected + res.Skipped,
			Created:  res.Projected,
			Skipped:  res.Skipped,
		}
		if res.Duplicate {
			out.Status = store.FileSkipped
			out.SkipReason = "DUPLICATE"
			out.Duplicate = true
		}
		return nil

	case *naxml.MaintenanceDoc:
		if !syncAllowed(in.Integration, d.Kind) {
			out.Status = store.FileSkipped
			out.SkipReason = SkipSyncDisabled
			return nil
		}
		counts, err := p.projector.SyncMaintenance(ctx, tx, tgt, d)
		if err != nil {
			return err
		}
		out.RecordCount = counts.Received
		out.Counts = counts
		if len(counts.Errors) > 0 {
			out.Status = store.FilePartial
			out.ErrorMessage = strings.Join(counts.Errors, "; ")
		}
		return nil

	case *naxml.TLMDoc, *naxml.MCMDoc:
		if !syncAllowed(in.Integration, doc.Type()) {
			out.Status = store.FileSkipped
			out.SkipReason = SkipSyncDisabled
			return nil
		}
		// Movement-borne reference data. Only vendors that declare the
		// extraction capability project these.
		extractor, ok := in.Adapter.(adapter.MaintenanceExtractor)
		if !ok {
			out.Status = store.FileFailed
			out.ErrorCode = CodeUnsupportedDocument
			out.ErrorMessage = fmt.Sprintf("%s documents require a maintenance-extracting adapter", doc.Type())
			return errors.New(out.ErrorMessage)
		}
		maint, ok := extractor.ExtractMaintenance(doc)
		if !ok {
			out.Status = store.FileFailed
			out.ErrorCode = CodeUnsupportedDocument
			out.ErrorMessage = fmt.Sprintf("adapter %s does not extract %s", in.Adapter.POSType(), doc.Type())
			return errors.New(out.ErrorMessage)
		}
		counts, err := p.projector.SyncMaintenance(ctx, tx, tgt, maint)
		if err != nil {
			return err
		}
		out.RecordCount = counts.Received
		out.Counts = counts
		return nil

	default:
		out.Status = store.FileFailed
		out.ErrorCode = CodeUnsupportedDocument
		out.ErrorMessage = fmt.Sprintf("no projection for document type %s", doc.Type())
		return errors.New(out.ErrorMessage)
	}
}

// syncAllowed maps a reference-data document onto the integration's
// per-category sync flags. Document types without a flag always pass.
func syncAllowed(integ *store.POSIntegration, kind naxml.DocumentType) bool {
	switch kind {
	case naxml.DocDepartmentMaint, naxml.DocMerchCodeMove:
		return integ.SyncDepartments
	case naxml.DocTenderMaint:
		return integ.SyncTenderTypes
	case naxml.DocTaxRateMaint, naxml.DocTaxLevelMove:
		return integ.SyncTaxRates
	case naxml.DocEmployeeMaint:
		return integ.SyncCashiers
	}
	return true
}

// resolveAck closes the outbound audit record the acknowledgment names.
// An ack for an export the core never recorded is suspicious but not
// fatal; the file lands as PARTIAL so an operator sees it.
func (p *Processor) resolveAck(ctx context.Context, tgt projector.Target, d *naxml.AckDoc, out *Outcome) {
	accepted := strings.EqualFold(d.Status, "success") || strings.EqualFold(d.Status, "accepted")
	var msgs []string
	for _, e := range d.Errors {
		msgs = append(msgs, e.Code+": "+e.Message)
	}
	err := p.audit.ResolveByName(ctx, tgt.StoreID, d.DocumentName, accepted, strings.Join(msgs, "; "))
	switch {
	case errors.Is(err, store.ErrNotFound):
		out.Status = store.FilePartial
		out.ErrorMessage = fmt.Sprintf("acknowledgment for unknown export %q", d.DocumentName)
	case err != nil:
		out.Status = store.FileFailed
		out.ErrorCode = CodeProjectionFailed
		out.ErrorMessage = err.Error()
	default:
		out.RecordCount = 1
	}
}

// parseFailure maps parser errors onto file-log error codes.
func (p *Processor) parseFailure(err error) Outcome {
	if code := naxml.ErrorCode(err); code != "" {
		return failed(string(code), err.Error())
	}
	return failed(string(naxml.CodeInvalidXML), err.Error())
}
