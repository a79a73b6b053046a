package projector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/store"
)

// TransactionResult reports one journal projection.
type TransactionResult struct {
	Projected int
	Skipped   int
	Duplicate bool
}

// ProjectTransactions ingests a POSJournal/TransactionDocument. The
// whole document projects atomically inside the caller's transaction;
// replays of the same source bytes are detected by file hash and skipped.
func (p *Projector) ProjectTransactions(ctx context.Context, q store.Querier, tgt Target, doc *naxml.TransactionDoc) (TransactionResult, error) {
	seen, err := p.store.TransactionsSeen(ctx, q, tgt.StoreID, tgt.FileHash)
	if err != nil {
		return TransactionResult{}, err
	}
	if seen {
		return TransactionResult{Skipped: len(doc.Events), Duplicate: true}, nil
	}

	user, err := p.store.FindImportUser(ctx, q, tgt.CompanyID)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("projector: no attributable user for company %s: %w", tgt.CompanyID, err)
	}

	var res TransactionResult
	for i := range doc.Events {
		ev := &doc.Events[i]
		if err := p.projectEvent(ctx, q, tgt, user, ev); err != nil {
			return res, fmt.Errorf("event %s: %w", ev.TransactionID, err)
		}
		res.Projected++
	}
	return res, nil
}

func (p *Projector) projectEvent(ctx context.Context, q store.Querier, tgt Target, user *store.User, ev *naxml.TransactionEvent) error {
	// Journal events attribute to the store's open shift, falling back
	// to the most recent shift. Unlike movement shift closes, a journal
	// never opens a shift of its own.
	shift, err := p.store.FindCurrentShift(ctx, q, tgt.StoreID)
	if err != nil {
		return fmt.Errorf("resolve shift for store %s: %w", tgt.StoreID, err)
	}

	linkedID, linkReason := "", ""
	if ev.LinkedTransactionID != "" {
		linked, err := p.store.FindTransactionByPOSID(ctx, q, tgt.StoreID, ev.LinkedTransactionID)
		switch {
		case err == nil:
			linkedID = linked.ID
			linkReason = ev.LinkReason
		case errors.Is(err, store.ErrNotFound):
			// The referenced transaction has not been ingested yet. Keep
			// the POS id and mark the reference dangling.
			linkedID = ev.LinkedTransactionID
			linkReason = "UNRESOLVED_REFERENCE"
		default:
			return err
		}
	}

	txn := &store.Transaction{
		PublicID:            PublicID(ev.TransactionID, ev.Timestamp.Unix()),
		CompanyID:           tgt.CompanyID,
		StoreID:             tgt.StoreID,
		POSTransactionID:    ev.TransactionID,
		TerminalID:          ev.TerminalID,
		CashierCode:         ev.CashierID,
		ShiftID:             shift.ID,
		UserID:              user.ID,
		Kind:                string(ev.Kind),
		BusinessDate:        ev.BusinessDate,
		Timestamp:           ev.Timestamp,
		NetTotal:            ev.Totals.Subtotal,
		TaxTotal:            ev.Totals.TaxTotal,
		DiscountTotal:       ev.Totals.DiscountTotal,
		GrandTotal:          ev.Totals.GrandTotal,
		ItemCount:           ev.Totals.ItemCount,
		IsTrainingMode:      ev.Training,
		IsOutsideSale:       ev.OutsideSale,
		IsOffline:           ev.Offline,
		IsSuspended:         ev.Suspended,
		LinkedTransactionID: linkedID,
		LinkReason:          linkReason,
		SourceFileHash:      tgt.FileHash,
	}
	if err := p.store.InsertTransaction(ctx, q, txn); err != nil {
		return err
	}

	for _, line := range ev.Lines {
		// Tax and tender pseudo-lines are represented by the totals and
		// the payments respectively.
		lt := strings.ToLower(line.ItemType)
		if lt == "tax" || lt == "tender" {
			continue
		}
		if err := p.store.InsertLineItem(ctx, q, &store.LineItem{
			TransactionID:  txn.ID,
			StoreID:        tgt.StoreID,
			LineNumber:     line.LineNumber,
			ItemCode:       line.ItemCode,
			ItemType:       classifyLine(line),
			Description:    line.Description,
			DepartmentCode: line.DepartmentCode,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			ExtendedPrice:  line.ExtendedPrice,
			TaxAmount:      line.TaxAmount,
			DiscountAmount: line.DiscountAmount,
			IsVoid:         line.IsVoid,
			IsRefund:       line.IsRefund,
		}); err != nil {
			return err
		}
	}

	for _, tender := range ev.Tenders {
		if tender.IsChange {
			continue
		}
		if err := p.store.InsertPayment(ctx, q, &store.Payment{
			TransactionID: txn.ID,
			StoreID:       tgt.StoreID,
			TenderCode:    tender.Code,
			Description:   tender.Description,
			Amount:        tender.Amount,
			Reference:     tender.Reference,
			CardType:      tender.CardType,
			CardLast4:     tender.CardLast4,
			ChangeGiven:   tender.ChangeGiven,
		}); err != nil {
			return err
		}
	}

	// Training-mode transactions never reach financial rollups.
	if !ev.Training {
		switch ev.Kind {
		case naxml.TxSale:
			if err := p.store.AddShiftNetSales(ctx, q, shift.ID, txn.NetTotal); err != nil {
				return err
			}
		case naxml.TxRefund, naxml.TxVoidSale:
			if err := p.store.AddShiftNetSales(ctx, q, shift.ID, -txn.NetTotal); err != nil {
				return err
			}
		case naxml.TxEndOfShift:
			if err := p.store.CloseShift(ctx, q, shift.ID, shift.NetSales); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}

// PublicID derives the customer-facing transaction id: the last four
// digits of the POS transaction number plus a base36 timestamp.
func PublicID(posTransactionID string, unixSeconds int64) string {
	tail := posTransactionID
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	for len(tail) < 4 {
		tail = "0" + tail
	}
	return strings.ToUpper(fmt.Sprintf("POS-%s-%s", tail, strconv.FormatInt(unixSeconds, 36)))
}

// classifyLine buckets a journal line for reporting.
func classifyLine(line naxml.TransactionLine) store.LineItemType {
	switch strings.ToLower(line.ItemType) {
	case "fuel", "fuelsale":
		return store.LineFuel
	case "prepay", "fuelprepay":
		return store.LinePrepay
	}
	desc := strings.ToUpper(line.Description)
	if strings.Contains(desc, "LOTTERY") || strings.Contains(desc, "LOTTO") {
		return store.LineLottery
	}
	return store.LineMerchandise
}
