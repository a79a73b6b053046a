package naxml

import (
	"github.com/cstorehq/backoffice/pkg/naxml/xmltree"
)

var transactionTypes = map[string]TransactionType{
	"Sale":       TxSale,
	"Refund":     TxRefund,
	"VoidSale":   TxVoidSale,
	"NoSale":     TxNoSale,
	"PaidOut":    TxPaidOut,
	"PaidIn":     TxPaidIn,
	"SafeDrop":   TxSafeDrop,
	"EndOfShift": TxEndOfShift,
}

// parseTransactionDoc extracts journal events from a TransactionDocument
// or POSJournal file. Events may sit directly under the root or inside
// JournalReport sections, depending on vendor.
func parseTransactionDoc(root *xmltree.Node, hdr Header, kind DocumentType) (Document, error) {
	doc := &TransactionDoc{Header: hdr, Kind: kind, StoreID: storeID(root, hdr)}

	scopes := []*xmltree.Node{root}
	scopes = append(scopes, root.List("JournalReport")...)
	if pj := root.Child("POSJournal"); pj != nil {
		scopes = append(scopes, pj)
		scopes = append(scopes, pj.List("JournalReport")...)
	}

	for _, scope := range scopes {
		for _, ev := range scope.List("SaleEvent", "JournalEvent", "Event") {
			event, err := parseSaleEvent(ev)
			if err != nil {
				return nil, err
			}
			doc.Events = append(doc.Events, event)
		}
	}

	if len(doc.Events) == 0 {
		return nil, errf(CodeMissingField, "SaleEvent", "journal document contains no events")
	}
	return doc, nil
}

func parseSaleEvent(ev *xmltree.Node) (TransactionEvent, error) {
	event := TransactionEvent{
		TransactionID: ev.Str("TransactionID", "TransactionId"),
		TerminalID:    ev.Str("TerminalID", "TerminalId", "RegisterID", "RegisterId"),
		CashierID:     ev.Str("CashierID", "CashierId", "EmployeeID", "EmployeeId"),
		BusinessDate:  parseDate(ev.Str("BusinessDate", "BusinessDay")),
		Timestamp:     parseTimestamp(ev.Str("TransactionDate", "EventDateTime", "EventStartDateTime")),
		Training:      parseBool(ev, "TrainingModeFlag", "TrainingFlag"),
		OutsideSale:   parseBool(ev, "OutsideSalesFlag", "OutsideFlag"),
		Offline:       parseBool(ev, "OfflineFlag"),
		Suspended:     parseBool(ev, "SuspendFlag", "SuspendedFlag"),
	}
	if event.TransactionID == "" {
		return event, errf(CodeMissingField, "TransactionID", "sale event without transaction id")
	}

	rawType := ev.Str("TransactionType", "EventType")
	if rawType == "" {
		event.Kind = TxSale
	} else if kind, ok := transactionTypes[rawType]; ok {
		event.Kind = kind
	} else {
		return event, errf(CodeInvalidFieldValue, "TransactionType", "unrecognized transaction type %q", rawType)
	}

	if linked := ev.Child("LinkedTransaction"); linked != nil {
		event.LinkedTransactionID = linked.Str("TransactionID", "TransactionId")
		event.LinkReason = linked.Str("Reason", "LinkReason")
	} else {
		event.LinkedTransactionID = ev.Str("LinkedTransactionID", "LinkedTransactionId")
		event.LinkReason = ev.Str("LinkReason")
	}

	detail := ev.Child("TransactionDetailGroup", "TransactionDetail")
	if detail == nil {
		detail = ev
	}

	for _, li := range detail.List("LineItem") {
		event.Lines = append(event.Lines, parseLineItem(li))
	}
	for _, tn := range detail.List("Tender", "TenderInfo") {
		event.Tenders = append(event.Tenders, parseTenderLine(tn))
	}
	for _, tx := range detail.List("Tax", "TaxInfo") {
		event.Taxes = append(event.Taxes, TaxLine{
			Code:          tx.Str("TaxCode", "TaxLevelID", "TaxLevelId", "Code"),
			TaxableAmount: parseFloatDefault(tx.Str("TaxableAmount", "TaxableSalesAmount"), 0),
			TaxAmount:     parseFloatDefault(tx.Str("TaxAmount", "TaxCollectedAmount"), 0),
			TaxRate:       parseFloatDefault(tx.Str("TaxRate"), 0),
		})
	}

	event.Totals = parseTotals(ev, event)
	return event, nil
}

func parseLineItem(li *xmltree.Node) TransactionLine {
	line := TransactionLine{
		LineNumber:     parseIntDefault(li.Str("LineNumber", "SequenceNumber"), 0),
		ItemCode:       li.Str("ItemCode", "ItemID", "ItemId", "POSCode"),
		ItemType:       li.Str("ItemType", "LineType"),
		Description:    li.Str("Description", "ItemDescription"),
		DepartmentCode: li.Str("DepartmentCode", "DepartmentID", "DepartmentId", "MerchandiseCode"),
		Quantity:       parseFloatDefault(li.Str("Quantity", "SalesQuantity"), 1),
		UnitPrice:      parseFloatDefault(li.Str("UnitPrice", "RegularSellPrice", "ActualSalesPrice"), 0),
		ExtendedPrice:  parseFloatDefault(li.Str("ExtendedPrice", "SalesAmount"), 0),
		TaxCode:        li.Str("TaxCode", "TaxLevelID", "TaxLevelId"),
		TaxAmount:      parseFloatDefault(li.Str("TaxAmount"), 0),
		DiscountAmount: parseFloatDefault(li.Str("DiscountAmount"), 0),
		IsVoid:         parseBool(li, "VoidFlag", "IsVoid"),
		IsRefund:       parseBool(li, "RefundFlag", "IsRefund"),
		IsChange:       parseBool(li, "ChangeFlag", "IsChange"),
	}
	for _, mc := range li.List("ModifierCode") {
		if mc.Text != "" {
			line.ModifierCodes = append(line.ModifierCodes, mc.Text)
		}
	}
	return line
}

func parseTenderLine(tn *xmltree.Node) TenderLine {
	return TenderLine{
		Code:        tn.Str("TenderCode", "Code"),
		Description: tn.Str("Description", "TenderDescription"),
		Amount:      parseFloatDefault(tn.Str("TenderAmount", "Amount"), 0),
		Reference:   tn.Str("ReferenceNumber", "Reference", "AuthorizationCode"),
		CardType:    tn.Str("CardType", "CardCircuit"),
		CardLast4:   tn.Str("CardLast4", "AccountNumberLast4", "MaskedPAN"),
		ChangeGiven: parseFloatDefault(tn.Str("ChangeGiven", "ChangeAmount"), 0),
		IsChange:    parseBool(tn, "ChangeFlag", "IsChange"),
	}
}

// parseTotals reads the totals block, deriving missing fields from the
// event's lines so older vendor journals still project cleanly.
func parseTotals(ev *xmltree.Node, event TransactionEvent) TransactionTotals {
	totals := TransactionTotals{}
	if t := ev.Child("TransactionTotals", "Totals", "TransactionSummary"); t != nil {
		totals.Subtotal = parseFloatDefault(t.Str("Subtotal", "SubTotal", "NetAmount"), 0)
		totals.TaxTotal = parseFloatDefault(t.Str("TaxTotal", "TotalTax", "TaxAmount"), 0)
		totals.GrandTotal = parseFloatDefault(t.Str("GrandTotal", "TotalAmount", "TotalGrossAmount"), 0)
		totals.DiscountTotal = parseFloatDefault(t.Str("DiscountTotal", "TotalDiscountAmount"), 0)
		totals.ChangeDue = parseFloatDefault(t.Str("ChangeDue", "ChangeAmount"), 0)
		totals.ItemCount = parseIntDefault(t.Str("ItemCount", "NumberOfItems"), 0)
	}

	if totals.Subtotal == 0 && totals.GrandTotal == 0 {
		for _, line := range event.Lines {
			if line.IsVoid || line.IsChange {
				continue
			}
			totals.Subtotal += line.ExtendedPrice
			totals.TaxTotal += line.TaxAmount
		}
		totals.GrandTotal = totals.Subtotal + totals.TaxTotal
	}
	if totals.ItemCount == 0 {
		totals.ItemCount = len(event.Lines)
	}
	return totals
}
