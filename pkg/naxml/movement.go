package naxml

import (
	"github.com/cstorehq/backoffice/pkg/naxml/xmltree"
)

var fuelTenderCodes = map[string]FuelTenderCode{
	"cash":          FuelTenderCash,
	"outsideCredit": FuelTenderOutsideCredit,
	"outsideDebit":  FuelTenderOutsideDebit,
	"insideCredit":  FuelTenderInsideCredit,
	"insideDebit":   FuelTenderInsideDebit,
	"fleet":         FuelTenderFleet,
}

func parseFGM(scope *xmltree.Node, hdr Header) (Document, error) {
	mh, _, err := parseMovementHeader(scope, "FGM")
	if err != nil {
		return nil, err
	}
	if mh.PrimaryPeriod != PeriodDayClose && mh.PrimaryPeriod != PeriodShiftClose {
		return nil, errf(CodeFGMInvalidPeriod, "PrimaryReportPeriod",
			"report period %d is neither day close (2) nor shift close (98)", mh.PrimaryPeriod)
	}

	doc := &FGMDoc{
		Header:   hdr,
		StoreID:  storeID(scope, hdr),
		Movement: mh,
		Sales:    parseSalesMovementHeader(scope),
	}

	for _, det := range scope.List("FGMDetail") {
		detail, err := parseFGMDetail(det)
		if err != nil {
			return nil, err
		}
		doc.Details = append(doc.Details, detail)
	}
	return doc, nil
}

func parseFGMDetail(det *xmltree.Node) (FGMDetail, error) {
	detail := FGMDetail{
		GradeID: det.Str("FuelGradeID", "FuelGradeId", "GradeID", "GradeId"),
	}
	if detail.GradeID == "" {
		return detail, errf(CodeFGMMissingGradeID, "FuelGradeID", "FGM detail without a fuel grade id")
	}

	tenderEl := det.Child("FGMTenderSummary")
	positions := det.List("FGMPositionSummary")

	switch {
	case tenderEl == nil && len(positions) == 0:
		return detail, errf(CodeMissingField, "FGMTenderSummary",
			"FGM detail for grade %s carries neither a tender nor a position summary", detail.GradeID)
	case tenderEl != nil && len(positions) > 0:
		return detail, errf(CodeInvalidFieldValue, "FGMDetail",
			"FGM detail for grade %s carries both a tender and a position summary", detail.GradeID)
	}

	if tenderEl != nil {
		tender, err := parseFGMTenderSummary(tenderEl)
		if err != nil {
			return detail, err
		}
		detail.Tender = tender
	}
	for _, pos := range positions {
		summary, err := parseFGMPositionSummary(pos)
		if err != nil {
			return detail, err
		}
		detail.Positions = append(detail.Positions, summary)
	}
	return detail, nil
}

func parseFGMTenderSummary(el *xmltree.Node) (*FGMTenderSummary, error) {
	summary := &FGMTenderSummary{
		SellPrice:    parseFloatDefault(el.Str("FuelGradeSellPrice", "SellPrice"), 0),
		ServiceLevel: el.Str("ServiceLevelCode", "ServiceLevel"),
	}

	rawCode := el.Str("TenderCode")
	sub := el.Str("TenderSubCode")
	if tender := el.Child("Tender"); tender != nil {
		if rawCode == "" {
			rawCode = tender.Str("TenderCode", "Code")
		}
		if sub == "" {
			sub = tender.Str("TenderSubCode", "SubCode")
		}
	}
	code, ok := fuelTenderCodes[rawCode]
	if !ok {
		return nil, errf(CodeFGMInvalidTenderCode, "TenderCode", "tender code %q is not a fuel tender", rawCode)
	}
	summary.TenderCode = code
	summary.TenderSubCode = sub

	totals, err := parseFuelTotals(el.Child("FGMSalesTotals", "SalesTotals"))
	if err != nil {
		return nil, err
	}
	summary.Totals = totals
	return summary, nil
}

func parseFGMPositionSummary(el *xmltree.Node) (FGMPositionSummary, error) {
	summary := FGMPositionSummary{
		PositionID: el.Str("FuelPositionID", "FuelPositionId", "PositionID", "PositionId"),
	}
	if summary.PositionID == "" {
		return summary, errf(CodeMissingField, "FuelPositionID", "FGM position summary without a position id")
	}

	if nr := el.Child("FGMNonResettableTotals", "NonResettableTotals"); nr != nil {
		summary.HasNonResettable = true
		summary.NonResettableVolume = parseFloatDefault(nr.Str("FuelGradeNonResettableTotalVolume", "Volume"), 0)
		summary.NonResettableAmount = parseFloatDefault(nr.Str("FuelGradeNonResettableTotalAmount", "Amount"), 0)
	}

	for _, tier := range el.List("FGMPriceTierSummary", "PriceTierSummary") {
		totals, err := parseFuelTotals(tier.Child("FGMSalesTotals", "SalesTotals"))
		if err != nil {
			return summary, err
		}
		summary.Tiers = append(summary.Tiers, PriceTierSummary{
			TierCode: tier.Str("PriceTierCode", "TierCode"),
			Totals:   totals,
		})
	}
	if len(summary.Tiers) == 0 {
		return summary, errf(CodeMissingField, "FGMPriceTierSummary",
			"position summary for position %s has no price tiers", summary.PositionID)
	}
	return summary, nil
}

func parseFuelTotals(el *xmltree.Node) (FuelTotals, error) {
	if el == nil {
		return FuelTotals{}, errf(CodeMissingField, "FGMSalesTotals", "fuel totals block is required")
	}
	totals := FuelTotals{
		Volume:            parseFloatDefault(el.Str("FuelGradeSalesVolume", "SalesVolume"), 0),
		Amount:            parseFloatDefault(el.Str("FuelGradeSalesAmount", "SalesAmount"), 0),
		DiscountAmount:    parseFloatDefault(el.Str("DiscountAmount"), 0),
		DiscountCount:     parseFloatDefault(el.Str("DiscountCount"), 0),
		TransactionCount:  parseIntDefault(el.Str("TransactionCount"), 0),
		TaxExemptAmount:   parseFloatDefault(el.Str("TaxExemptSalesAmount", "TaxExemptAmount"), 0),
		DispenserDiscount: parseFloatDefault(el.Str("DispenserDiscountAmount", "DispenserDiscount"), 0),
		PumpTestVolume:    parseFloatDefault(el.Str("PumpTestVolume"), 0),
		PumpTestAmount:    parseFloatDefault(el.Str("PumpTestAmount"), 0),
	}
	if totals.Volume < 0 {
		return totals, errf(CodeFGMInvalidSalesVolume, "FuelGradeSalesVolume", "negative sales volume %v", totals.Volume)
	}
	if totals.Amount < 0 {
		return totals, errf(CodeFGMInvalidSalesAmount, "FuelGradeSalesAmount", "negative sales amount %v", totals.Amount)
	}
	return totals, nil
}

func parseFPM(scope *xmltree.Node, hdr Header) (Document, error) {
	mh, _, err := parseMovementHeader(scope, "FPM")
	if err != nil {
		return nil, err
	}
	doc := &FPMDoc{Header: hdr, StoreID: storeID(scope, hdr), Movement: mh}

	for _, det := range scope.List("FPMDetail") {
		detail := FPMDetail{
			ProductID: det.Str("FuelProductID", "FuelProductId", "ProductID", "ProductId"),
		}
		if detail.ProductID == "" {
			return nil, errf(CodeFPMMissingProductID, "FuelProductID", "FPM detail without a fuel product id")
		}
		for _, row := range det.List("FPMNonResettableTotals", "NonResettableTotals") {
			reading := FPMReading{
				PositionID: row.Str("FuelPositionID", "FuelPositionId", "PositionID", "PositionId"),
			}
			if reading.PositionID == "" {
				return nil, errf(CodeFPMMissingPositionID, "FuelPositionID",
					"FPM reading for product %s without a position id", detail.ProductID)
			}
			vol, ok := parseFloat(row.Str("FuelProductNonResettableTotalVolume", "Volume"))
			if !ok || vol < 0 {
				return nil, errf(CodeFPMInvalidVolume, "FuelProductNonResettableTotalVolume",
					"product %s position %s: cumulative volume is required and must be non-negative",
					detail.ProductID, reading.PositionID)
			}
			reading.Volume = vol
			amt := parseFloatDefault(row.Str("FuelProductNonResettableTotalAmount", "Amount"), 0)
			if amt < 0 {
				return nil, errf(CodeFPMInvalidAmount, "FuelProductNonResettableTotalAmount",
					"product %s position %s: negative cumulative amount", detail.ProductID, reading.PositionID)
			}
			reading.Amount = amt
			detail.Readings = append(detail.Readings, reading)
		}
		if len(detail.Readings) == 0 {
			return nil, errf(CodeMissingField, "FPMNonResettableTotals",
				"FPM detail for product %s has no meter rows", detail.ProductID)
		}
		doc.Details = append(doc.Details, detail)
	}
	return doc, nil
}

func parseMSM(scope *xmltree.Node, hdr Header) (Document, error) {
	mh, _, err := parseMovementHeader(scope, "MSM")
	if err != nil {
		return nil, err
	}
	doc := &MSMDoc{Header: hdr, StoreID: storeID(scope, hdr), Movement: mh}

	for _, det := range scope.List("MSMDetail") {
		detail := MSMDetail{
			RegisterID: det.Str("RegisterID", "RegisterId"),
			CashierID:  det.Str("CashierID", "CashierId"),
			TillID:     det.Str("TillID", "TillId"),
		}

		codes := det.Child("MiscellaneousSummaryCodes", "SummaryCodes")
		if codes == nil {
			codes = det
		}
		detail.Code = codes.Str("MiscellaneousSummaryCode", "SummaryCode", "Code")
		detail.SubCode = codes.Str("MiscellaneousSummarySubCode", "SummarySubCode", "SubCode")
		detail.Modifier = codes.Str("ModifierCode", "Modifier")
		if detail.Code == "" {
			return nil, errf(CodeMSMMissingSummaryCode, "MiscellaneousSummaryCode", "MSM detail without a summary code")
		}

		totals := det.Child("MSMSalesTotals", "SalesTotals")
		if totals != nil {
			if raw, found := totals.StrOK("MiscellaneousSummaryAmount", "SummaryAmount", "Amount"); found {
				amt, ok := parseFloat(raw)
				if !ok {
					return nil, errf(CodeMSMInvalidAmount, "MiscellaneousSummaryAmount",
						"summary %s: unparseable amount %q", detail.Code, raw)
				}
				detail.Amount = amt
			}
			detail.Count = parseFloatDefault(totals.Str("MiscellaneousSummaryCount", "SummaryCount", "Count"), 0)
			detail.Tender = totals.Str("TenderCode", "Tender")
		}
		doc.Details = append(doc.Details, detail)
	}
	return doc, nil
}

func parseTLM(scope *xmltree.Node, hdr Header) (Document, error) {
	mh, _, err := parseMovementHeader(scope, "TLM")
	if err != nil {
		return nil, err
	}
	doc := &TLMDoc{Header: hdr, StoreID: storeID(scope, hdr), Movement: mh}

	for _, det := range scope.List("TLMDetail") {
		detail := TLMDetail{
			TaxLevelID:  det.Str("TaxLevelID", "TaxLevelId"),
			Description: det.Str("Description", "TaxLevelDescription"),
			TaxRate:     parseFloatDefault(det.Str("TaxRate", "TaxRatePercent"), 0),
		}
		if detail.TaxLevelID == "" {
			return nil, errf(CodeMissingField, "TaxLevelID", "TLM detail without a tax level id")
		}
		if totals := det.Child("TLMSalesTotals", "SalesTotals"); totals != nil {
			detail.TaxableSalesAmount = parseFloatDefault(totals.Str("TaxableSalesAmount"), 0)
			detail.TaxCollectedAmount = parseFloatDefault(totals.Str("TaxCollectedAmount"), 0)
		}
		doc.Details = append(doc.Details, detail)
	}
	return doc, nil
}

func parseMCM(scope *xmltree.Node, hdr Header) (Document, error) {
	mh, _, err := parseMovementHeader(scope, "MCM")
	if err != nil {
		return nil, err
	}
	doc := &MCMDoc{Header: hdr, StoreID: storeID(scope, hdr), Movement: mh}

	for _, det := range scope.List("MCMDetail") {
		detail := MCMDetail{
			MerchandiseCode: det.Str("MerchandiseCode", "MerchandiseCodeID", "MerchandiseCodeId"),
			Description:     det.Str("Description", "MerchandiseCodeDescription"),
		}
		if detail.MerchandiseCode == "" {
			return nil, errf(CodeMissingField, "MerchandiseCode", "MCM detail without a merchandise code")
		}
		if totals := det.Child("MCMSalesTotals", "SalesTotals"); totals != nil {
			detail.SalesAmount = parseFloatDefault(totals.Str("MerchandiseCodeSalesAmount", "SalesAmount"), 0)
			detail.SalesCount = parseFloatDefault(totals.Str("MerchandiseCodeSalesQuantity", "SalesQuantity", "SalesCount"), 0)
		}
		doc.Details = append(doc.Details, detail)
	}
	return doc, nil
}
