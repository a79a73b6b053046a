package projector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/store"
)

var tenderBuckets = map[naxml.FuelTenderCode]store.FuelTenderBucket{
	naxml.FuelTenderCash:          store.BucketCash,
	naxml.FuelTenderOutsideCredit: store.BucketOutsideCredit,
	naxml.FuelTenderOutsideDebit:  store.BucketOutsideDebit,
	naxml.FuelTenderInsideCredit:  store.BucketInsideCredit,
	naxml.FuelTenderInsideDebit:   store.BucketInsideDebit,
	naxml.FuelTenderFleet:         store.BucketFleet,
}

func bucketOf(code naxml.FuelTenderCode) store.FuelTenderBucket {
	if b, ok := tenderBuckets[code]; ok {
		return b
	}
	return store.BucketOther
}

// ProjectFGM folds a FuelGradeMovement into shift fuel summaries and the
// day rollup. The header business date is vendor period-start; the
// profile's sales-day offset converts it to the calendar day the sales
// belong to.
func (p *Projector) ProjectFGM(ctx context.Context, q store.Querier, tgt Target, doc *naxml.FGMDoc) (store.CategoryCounts, error) {
	counts := store.CategoryCounts{Received: len(doc.Details)}
	salesDay := tgt.SalesDay(doc.Movement.BusinessDate)

	registerID, cashierID := "0", ""
	if doc.Sales != nil {
		if doc.Sales.RegisterID != "" {
			registerID = doc.Sales.RegisterID
		}
		cashierID = doc.Sales.CashierID
	}
	shift, err := p.store.FindOrCreateShift(ctx, q, tgt.CompanyID, tgt.StoreID, salesDay, registerID, cashierID)
	if err != nil {
		return counts, err
	}

	var dayVolume, dayAmount float64
	for _, det := range doc.Details {
		grade, err := p.store.FindOrCreateFuelGrade(ctx, q, tgt.CompanyID, det.GradeID,
			"Grade "+det.GradeID, classifyGrade(det.GradeID))
		if err != nil {
			return counts, err
		}

		summary := store.ShiftFuelSummary{
			CompanyID:      tgt.CompanyID,
			StoreID:        tgt.StoreID,
			ShiftSummaryID: shift.ID,
			FuelGradeID:    grade.ID,
			BusinessDate:   salesDay,
			SourceFileHash: tgt.FileHash,
		}

		switch {
		case det.Tender != nil:
			summary.TenderType = bucketOf(det.Tender.TenderCode)
			summary.Volume = det.Tender.Totals.Volume
			summary.Amount = det.Tender.Totals.Amount
			summary.DiscountAmount = det.Tender.Totals.DiscountAmount
			summary.TransactionCount = det.Tender.Totals.TransactionCount

		case len(det.Positions) > 0:
			// Position-keyed details aggregate every position and price
			// tier into a single OTHER bucket.
			summary.TenderType = store.BucketOther
			for _, pos := range det.Positions {
				if _, err := p.store.FindOrCreateFuelPosition(ctx, q, tgt.CompanyID, tgt.StoreID, pos.PositionID); err != nil {
					return counts, err
				}
				for _, tier := range pos.Tiers {
					summary.Volume += tier.Totals.Volume
					summary.Amount += tier.Totals.Amount
					summary.DiscountAmount += tier.Totals.DiscountAmount
					summary.TransactionCount += tier.Totals.TransactionCount
				}
			}
		}

		if err := p.store.UpsertShiftFuelSummary(ctx, q, &summary); err != nil {
			return counts, err
		}
		counts.Created++
		dayVolume += summary.Volume
		dayAmount += summary.Amount
	}

	if err := p.foldDayFuel(ctx, q, tgt, salesDay, dayVolume, dayAmount); err != nil {
		return counts, err
	}
	return counts, nil
}

// foldDayFuel accumulates one FGM file's totals onto the day rollup.
// Replays never reach here (the file hash gate skips them), so plain
// accumulation across files stays correct.
func (p *Projector) foldDayFuel(ctx context.Context, q store.Querier, tgt Target, salesDay time.Time, volume, amount float64) error {
	day, err := p.store.GetDaySummary(ctx, q, tgt.StoreID, salesDay)
	if errors.Is(err, store.ErrNotFound) {
		day = &store.DaySummary{
			CompanyID:    tgt.CompanyID,
			StoreID:      tgt.StoreID,
			BusinessDate: salesDay,
		}
	} else if err != nil {
		return err
	}
	day.FuelSales += amount
	day.FuelGallons += volume
	return p.store.SaveDaySummary(ctx, q, day)
}

// ProjectFPM appends meter readings from a FuelProductMovement. Each
// (product, position) row becomes one CLOSE reading on the sales day.
func (p *Projector) ProjectFPM(ctx context.Context, q store.Querier, tgt Target, doc *naxml.FPMDoc) (store.CategoryCounts, error) {
	counts := store.CategoryCounts{}
	salesDay := tgt.SalesDay(doc.Movement.BusinessDate)

	for _, det := range doc.Details {
		for _, reading := range det.Readings {
			counts.Received++
			if _, err := p.store.FindOrCreateFuelPosition(ctx, q, tgt.CompanyID, tgt.StoreID, reading.PositionID); err != nil {
				return counts, err
			}
			inserted, err := p.store.InsertMeterReading(ctx, q, &store.MeterReading{
				CompanyID:      tgt.CompanyID,
				StoreID:        tgt.StoreID,
				PositionID:     reading.PositionID,
				ProductID:      det.ProductID,
				BusinessDate:   salesDay,
				ReadingType:    store.ReadingClose,
				Volume:         reading.Volume,
				Amount:         reading.Amount,
				SourceFileHash: tgt.FileHash,
			})
			if err != nil {
				return counts, err
			}
			if inserted {
				counts.Created++
			} else {
				counts.Skipped++
			}
		}
	}
	return counts, nil
}

// ProjectMSM folds miscellaneous summary details into the day rollup
// and, for shift reports, onto the shift.
func (p *Projector) ProjectMSM(ctx context.Context, q store.Querier, tgt Target, doc *naxml.MSMDoc) (store.CategoryCounts, error) {
	counts := store.CategoryCounts{Received: len(doc.Details)}
	salesDay := tgt.SalesDay(doc.Movement.BusinessDate)

	day, err := p.store.GetDaySummary(ctx, q, tgt.StoreID, salesDay)
	if errors.Is(err, store.ErrNotFound) {
		day = &store.DaySummary{
			CompanyID:    tgt.CompanyID,
			StoreID:      tgt.StoreID,
			BusinessDate: salesDay,
		}
	} else if err != nil {
		return counts, err
	}

	for _, det := range doc.Details {
		switch det.Code {
		case "totalizer":
			switch det.SubCode {
			case "sales", "netSales":
				day.NetSales = det.Amount
			case "grossSales":
				day.GrossSales = det.Amount
			case "fuelSales":
				day.FuelSales = det.Amount
			case "merchandiseSales":
				day.MerchandiseSales = det.Amount
			case "tax":
				day.TaxTotal = det.Amount
			default:
				counts.Skipped++
				continue
			}
		case "statistics":
			switch det.SubCode {
			case "transactionCount":
				day.TransactionCount = int(det.Count)
			case "voidCount":
				day.VoidCount = int(det.Count)
			case "refundCount":
				day.RefundCount = int(det.Count)
			default:
				counts.Skipped++
				continue
			}
		case "fuelSalesByGrade":
			// Count carries volume for this code, not transactions.
			day.FuelSales += det.Amount
			day.FuelGallons += det.Count
		case "safeDrop":
			day.SafeDropTotal += det.Amount
		case "safeLoan":
			day.SafeLoanTotal += det.Amount
		case "openingBalance":
			day.OpeningBalance = det.Amount
		case "closingBalance":
			day.ClosingBalance = det.Amount
		default:
			counts.Skipped++
			continue
		}
		counts.Updated++
	}

	if err := p.store.SaveDaySummary(ctx, q, day); err != nil {
		return counts, err
	}

	// Shift-close reports also stamp the shift's net sales.
	if doc.Movement.PrimaryPeriod == naxml.PeriodShiftClose {
		registerID := "0"
		var cashierID string
		for _, det := range doc.Details {
			if det.RegisterID != "" {
				registerID = det.RegisterID
				cashierID = det.CashierID
				break
			}
		}
		shift, err := p.store.FindOrCreateShift(ctx, q, tgt.CompanyID, tgt.StoreID, salesDay, registerID, cashierID)
		if err != nil {
			return counts, err
		}
		for _, det := range doc.Details {
			if det.Code == "totalizer" && (det.SubCode == "sales" || det.SubCode == "netSales") {
				if err := p.store.CloseShift(ctx, q, shift.ID, det.Amount); err != nil && !errors.Is(err, store.ErrNotFound) {
					return counts, err
				}
				break
			}
		}
	}
	return counts, nil
}

// DiscoverFuel registers the fuel grades and positions a movement report
// mentions without projecting any totals. The initial import pass runs it
// over historical files so grades and dispensers exist before continuous
// ingestion starts. Returns the grade and position ids it touched.
func (p *Projector) DiscoverFuel(ctx context.Context, q store.Querier, tgt Target, doc naxml.Document) (grades, positions []string, err error) {
	switch d := doc.(type) {
	case *naxml.FGMDoc:
		for _, det := range d.Details {
			if _, err := p.store.FindOrCreateFuelGrade(ctx, q, tgt.CompanyID, det.GradeID,
				"Grade "+det.GradeID, classifyGrade(det.GradeID)); err != nil {
				return grades, positions, err
			}
			grades = append(grades, det.GradeID)
			for _, pos := range det.Positions {
				if _, err := p.store.FindOrCreateFuelPosition(ctx, q, tgt.CompanyID, tgt.StoreID, pos.PositionID); err != nil {
					return grades, positions, err
				}
				positions = append(positions, pos.PositionID)
			}
		}
	case *naxml.FPMDoc:
		for _, det := range d.Details {
			for _, reading := range det.Readings {
				if _, err := p.store.FindOrCreateFuelPosition(ctx, q, tgt.CompanyID, tgt.StoreID, reading.PositionID); err != nil {
					return grades, positions, err
				}
				positions = append(positions, reading.PositionID)
			}
		}
	}
	return grades, positions, nil
}

// classifyGrade guesses the product bucket from the vendor grade id.
// Numeric Gilbarco grade ids carry no product hint, so unknowns stay
// OTHER until renamed by an operator.
func classifyGrade(gradeID string) store.FuelProductType {
	id := strings.ToUpper(gradeID)
	switch {
	case strings.Contains(id, "DSL") || strings.Contains(id, "DIESEL"):
		return store.FuelDiesel
	case strings.Contains(id, "DEF"):
		return store.FuelDEF
	case strings.Contains(id, "KER"):
		return store.FuelKerosene
	}
	return store.FuelOther
}
