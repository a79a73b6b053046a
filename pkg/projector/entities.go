package projector

import (
	"context"
	"fmt"

	"github.com/cstorehq/backoffice/pkg/naxml"
	"github.com/cstorehq/backoffice/pkg/store"
)

// SyncMaintenance projects one maintenance document into the reference
// tables. The returned counts distinguish created, updated (a business
// field actually changed), skipped (present but identical), and
// deactivated rows.
func (p *Projector) SyncMaintenance(ctx context.Context, q store.Querier, tgt Target, doc *naxml.MaintenanceDoc) (store.CategoryCounts, error) {
	switch doc.Kind {
	case naxml.DocDepartmentMaint:
		return p.syncDepartments(ctx, q, tgt, doc)
	case naxml.DocTenderMaint:
		return p.syncTenderTypes(ctx, q, tgt, doc)
	case naxml.DocTaxRateMaint:
		return p.syncTaxRates(ctx, q, tgt, doc)
	case naxml.DocEmployeeMaint, naxml.DocPriceBookMaint:
		// Recognized but not projected; the platform's HR and pricebook
		// services own these tables.
		return store.CategoryCounts{Received: len(doc.Entries), Skipped: len(doc.Entries)}, nil
	}
	return store.CategoryCounts{}, fmt.Errorf("projector: %s is not a maintenance document", doc.Kind)
}

func (p *Projector) syncDepartments(ctx context.Context, q store.Querier, tgt Target, doc *naxml.MaintenanceDoc) (store.CategoryCounts, error) {
	counts := store.CategoryCounts{Received: len(doc.Entries)}
	source := tgt.PosSource()

	existing, err := p.store.ListDepartments(ctx, q, tgt.StoreID, source)
	if err != nil {
		return counts, err
	}

	var keep []string
	for _, e := range doc.Entries {
		if e.POSCode == "" {
			counts.Errors = append(counts.Errors, "department entry without a code")
			continue
		}
		cur := existing[e.POSCode]

		if e.Action == naxml.ActionDelete {
			if cur != nil && cur.IsActive {
				cur.IsActive = false
				if err := p.store.UpdateDepartment(ctx, q, cur); err != nil {
					return counts, err
				}
				counts.Deactivated++
			}
			continue
		}
		keep = append(keep, e.POSCode)

		if cur == nil {
			d := &store.Department{
				CompanyID: tgt.CompanyID,
				StoreID:   tgt.StoreID,
				Code:      deriveCode(e.POSCode, e.Description),
				POSCode:   e.POSCode,
				Name:      e.Description,
				IsActive:  true,
				POSSource: source,
			}
			if e.Taxable != nil {
				d.Taxable = *e.Taxable
			}
			if err := p.store.InsertDepartment(ctx, q, d); err != nil {
				return counts, err
			}
			existing[e.POSCode] = d
			counts.Created++
			continue
		}

		changed := false
		if e.Description != "" && e.Description != cur.Name {
			cur.Name = e.Description
			changed = true
		}
		if e.Taxable != nil && *e.Taxable != cur.Taxable {
			cur.Taxable = *e.Taxable
			changed = true
		}
		if !cur.IsActive {
			cur.IsActive = true
			changed = true
		}
		if changed {
			if err := p.store.UpdateDepartment(ctx, q, cur); err != nil {
				return counts, err
			}
			counts.Updated++
		} else {
			if err := p.store.TouchDepartment(ctx, q, cur.ID); err != nil {
				return counts, err
			}
			counts.Skipped++
		}
	}

	if doc.Mode == naxml.MaintFull {
		n, err := p.store.DeactivateDepartmentsExcept(ctx, q, tgt.StoreID, source, keep)
		if err != nil {
			return counts, err
		}
		counts.Deactivated += int(n)
	}
	return counts, nil
}

func (p *Projector) syncTenderTypes(ctx context.Context, q store.Querier, tgt Target, doc *naxml.MaintenanceDoc) (store.CategoryCounts, error) {
	counts := store.CategoryCounts{Received: len(doc.Entries)}
	source := tgt.PosSource()

	existing, err := p.store.ListTenderTypes(ctx, q, tgt.StoreID, source)
	if err != nil {
		return counts, err
	}

	var keep []string
	for _, e := range doc.Entries {
		if e.POSCode == "" {
			counts.Errors = append(counts.Errors, "tender entry without a code")
			continue
		}
		cur := existing[e.POSCode]

		if e.Action == naxml.ActionDelete {
			if cur != nil && cur.IsActive {
				cur.IsActive = false
				if err := p.store.UpdateTenderType(ctx, q, cur); err != nil {
					return counts, err
				}
				counts.Deactivated++
			}
			continue
		}
		keep = append(keep, e.POSCode)

		if cur == nil {
			t := &store.TenderType{
				CompanyID: tgt.CompanyID,
				StoreID:   tgt.StoreID,
				Code:      deriveCode(e.POSCode, e.Description),
				POSCode:   e.POSCode,
				Name:      e.Description,
				IsActive:  true,
				POSSource: source,
			}
			if e.Electronic != nil {
				t.Electronic = *e.Electronic
			}
			if err := p.store.InsertTenderType(ctx, q, t); err != nil {
				return counts, err
			}
			existing[e.POSCode] = t
			counts.Created++
			continue
		}

		changed := false
		if e.Description != "" && e.Description != cur.Name {
			cur.Name = e.Description
			changed = true
		}
		if e.Electronic != nil && *e.Electronic != cur.Electronic {
			cur.Electronic = *e.Electronic
			changed = true
		}
		if !cur.IsActive {
			cur.IsActive = true
			changed = true
		}
		if changed {
			if err := p.store.UpdateTenderType(ctx, q, cur); err != nil {
				return counts, err
			}
			counts.Updated++
		} else {
			counts.Skipped++
		}
	}

	if doc.Mode == naxml.MaintFull {
		n, err := p.store.DeactivateTenderTypesExcept(ctx, q, tgt.StoreID, source, keep)
		if err != nil {
			return counts, err
		}
		counts.Deactivated += int(n)
	}
	return counts, nil
}

func (p *Projector) syncTaxRates(ctx context.Context, q store.Querier, tgt Target, doc *naxml.MaintenanceDoc) (store.CategoryCounts, error) {
	counts := store.CategoryCounts{Received: len(doc.Entries)}
	source := tgt.PosSource()

	existing, err := p.store.ListTaxRates(ctx, q, tgt.StoreID, source)
	if err != nil {
		return counts, err
	}

	var keep []string
	for _, e := range doc.Entries {
		if e.POSCode == "" {
			counts.Errors = append(counts.Errors, "tax rate entry without a code")
			continue
		}
		cur := existing[e.POSCode]

		if e.Action == naxml.ActionDelete {
			if cur != nil && cur.IsActive {
				cur.IsActive = false
				if err := p.store.UpdateTaxRate(ctx, q, cur); err != nil {
					return counts, err
				}
				counts.Deactivated++
			}
			continue
		}
		keep = append(keep, e.POSCode)

		if cur == nil {
			t := &store.TaxRate{
				CompanyID: tgt.CompanyID,
				StoreID:   tgt.StoreID,
				Code:      deriveCode(e.POSCode, e.Description),
				POSCode:   e.POSCode,
				Name:      e.Description,
				IsActive:  true,
				POSSource: source,
			}
			if e.TaxRate != nil {
				t.RatePercent = *e.TaxRate
			}
			if err := p.store.InsertTaxRate(ctx, q, t); err != nil {
				return counts, err
			}
			existing[e.POSCode] = t
			counts.Created++
			continue
		}

		changed := false
		if e.Description != "" && e.Description != cur.Name {
			cur.Name = e.Description
			changed = true
		}
		if e.TaxRate != nil && *e.TaxRate != cur.RatePercent {
			cur.RatePercent = *e.TaxRate
			changed = true
		}
		if !cur.IsActive {
			cur.IsActive = true
			changed = true
		}
		if changed {
			if err := p.store.UpdateTaxRate(ctx, q, cur); err != nil {
				return counts, err
			}
			counts.Updated++
		} else {
			counts.Skipped++
		}
	}

	if doc.Mode == naxml.MaintFull {
		n, err := p.store.DeactivateTaxRatesExcept(ctx, q, tgt.StoreID, source, keep)
		if err != nil {
			return counts, err
		}
		counts.Deactivated += int(n)
	}
	return counts, nil
}
