package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FindOrCreateFuelGrade resolves a vendor grade id to the company-level
// grade, creating it on first sight.
func (s *Store) FindOrCreateFuelGrade(ctx context.Context, q Querier, companyID, gradeID, name string, productType FuelProductType) (*FuelGrade, error) {
	var g FuelGrade
	var pt string
	err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, grade_id, name, product_type, created_at
		FROM fuel_grades WHERE company_id = ? AND grade_id = ?`), companyID, gradeID).
		Scan(&g.ID, &g.CompanyID, &g.GradeID, &g.Name, &pt, &g.CreatedAt)
	if err == nil {
		g.ProductType = FuelProductType(pt)
		return &g, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find fuel grade %s: %w", gradeID, err)
	}

	if productType == "" {
		productType = FuelOther
	}
	g = FuelGrade{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		GradeID:     gradeID,
		Name:        name,
		ProductType: productType,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = q.ExecContext(ctx, s.q(`INSERT INTO fuel_grades
		(id, company_id, grade_id, name, product_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		g.ID, g.CompanyID, g.GradeID, g.Name, string(g.ProductType), g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create fuel grade %s: %w", gradeID, err)
	}
	return &g, nil
}

// FindOrCreateFuelPosition resolves a dispenser position at a store,
// creating it on first sight.
func (s *Store) FindOrCreateFuelPosition(ctx context.Context, q Querier, companyID, storeID, positionID string) (*FuelPosition, error) {
	var p FuelPosition
	err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, store_id, position_id, name, created_at
		FROM fuel_positions WHERE store_id = ? AND position_id = ?`), storeID, positionID).
		Scan(&p.ID, &p.CompanyID, &p.StoreID, &p.PositionID, &p.Name, &p.CreatedAt)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find fuel position %s: %w", positionID, err)
	}

	p = FuelPosition{
		ID:         uuid.NewString(),
		CompanyID:  companyID,
		StoreID:    storeID,
		PositionID: positionID,
		Name:       "Pump " + positionID,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = q.ExecContext(ctx, s.q(`INSERT INTO fuel_positions
		(id, company_id, store_id, position_id, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		p.ID, p.CompanyID, p.StoreID, p.PositionID, p.Name, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create fuel position %s: %w", positionID, err)
	}
	return &p, nil
}

// UpsertShiftFuelSummary writes the per-(shift, grade, tender) rollup.
// Re-projection of the same shift replaces the bucket rather than
// accumulating into it.
func (s *Store) UpsertShiftFuelSummary(ctx context.Context, q Querier, f *ShiftFuelSummary) error {
	f.UpdatedAt = time.Now().UTC()
	res, err := q.ExecContext(ctx, s.q(`UPDATE shift_fuel_summaries
		SET business_date = ?, volume = ?, amount = ?, discount_amount = ?,
			transaction_count = ?, source_file_hash = ?, updated_at = ?
		WHERE shift_summary_id = ? AND fuel_grade_id = ? AND tender_type = ?`),
		f.BusinessDate.UTC(), f.Volume, f.Amount, f.DiscountAmount,
		f.TransactionCount, f.SourceFileHash, f.UpdatedAt,
		f.ShiftSummaryID, f.FuelGradeID, string(f.TenderType))
	if err != nil {
		return fmt.Errorf("update shift fuel summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err = q.ExecContext(ctx, s.q(`INSERT INTO shift_fuel_summaries
		(id, company_id, store_id, shift_summary_id, fuel_grade_id, tender_type,
		 business_date, volume, amount, discount_amount, transaction_count,
		 source_file_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.CompanyID, f.StoreID, f.ShiftSummaryID, f.FuelGradeID, string(f.TenderType),
		f.BusinessDate.UTC(), f.Volume, f.Amount, f.DiscountAmount, f.TransactionCount,
		f.SourceFileHash, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert shift fuel summary: %w", err)
	}
	return nil
}

// ListShiftFuelSummaries returns the fuel buckets of one shift.
func (s *Store) ListShiftFuelSummaries(ctx context.Context, q Querier, shiftID string) ([]*ShiftFuelSummary, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT id, company_id, store_id, shift_summary_id,
		fuel_grade_id, tender_type, business_date, volume, amount, discount_amount,
		transaction_count, source_file_hash, updated_at
		FROM shift_fuel_summaries WHERE shift_summary_id = ?
		ORDER BY fuel_grade_id, tender_type`), shiftID)
	if err != nil {
		return nil, fmt.Errorf("list shift fuel summaries: %w", err)
	}
	defer rows.Close()

	var out []*ShiftFuelSummary
	for rows.Next() {
		var f ShiftFuelSummary
		var tender string
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.StoreID, &f.ShiftSummaryID,
			&f.FuelGradeID, &tender, &f.BusinessDate, &f.Volume, &f.Amount, &f.DiscountAmount,
			&f.TransactionCount, &f.SourceFileHash, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan shift fuel summary: %w", err)
		}
		f.TenderType = FuelTenderBucket(tender)
		out = append(out, &f)
	}
	return out, rows.Err()
}

// InsertMeterReading appends one totalizer capture. Replays of the same
// (position, product, date, type) key are ignored, keeping the series
// append-only and idempotent.
func (s *Store) InsertMeterReading(ctx context.Context, q Querier, m *MeterReading) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	res, err := q.ExecContext(ctx, s.q(`INSERT INTO meter_readings
		(id, company_id, store_id, position_id, product_id, business_date,
		 reading_type, volume, amount, source_file_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_id, position_id, product_id, business_date, reading_type) DO NOTHING`),
		m.ID, m.CompanyID, m.StoreID, m.PositionID, m.ProductID, m.BusinessDate.UTC(),
		string(m.ReadingType), m.Volume, m.Amount, m.SourceFileHash, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert meter reading: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LatestMeterReading returns the most recent reading for a position and
// product, or ErrNotFound.
func (s *Store) LatestMeterReading(ctx context.Context, q Querier, storeID, positionID, productID string) (*MeterReading, error) {
	var m MeterReading
	var rt string
	err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, store_id, position_id, product_id,
		business_date, reading_type, volume, amount, source_file_hash, created_at
		FROM meter_readings
		WHERE store_id = ? AND position_id = ? AND product_id = ?
		ORDER BY business_date DESC, created_at DESC LIMIT 1`),
		storeID, positionID, productID).
		Scan(&m.ID, &m.CompanyID, &m.StoreID, &m.PositionID, &m.ProductID,
			&m.BusinessDate, &rt, &m.Volume, &m.Amount, &m.SourceFileHash, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest meter reading: %w", err)
	}
	m.ReadingType = MeterReadingType(rt)
	return &m, nil
}
