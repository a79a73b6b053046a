package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetDaySummary fetches the rollup for one (store, business date), or
// ErrNotFound.
func (s *Store) GetDaySummary(ctx context.Context, q Querier, storeID string, businessDate time.Time) (*DaySummary, error) {
	var d DaySummary
	err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, store_id, business_date,
		fuel_sales, fuel_gallons, merchandise_sales, net_sales, gross_sales, tax_total,
		transaction_count, void_count, refund_count, safe_drop_total, safe_loan_total,
		opening_balance, closing_balance, updated_at
		FROM day_summaries WHERE store_id = ? AND business_date = ?`),
		storeID, businessDate.UTC()).
		Scan(&d.ID, &d.CompanyID, &d.StoreID, &d.BusinessDate,
			&d.FuelSales, &d.FuelGallons, &d.MerchandiseSales, &d.NetSales, &d.GrossSales, &d.TaxTotal,
			&d.TransactionCount, &d.VoidCount, &d.RefundCount, &d.SafeDropTotal, &d.SafeLoanTotal,
			&d.OpeningBalance, &d.ClosingBalance, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get day summary: %w", err)
	}
	return &d, nil
}

// SaveDaySummary inserts or rewrites the day rollup. Callers read,
// fold, and save within one transaction, so the read-modify-write is
// race free.
func (s *Store) SaveDaySummary(ctx context.Context, q Querier, d *DaySummary) error {
	d.UpdatedAt = time.Now().UTC()
	if d.ID != "" {
		_, err := q.ExecContext(ctx, s.q(`UPDATE day_summaries
			SET fuel_sales = ?, fuel_gallons = ?, merchandise_sales = ?, net_sales = ?,
				gross_sales = ?, tax_total = ?, transaction_count = ?, void_count = ?,
				refund_count = ?, safe_drop_total = ?, safe_loan_total = ?,
				opening_balance = ?, closing_balance = ?, updated_at = ?
			WHERE id = ?`),
			d.FuelSales, d.FuelGallons, d.MerchandiseSales, d.NetSales,
			d.GrossSales, d.TaxTotal, d.TransactionCount, d.VoidCount,
			d.RefundCount, d.SafeDropTotal, d.SafeLoanTotal,
			d.OpeningBalance, d.ClosingBalance, d.UpdatedAt, d.ID)
		if err != nil {
			return fmt.Errorf("update day summary: %w", err)
		}
		return nil
	}

	d.ID = uuid.NewString()
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO day_summaries
		(id, company_id, store_id, business_date, fuel_sales, fuel_gallons,
		 merchandise_sales, net_sales, gross_sales, tax_total, transaction_count,
		 void_count, refund_count, safe_drop_total, safe_loan_total,
		 opening_balance, closing_balance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.CompanyID, d.StoreID, d.BusinessDate.UTC(), d.FuelSales, d.FuelGallons,
		d.MerchandiseSales, d.NetSales, d.GrossSales, d.TaxTotal, d.TransactionCount,
		d.VoidCount, d.RefundCount, d.SafeDropTotal, d.SafeLoanTotal,
		d.OpeningBalance, d.ClosingBalance, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert day summary: %w", err)
	}
	return nil
}

// FindOrCreateShift resolves the open shift for a register on a business
// date, creating one when the POS reports activity before any explicit
// shift open.
func (s *Store) FindOrCreateShift(ctx context.Context, q Querier, companyID, storeID string, businessDate time.Time, registerID, cashierID string) (*ShiftSummary, error) {
	var sh ShiftSummary
	var status string
	var closedAt sql.NullTime
	err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, store_id, business_date, register_id,
		cashier_id, till_id, status, net_sales, opened_at, closed_at
		FROM shift_summaries
		WHERE store_id = ? AND business_date = ? AND register_id = ? AND status = ?
		ORDER BY opened_at DESC LIMIT 1`),
		storeID, businessDate.UTC(), registerID, string(ShiftOpen)).
		Scan(&sh.ID, &sh.CompanyID, &sh.StoreID, &sh.BusinessDate, &sh.RegisterID,
			&sh.CashierID, &sh.TillID, &status, &sh.NetSales, &sh.OpenedAt, &closedAt)
	if err == nil {
		sh.Status = ShiftStatus(status)
		sh.ClosedAt = scanNullTime(closedAt)
		return &sh, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find shift: %w", err)
	}

	sh = ShiftSummary{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		StoreID:      storeID,
		BusinessDate: businessDate.UTC(),
		RegisterID:   registerID,
		CashierID:    cashierID,
		Status:       ShiftOpen,
		OpenedAt:     time.Now().UTC(),
	}
	_, err = q.ExecContext(ctx, s.q(`INSERT INTO shift_summaries
		(id, company_id, store_id, business_date, register_id, cashier_id, till_id,
		 status, net_sales, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sh.ID, sh.CompanyID, sh.StoreID, sh.BusinessDate, sh.RegisterID, sh.CashierID, sh.TillID,
		string(sh.Status), sh.NetSales, sh.OpenedAt, nil)
	if err != nil {
		return nil, fmt.Errorf("create shift: %w", err)
	}
	return &sh, nil
}

// FindCurrentShift resolves the shift a journal transaction books to:
// the most recently opened shift still OPEN, else the most recent shift
// in any status. ErrNotFound when the store has no shifts at all.
func (s *Store) FindCurrentShift(ctx context.Context, q Querier, storeID string) (*ShiftSummary, error) {
	const shiftColumns = `SELECT id, company_id, store_id, business_date, register_id,
		cashier_id, till_id, status, net_sales, opened_at, closed_at
		FROM shift_summaries WHERE store_id = ?`

	sh, err := scanShift(q.QueryRowContext(ctx, s.q(shiftColumns+` AND status = ?
		ORDER BY opened_at DESC LIMIT 1`), storeID, string(ShiftOpen)))
	if err == nil {
		return sh, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return scanShift(q.QueryRowContext(ctx, s.q(shiftColumns+`
		ORDER BY opened_at DESC LIMIT 1`), storeID))
}

func scanShift(row *sql.Row) (*ShiftSummary, error) {
	var sh ShiftSummary
	var status string
	var closedAt sql.NullTime
	err := row.Scan(&sh.ID, &sh.CompanyID, &sh.StoreID, &sh.BusinessDate, &sh.RegisterID,
		&sh.CashierID, &sh.TillID, &status, &sh.NetSales, &sh.OpenedAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan shift: %w", err)
	}
	sh.Status = ShiftStatus(status)
	sh.ClosedAt = scanNullTime(closedAt)
	return &sh, nil
}

// CloseShift marks a shift CLOSED with its final net sales.
func (s *Store) CloseShift(ctx context.Context, q Querier, shiftID string, netSales float64) error {
	res, err := q.ExecContext(ctx, s.q(`UPDATE shift_summaries
		SET status = ?, net_sales = ?, closed_at = ?
		WHERE id = ? AND status = ?`),
		string(ShiftClosed), netSales, time.Now().UTC(), shiftID, string(ShiftOpen))
	if err != nil {
		return fmt.Errorf("close shift: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddShiftNetSales accumulates transaction totals onto the open shift.
func (s *Store) AddShiftNetSales(ctx context.Context, q Querier, shiftID string, amount float64) error {
	_, err := q.ExecContext(ctx, s.q(`UPDATE shift_summaries
		SET net_sales = net_sales + ? WHERE id = ?`), amount, shiftID)
	if err != nil {
		return fmt.Errorf("add shift net sales: %w", err)
	}
	return nil
}

// InsertSyncLog records one completed sync cycle.
func (s *Store) InsertSyncLog(ctx context.Context, l *SyncLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	categories, err := json.Marshal(l.Categories)
	if err != nil {
		return fmt.Errorf("encode sync categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO sync_logs
		(id, integration_id, company_id, store_id, status, categories,
		 duration_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.IntegrationID, l.CompanyID, l.StoreID, string(l.Status), string(categories),
		l.DurationMs, l.StartedAt.UTC(), nullTime(l.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert sync log: %w", err)
	}
	return nil
}

// ListSyncLogs returns the most recent sync cycles for an integration.
func (s *Store) ListSyncLogs(ctx context.Context, integrationID string, limit int) ([]*SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, integration_id, company_id, store_id,
		status, categories, duration_ms, started_at, completed_at
		FROM sync_logs WHERE integration_id = ?
		ORDER BY started_at DESC LIMIT ?`), integrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var out []*SyncLog
	for rows.Next() {
		var l SyncLog
		var status, categories string
		var completed sql.NullTime
		if err := rows.Scan(&l.ID, &l.IntegrationID, &l.CompanyID, &l.StoreID,
			&status, &categories, &l.DurationMs, &l.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		l.Status = SyncStatus(status)
		l.CompletedAt = scanNullTime(completed)
		if err := json.Unmarshal([]byte(categories), &l.Categories); err != nil {
			return nil, fmt.Errorf("decode sync categories: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
