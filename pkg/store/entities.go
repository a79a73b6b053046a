package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reference entities (departments, tender types, tax rates) are written
// inside the same transaction as the file log that carried them, so
// every method here takes a Querier.

func notInClause(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// ListDepartments returns the store's departments from one POS source,
// keyed by POS code.
func (s *Store) ListDepartments(ctx context.Context, q Querier, storeID, posSource string) (map[string]*Department, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT id, company_id, store_id, code, pos_code, name,
		taxable, is_active, pos_source, last_synced_at, updated_at
		FROM departments WHERE store_id = ? AND pos_source = ?`), storeID, posSource)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Department)
	for rows.Next() {
		var d Department
		var synced sql.NullTime
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.StoreID, &d.Code, &d.POSCode, &d.Name,
			&d.Taxable, &d.IsActive, &d.POSSource, &synced, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		d.LastSyncedAt = scanNullTime(synced)
		out[d.POSCode] = &d
	}
	return out, rows.Err()
}

// InsertDepartment creates a department row.
func (s *Store) InsertDepartment(ctx context.Context, q Querier, d *Department) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.LastSyncedAt = now
	d.UpdatedAt = now
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO departments
		(id, company_id, store_id, code, pos_code, name, taxable, is_active, pos_source, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.CompanyID, d.StoreID, d.Code, d.POSCode, d.Name,
		d.Taxable, d.IsActive, d.POSSource, d.LastSyncedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert department %s: %w", d.POSCode, err)
	}
	return nil
}

// UpdateDepartment rewrites the mutable fields of a department.
func (s *Store) UpdateDepartment(ctx context.Context, q Querier, d *Department) error {
	now := time.Now().UTC()
	d.LastSyncedAt = now
	d.UpdatedAt = now
	_, err := q.ExecContext(ctx, s.q(`UPDATE departments
		SET code = ?, name = ?, taxable = ?, is_active = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`),
		d.Code, d.Name, d.Taxable, d.IsActive, d.LastSyncedAt, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("update department %s: %w", d.POSCode, err)
	}
	return nil
}

// TouchDepartment stamps last_synced_at without changing fields.
func (s *Store) TouchDepartment(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, s.q(`UPDATE departments SET last_synced_at = ? WHERE id = ?`),
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch department: %w", err)
	}
	return nil
}

// DeactivateDepartmentsExcept deactivates every active department of the
// source that is absent from keep. Used only on Full maintenance syncs.
func (s *Store) DeactivateDepartmentsExcept(ctx context.Context, q Querier, storeID, posSource string, keep []string) (int64, error) {
	query := `UPDATE departments SET is_active = ?, updated_at = ?
		WHERE store_id = ? AND pos_source = ? AND is_active = ?`
	args := []any{false, time.Now().UTC(), storeID, posSource, true}
	if len(keep) > 0 {
		query += ` AND pos_code NOT IN (` + notInClause(len(keep)) + `)`
		for _, code := range keep {
			args = append(args, code)
		}
	}
	res, err := q.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate departments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListTenderTypes returns the store's tender types from one POS source,
// keyed by POS code.
func (s *Store) ListTenderTypes(ctx context.Context, q Querier, storeID, posSource string) (map[string]*TenderType, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT id, company_id, store_id, code, pos_code, name,
		electronic, is_active, pos_source, last_synced_at, updated_at
		FROM tender_types WHERE store_id = ? AND pos_source = ?`), storeID, posSource)
	if err != nil {
		return nil, fmt.Errorf("list tender types: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*TenderType)
	for rows.Next() {
		var t TenderType
		var synced sql.NullTime
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.StoreID, &t.Code, &t.POSCode, &t.Name,
			&t.Electronic, &t.IsActive, &t.POSSource, &synced, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tender type: %w", err)
		}
		t.LastSyncedAt = scanNullTime(synced)
		out[t.POSCode] = &t
	}
	return out, rows.Err()
}

// InsertTenderType creates a tender type row.
func (s *Store) InsertTenderType(ctx context.Context, q Querier, t *TenderType) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.LastSyncedAt = now
	t.UpdatedAt = now
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO tender_types
		(id, company_id, store_id, code, pos_code, name, electronic, is_active, pos_source, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.CompanyID, t.StoreID, t.Code, t.POSCode, t.Name,
		t.Electronic, t.IsActive, t.POSSource, t.LastSyncedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tender type %s: %w", t.POSCode, err)
	}
	return nil
}

// UpdateTenderType rewrites the mutable fields of a tender type.
func (s *Store) UpdateTenderType(ctx context.Context, q Querier, t *TenderType) error {
	now := time.Now().UTC()
	t.LastSyncedAt = now
	t.UpdatedAt = now
	_, err := q.ExecContext(ctx, s.q(`UPDATE tender_types
		SET code = ?, name = ?, electronic = ?, is_active = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`),
		t.Code, t.Name, t.Electronic, t.IsActive, t.LastSyncedAt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update tender type %s: %w", t.POSCode, err)
	}
	return nil
}

// DeactivateTenderTypesExcept deactivates tenders absent from keep on a
// Full maintenance sync.
func (s *Store) DeactivateTenderTypesExcept(ctx context.Context, q Querier, storeID, posSource string, keep []string) (int64, error) {
	query := `UPDATE tender_types SET is_active = ?, updated_at = ?
		WHERE store_id = ? AND pos_source = ? AND is_active = ?`
	args := []any{false, time.Now().UTC(), storeID, posSource, true}
	if len(keep) > 0 {
		query += ` AND pos_code NOT IN (` + notInClause(len(keep)) + `)`
		for _, code := range keep {
			args = append(args, code)
		}
	}
	res, err := q.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate tender types: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListTaxRates returns the store's tax rates from one POS source, keyed
// by POS code.
func (s *Store) ListTaxRates(ctx context.Context, q Querier, storeID, posSource string) (map[string]*TaxRate, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT id, company_id, store_id, code, pos_code, name,
		rate_percent, is_active, pos_source, last_synced_at, updated_at
		FROM tax_rates WHERE store_id = ? AND pos_source = ?`), storeID, posSource)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*TaxRate)
	for rows.Next() {
		var t TaxRate
		var synced sql.NullTime
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.StoreID, &t.Code, &t.POSCode, &t.Name,
			&t.RatePercent, &t.IsActive, &t.POSSource, &synced, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		t.LastSyncedAt = scanNullTime(synced)
		out[t.POSCode] = &t
	}
	return out, rows.Err()
}

// InsertTaxRate creates a tax rate row.
func (s *Store) InsertTaxRate(ctx context.Context, q Querier, t *TaxRate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.LastSyncedAt = now
	t.UpdatedAt = now
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO tax_rates
		(id, company_id, store_id, code, pos_code, name, rate_percent, is_active, pos_source, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.CompanyID, t.StoreID, t.Code, t.POSCode, t.Name,
		t.RatePercent, t.IsActive, t.POSSource, t.LastSyncedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tax rate %s: %w", t.POSCode, err)
	}
	return nil
}

// UpdateTaxRate rewrites the mutable fields of a tax rate.
func (s *Store) UpdateTaxRate(ctx context.Context, q Querier, t *TaxRate) error {
	now := time.Now().UTC()
	t.LastSyncedAt = now
	t.UpdatedAt = now
	_, err := q.ExecContext(ctx, s.q(`UPDATE tax_rates
		SET code = ?, name = ?, rate_percent = ?, is_active = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`),
		t.Code, t.Name, t.RatePercent, t.IsActive, t.LastSyncedAt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update tax rate %s: %w", t.POSCode, err)
	}
	return nil
}

// DeactivateTaxRatesExcept deactivates tax rates absent from keep on a
// Full maintenance sync.
func (s *Store) DeactivateTaxRatesExcept(ctx context.Context, q Querier, storeID, posSource string, keep []string) (int64, error) {
	query := `UPDATE tax_rates SET is_active = ?, updated_at = ?
		WHERE store_id = ? AND pos_source = ? AND is_active = ?`
	args := []any{false, time.Now().UTC(), storeID, posSource, true}
	if len(keep) > 0 {
		query += ` AND pos_code NOT IN (` + notInClause(len(keep)) + `)`
		for _, code := range keep {
			args = append(args, code)
		}
	}
	res, err := q.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate tax rates: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FindImportUser resolves the attribution user for projected rows: the
// company's dedicated import user when present, else its owner, else
// any user in the company.
func (s *Store) FindImportUser(ctx context.Context, q Querier, companyID string) (*User, error) {
	for _, role := range []string{"import", "owner"} {
		var u User
		err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, role FROM users
			WHERE company_id = ? AND role = ? LIMIT 1`), companyID, role).
			Scan(&u.ID, &u.CompanyID, &u.Role)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find import user: %w", err)
		}
	}
	var u User
	err := q.QueryRowContext(ctx, s.q(`SELECT id, company_id, role FROM users
		WHERE company_id = ? ORDER BY role LIMIT 1`), companyID).
		Scan(&u.ID, &u.CompanyID, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find import user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user row. The core only ever seeds import users;
// the rest of the platform owns this table.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (id, company_id, role) VALUES (?, ?, ?)`),
		u.ID, u.CompanyID, u.Role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
