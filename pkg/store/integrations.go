package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cstorehq/backoffice/pkg/adapter"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("store: not found")

const integrationColumns = `id, company_id, store_id, pos_type, connection_mode,
	exchange_root, export_path, import_path, archive_path, error_path,
	naxml_version, store_location_id, encrypted_credentials,
	generate_acks, archive_processed, sync_enabled, sync_interval_mins,
	sync_departments, sync_tender_types, sync_cashiers, sync_tax_rates,
	is_active, poll_interval_seconds, last_sync_at, next_sync_at,
	created_at, updated_at`

// CreateIntegration inserts a POS integration. A store carries at most
// one; the store_id unique constraint enforces it.
func (s *Store) CreateIntegration(ctx context.Context, i *POSIntegration) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	i.CreatedAt = now
	i.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO pos_integrations (`+integrationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		i.ID, i.CompanyID, i.StoreID, string(i.POSType), string(i.ConnectionMode),
		i.ExchangeRoot, i.ExportPath, i.ImportPath, i.ArchivePath, i.ErrorPath,
		i.NAXMLVersion, i.StoreLocationID, i.EncryptedCredentials,
		i.GenerateAcks, i.ArchiveProcessed, i.SyncEnabled, i.SyncIntervalMins,
		i.SyncDepartments, i.SyncTenderTypes, i.SyncCashiers, i.SyncTaxRates,
		i.IsActive, i.PollIntervalSeconds, nullTime(i.LastSyncAt), nullTime(i.NextSyncAt),
		i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create integration for store %s: %w", i.StoreID, err)
	}
	return nil
}

func (s *Store) scanIntegration(row *sql.Row) (*POSIntegration, error) {
	var i POSIntegration
	var posType, connMode string
	var lastSync, nextSync sql.NullTime
	err := row.Scan(&i.ID, &i.CompanyID, &i.StoreID, &posType, &connMode,
		&i.ExchangeRoot, &i.ExportPath, &i.ImportPath, &i.ArchivePath, &i.ErrorPath,
		&i.NAXMLVersion, &i.StoreLocationID, &i.EncryptedCredentials,
		&i.GenerateAcks, &i.ArchiveProcessed, &i.SyncEnabled, &i.SyncIntervalMins,
		&i.SyncDepartments, &i.SyncTenderTypes, &i.SyncCashiers, &i.SyncTaxRates,
		&i.IsActive, &i.PollIntervalSeconds, &lastSync, &nextSync,
		&i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan integration: %w", err)
	}
	i.POSType = adapter.POSType(posType)
	i.ConnectionMode = ConnectionMode(connMode)
	i.LastSyncAt = scanNullTime(lastSync)
	i.NextSyncAt = scanNullTime(nextSync)
	return &i, nil
}

// GetIntegration fetches one integration by id.
func (s *Store) GetIntegration(ctx context.Context, id string) (*POSIntegration, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+integrationColumns+` FROM pos_integrations WHERE id = ?`), id)
	return s.scanIntegration(row)
}

// GetIntegrationByStore fetches the integration bound to a store.
func (s *Store) GetIntegrationByStore(ctx context.Context, storeID string) (*POSIntegration, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+integrationColumns+` FROM pos_integrations WHERE store_id = ?`), storeID)
	return s.scanIntegration(row)
}

// ListActiveIntegrations returns every active integration, ordered by
// store for deterministic watcher startup.
func (s *Store) ListActiveIntegrations(ctx context.Context) ([]*POSIntegration, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+integrationColumns+`
		FROM pos_integrations WHERE is_active = ? ORDER BY store_id`), true)
	if err != nil {
		return nil, fmt.Errorf("list active integrations: %w", err)
	}
	defer rows.Close()

	var out []*POSIntegration
	for rows.Next() {
		var i POSIntegration
		var posType, connMode string
		var lastSync, nextSync sql.NullTime
		if err := rows.Scan(&i.ID, &i.CompanyID, &i.StoreID, &posType, &connMode,
			&i.ExchangeRoot, &i.ExportPath, &i.ImportPath, &i.ArchivePath, &i.ErrorPath,
			&i.NAXMLVersion, &i.StoreLocationID, &i.EncryptedCredentials,
			&i.GenerateAcks, &i.ArchiveProcessed, &i.SyncEnabled, &i.SyncIntervalMins,
			&i.SyncDepartments, &i.SyncTenderTypes, &i.SyncCashiers, &i.SyncTaxRates,
			&i.IsActive, &i.PollIntervalSeconds, &lastSync, &nextSync,
			&i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration row: %w", err)
		}
		i.POSType = adapter.POSType(posType)
		i.ConnectionMode = ConnectionMode(connMode)
		i.LastSyncAt = scanNullTime(lastSync)
		i.NextSyncAt = scanNullTime(nextSync)
		out = append(out, &i)
	}
	return out, rows.Err()
}

// UpdatePollInterval persists a new poll interval, already clamped by
// the scheduler.
func (s *Store) UpdatePollInterval(ctx context.Context, id string, seconds int) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE pos_integrations
		SET poll_interval_seconds = ?, updated_at = ? WHERE id = ?`),
		seconds, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update poll interval: %w", err)
	}
	return nil
}

// StampSync records the completion of a sync cycle and the next due time.
func (s *Store) StampSync(ctx context.Context, id string, last, next time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE pos_integrations
		SET last_sync_at = ?, next_sync_at = ?, updated_at = ? WHERE id = ?`),
		last.UTC(), next.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("stamp sync: %w", err)
	}
	return nil
}

// SetIntegrationActive flips the active flag.
func (s *Store) SetIntegrationActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE pos_integrations
		SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set integration active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
