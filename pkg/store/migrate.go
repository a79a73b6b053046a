package store

import (
	"context"
	"fmt"
)

// Schema is portable across the sqlite and postgres dialects the core
// runs on; no serial columns, uuid text keys throughout.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS pos_integrations (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL UNIQUE,
		pos_type TEXT NOT NULL,
		connection_mode TEXT NOT NULL DEFAULT 'FILE_EXCHANGE',
		exchange_root TEXT NOT NULL DEFAULT '',
		export_path TEXT NOT NULL DEFAULT '',
		import_path TEXT NOT NULL DEFAULT '',
		archive_path TEXT NOT NULL DEFAULT '',
		error_path TEXT NOT NULL DEFAULT '',
		naxml_version TEXT NOT NULL DEFAULT '3.4',
		store_location_id TEXT NOT NULL DEFAULT '',
		encrypted_credentials TEXT NOT NULL DEFAULT '',
		generate_acks BOOLEAN NOT NULL DEFAULT FALSE,
		archive_processed BOOLEAN NOT NULL DEFAULT TRUE,
		sync_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		sync_interval_mins INTEGER NOT NULL DEFAULT 60,
		sync_departments BOOLEAN NOT NULL DEFAULT TRUE,
		sync_tender_types BOOLEAN NOT NULL DEFAULT TRUE,
		sync_cashiers BOOLEAN NOT NULL DEFAULT FALSE,
		sync_tax_rates BOOLEAN NOT NULL DEFAULT TRUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		poll_interval_seconds INTEGER NOT NULL DEFAULT 900,
		last_sync_at TIMESTAMP,
		next_sync_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS file_logs (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL DEFAULT 'INBOUND',
		status TEXT NOT NULL DEFAULT 'PENDING',
		file_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0,
		processing_ms INTEGER NOT NULL DEFAULT 0,
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		skip_reason TEXT NOT NULL DEFAULT '',
		source_path TEXT NOT NULL DEFAULT '',
		processed_path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS audit_records (
		exchange_id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		exchange_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		data_category TEXT NOT NULL DEFAULT '',
		source_system TEXT NOT NULL DEFAULT '',
		destination_system TEXT NOT NULL DEFAULT '',
		contains_pii BOOLEAN NOT NULL DEFAULT FALSE,
		contains_financial BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'PENDING',
		record_count INTEGER NOT NULL DEFAULT 0,
		data_size INTEGER NOT NULL DEFAULT 0,
		file_name TEXT NOT NULL DEFAULT '',
		file_hash TEXT NOT NULL DEFAULT '',
		payload_hash TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		retention_policy TEXT NOT NULL DEFAULT 'STANDARD',
		retention_expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		code TEXT NOT NULL,
		pos_code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		taxable BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		pos_source TEXT NOT NULL DEFAULT '',
		last_synced_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, pos_source, pos_code)
	)`,
	`CREATE TABLE IF NOT EXISTS tender_types (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		code TEXT NOT NULL,
		pos_code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		electronic BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		pos_source TEXT NOT NULL DEFAULT '',
		last_synced_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, pos_source, pos_code)
	)`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		code TEXT NOT NULL,
		pos_code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		rate_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		pos_source TEXT NOT NULL DEFAULT '',
		last_synced_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, pos_source, pos_code)
	)`,
	`CREATE TABLE IF NOT EXISTS fuel_grades (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		grade_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL DEFAULT 'OTHER',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (company_id, grade_id)
	)`,
	`CREATE TABLE IF NOT EXISTS fuel_positions (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, position_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shift_summaries (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		business_date TIMESTAMP NOT NULL,
		register_id TEXT NOT NULL DEFAULT '',
		cashier_id TEXT NOT NULL DEFAULT '',
		till_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'OPEN',
		net_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS shift_fuel_summaries (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		shift_summary_id TEXT NOT NULL,
		fuel_grade_id TEXT NOT NULL,
		tender_type TEXT NOT NULL,
		business_date TIMESTAMP NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		discount_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		transaction_count INTEGER NOT NULL DEFAULT 0,
		source_file_hash TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (shift_summary_id, fuel_grade_id, tender_type)
	)`,
	`CREATE TABLE IF NOT EXISTS meter_readings (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		business_date TIMESTAMP NOT NULL,
		reading_type TEXT NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_file_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, position_id, product_id, business_date, reading_type)
	)`,
	`CREATE TABLE IF NOT EXISTS day_summaries (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		business_date TIMESTAMP NOT NULL,
		fuel_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
		fuel_gallons DOUBLE PRECISION NOT NULL DEFAULT 0,
		merchandise_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
		gross_sales DOUBLE PRECISION NOT NULL DEFAULT 0,
		tax_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		transaction_count INTEGER NOT NULL DEFAULT 0,
		void_count INTEGER NOT NULL DEFAULT 0,
		refund_count INTEGER NOT NULL DEFAULT 0,
		safe_drop_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		safe_loan_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		opening_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		closing_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, business_date)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		public_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		pos_transaction_id TEXT NOT NULL,
		terminal_id TEXT NOT NULL DEFAULT '',
		cashier_code TEXT NOT NULL DEFAULT '',
		shift_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT 'Sale',
		business_date TIMESTAMP NOT NULL,
		tx_timestamp TIMESTAMP NOT NULL,
		net_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		tax_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		discount_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		grand_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		item_count INTEGER NOT NULL DEFAULT 0,
		is_training_mode BOOLEAN NOT NULL DEFAULT FALSE,
		is_outside_sale BOOLEAN NOT NULL DEFAULT FALSE,
		is_offline BOOLEAN NOT NULL DEFAULT FALSE,
		is_suspended BOOLEAN NOT NULL DEFAULT FALSE,
		linked_transaction_id TEXT NOT NULL DEFAULT '',
		link_reason TEXT NOT NULL DEFAULT '',
		source_file_hash TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (store_id, source_file_hash, pos_transaction_id)
	)`,
	`CREATE TABLE IF NOT EXISTS line_items (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		line_number INTEGER NOT NULL DEFAULT 0,
		item_code TEXT NOT NULL DEFAULT '',
		item_type TEXT NOT NULL DEFAULT 'MERCHANDISE',
		description TEXT NOT NULL DEFAULT '',
		department_code TEXT NOT NULL DEFAULT '',
		quantity DOUBLE PRECISION NOT NULL DEFAULT 1,
		unit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		extended_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		tax_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		discount_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_void BOOLEAN NOT NULL DEFAULT FALSE,
		is_refund BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		tender_code TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		reference TEXT NOT NULL DEFAULT '',
		card_type TEXT NOT NULL DEFAULT '',
		card_last4 TEXT NOT NULL DEFAULT '',
		change_given DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'staff'
	)`,
	`CREATE TABLE IF NOT EXISTS sync_logs (
		id TEXT PRIMARY KEY,
		integration_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		status TEXT NOT NULL,
		categories TEXT NOT NULL DEFAULT '{}',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_logs_store_status ON file_logs (store_id, status)`,
	// Redelivered content gets its own SKIPPED row per filename, so the
	// hash is only unique across rows that actually processed.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_file_logs_store_hash ON file_logs (store_id, file_hash)
		WHERE status <> 'SKIPPED'`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_store_date ON transactions (store_id, business_date)`,
	`CREATE INDEX IF NOT EXISTS idx_meter_readings_position ON meter_readings (store_id, position_id, product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_retention ON audit_records (retention_expires_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
