// Package store is the operational relational store for the ingestion
// core. It speaks database/sql directly, runs against the embedded
// sqlite driver in development and tests and against postgres in
// production, and keeps every query tenant-scoped: no statement touches
// rows without a store_id (and company_id where the entity is
// company-scoped) predicate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repository methods that must run inside a projection transaction take
// it explicitly.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the database handle together with its driver dialect.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects and applies migrations. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if driver == "sqlite" {
		// Cooperative per-store workers share the pool; sqlite wants a
		// single writer.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a private in-memory sqlite store, for tests and the
// initial-import dry-run mode. Every call gets its own database.
func OpenMemory() (*Store, error) {
	return Open("sqlite", fmt.Sprintf("file:mem-%s?mode=memory&cache=shared", uuid.NewString()))
}

// New wraps an existing handle without running migrations. Callers that
// manage their own pool (or mock it) use this.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB exposes the raw handle for callers that manage their own queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside one database transaction. Each source file gets
// exactly one of these; failure of one never rolls back another.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// q rewrites ?-placeholders into the driver's dialect. Queries are
// written once with ? and rebound for postgres.
func (s *Store) q(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func scanNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}

func scanNullStr(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
