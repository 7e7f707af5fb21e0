/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the ledger, scheduling and members stores on one SQLite
  database. Each domain gets its own store value (Ledger(), Scheduling(),
  Members()) because each domain's WithTx hands a differently typed view to
  its callback.

INTERFACES IMPLEMENTED:
  ledger.TxStore, ledger.Aggregator: departments, transactions, transfers
  scheduling.TxStore:                professionals, appointments
  members.Store:                     members

KEY TABLES:
  departments:          Cash boxes with materialized current_balance
  ledger_transactions:  Deposits, withdrawals and transfer legs
  transfers:            Transfer headers, one per pair of legs
  professionals:        Working-hours template as JSON
  appointments:         Booked intervals [start_at, end_at)
  members:              Patients

CONCURRENCY:
  Every transaction is opened with BEGIN IMMEDIATE (_txlock=immediate), so
  the write lock is taken before the first read: two WithTx calls touching
  the same department serialize instead of losing an update. Waiting
  writers retry inside SQLite for _busy_timeout milliseconds; after that the
  error surfaces as generic.ErrConcurrentModification.

ENCODING:
  Timestamps are stored as fixed-width UTC text so string order is time
  order. Amounts are stored as decimal text and summed in Go.

USAGE:
  db, err := sqlite.New("./data/gestao.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  svc := ledger.NewService(db.Ledger())

SEE ALSO:
  - ledger/store.go, scheduling/store.go, members/members.go: Interfaces
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ministerio/gestao-engine/generic"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB owns the connection pool shared by the per-domain stores.
type DB struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite database with the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) Ledger() *LedgerStore {
	return &LedgerStore{ledgerQueries: ledgerQueries{q: s.db}, db: s.db}
}

func (s *DB) Scheduling() *SchedulingStore {
	return &SchedulingStore{schedulingQueries: schedulingQueries{q: s.db}, db: s.db}
}

func (s *DB) Members() *MembersStore {
	return &MembersStore{q: s.db}
}

// migrate creates the database schema.
func (s *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		initial_balance TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_department_id TEXT NOT NULL REFERENCES departments(id),
		to_department_id TEXT NOT NULL REFERENCES departments(id),
		amount TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		date TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_by TEXT,
		approved_by TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (from_department_id <> to_department_id)
	);

	CREATE TABLE IF NOT EXISTS ledger_transactions (
		id TEXT PRIMARY KEY,
		department_id TEXT NOT NULL REFERENCES departments(id),
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		category TEXT,
		status TEXT NOT NULL,
		date TEXT NOT NULL,
		reference TEXT NOT NULL,
		transfer_id TEXT REFERENCES transfers(id),
		created_by TEXT,
		approved_by TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Monthly balance and listing (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_department_date
		ON ledger_transactions(department_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_transfer
		ON ledger_transactions(transfer_id) WHERE transfer_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_ledger_transactions_status_type
		ON ledger_transactions(status, type);

	CREATE TABLE IF NOT EXISTS professionals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		specialty TEXT NOT NULL,
		consultation_duration_minutes INTEGER NOT NULL,
		working_hours_json TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		booking_code TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		professional_id TEXT NOT NULL REFERENCES professionals(id),
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		status TEXT NOT NULL,
		modality TEXT NOT NULL,
		priority TEXT NOT NULL,
		reason TEXT,
		rescheduled_to TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Availability lookups
	CREATE INDEX IF NOT EXISTS idx_appointments_professional_start
		ON appointments(professional_id, start_at);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		birth_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *DB) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"ledger_transactions", "transfers", "departments", "appointments", "professionals", "members"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// beginTx opens an immediate transaction, mapping lock timeouts to
// generic.ErrConcurrentModification.
func beginTx(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	return tx, nil
}

// classify marks SQLite lock contention as retryable.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// timeParser parses a row's time columns and keeps the first error.
type timeParser struct {
	err error
}

func (p *timeParser) parse(s string) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	t, err := parseTime(s)
	p.err = err
	return t
}

func (p *timeParser) parseNull(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := p.parse(ns.String)
	if p.err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return d, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
