package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mcclellann/lotledger/pkg/models"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	// rows per multi-row INSERT, well below SQLite's bound-variable limit
	insertBatchSize = 500
)

// dialect captures the few differences between the supported SQL backends.
type dialect struct {
	driver     string
	numbered   bool   // $1, $2 placeholders instead of ?
	lockClause string // appended to row reads that must block concurrent writers
}

var dialects = map[string]dialect{
	DriverSQLite:   {driver: DriverSQLite},
	DriverPostgres: {driver: DriverPostgres, numbered: true, lockClause: " FOR UPDATE"},
}

// rebind rewrites ? placeholders for backends that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlRepo implements Repository over a connection or a transaction.
type sqlRepo struct {
	q queryer
	d dialect
}

func (r *sqlRepo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.d.rebind(query), args...)
}

func (r *sqlRepo) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.rebind(query), args...)
}

func (r *sqlRepo) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.rebind(query), args...)
}

// SQLStore manages the database connection and operations for SQLite or PostgreSQL.
type SQLStore struct {
	*sqlRepo
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database file.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return NewSQLStore(DriverSQLite, path)
}

// NewSQLStore opens a database with the given driver and initializes the schema.
func NewSQLStore(driver, dataSourceName string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if driver == DriverSQLite {
		dataSourceName = sqliteDSN(dataSourceName)
	}

	db, err := sql.Open(d.driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &SQLStore{sqlRepo: &sqlRepo{q: db, d: d}, db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// sqliteDSN adds the per-connection settings: foreign keys, a busy timeout, and
// BEGIN IMMEDIATE so that a transaction takes the write lock up front.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

// initSchema creates the tables if they don't already exist.
// Money is stored as TEXT so no precision is lost on either backend.
func (s *SQLStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		block TEXT NOT NULL,
		number TEXT NOT NULL,
		dimensions TEXT NOT NULL,
		cash_price TEXT NOT NULL,
		status TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		parish TEXT NOT NULL DEFAULT '',
		province TEXT NOT NULL DEFAULT '',
		canton TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		national_id TEXT NOT NULL,
		first_names TEXT NOT NULL,
		last_names TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		seller TEXT NOT NULL,
		registered_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		lot_id TEXT NOT NULL REFERENCES lots(id),
		contract_date DATE NOT NULL,
		cancellation_date DATE,
		final_price TEXT NOT NULL,
		down_payment TEXT NOT NULL,
		financed_balance TEXT NOT NULL,
		term INTEGER NOT NULL,
		state TEXT NOT NULL,
		in_delinquency BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		due_date DATE NOT NULL,
		principal TEXT NOT NULL,
		penalty TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		penalty_exempt BOOLEAN NOT NULL DEFAULT FALSE,
		last_payment_on DATE,
		UNIQUE (contract_id, sequence)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		amount TEXT NOT NULL,
		paid_on DATE NOT NULL,
		method TEXT NOT NULL,
		bank_name TEXT,
		bank_account TEXT,
		evidence_ref TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payment_allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		installment_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		amount TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS delinquency_policies (
		id INTEGER PRIMARY KEY,
		mode TEXT NOT NULL,
		mild_days INTEGER NOT NULL,
		mild_amount TEXT NOT NULL,
		moderate_days INTEGER NOT NULL,
		moderate_amount TEXT NOT NULL,
		severe_days INTEGER NOT NULL,
		severe_amount TEXT NOT NULL,
		percentage TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_contract ON payments (contract_id, paid_on);
	CREATE INDEX IF NOT EXISTS idx_payments_paid_on ON payments (paid_on);
	CREATE INDEX IF NOT EXISTS idx_allocations_payment ON payment_allocations (payment_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside a database transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlRepo{q: tx, d: s.d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReplaceInstallments runs the delete and the inserts in one transaction when called
// outside WithTx, so a failure never leaves a partial schedule behind.
func (s *SQLStore) ReplaceInstallments(ctx context.Context, contractID uuid.UUID, installments []models.Installment) error {
	return s.WithTx(ctx, func(repo Repository) error {
		return repo.ReplaceInstallments(ctx, contractID, installments)
	})
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
