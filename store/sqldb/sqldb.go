/*
Package sqldb provides the SQL-backed implementation of stock.Store.

PURPOSE:
  Implements the allocation core's unit of work (stock.Tx) on top of sqlx.
  Two dialects are supported: sqlite3 for development and tests, MySQL for
  production. The queries are shared; only row locking and a couple of
  scalar functions differ.

KEY TABLES:
  compras_stock:    purchase lots (FIFO source)
  asignaciones:     allocations, with name snapshots
  asignacion_lotes: per-lot consumption entries (append-only)
  reservas:         commercial reservations against nominal stock
  pre_reservas:     supplier-agnostic demand
  productos:        catalog, nominal stock (cantidad) and ordered total (pedido)
  auditoria:        one row per committed write

APPEND-ONLY ENFORCEMENT:
  asignacion_lotes is never updated or deleted. Allocation reversal appends
  negative entries. Lots are never deleted.

CONCURRENCY:
  MySQL: SELECT ... FOR UPDATE row locks taken by the Tx methods that
  accept lock=true.
  sqlite3: a store-wide sync.RWMutex serializes writers, which is stronger
  than row locks and gives the same guarantees. The mutex is not taken for
  MySQL, where transactions on disjoint (product, supplier) pairs proceed
  in parallel.

USAGE:
  store, err := sqldb.New("sqlite3", ":memory:")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  alloc := stock.NewAllocator(store, logger)

MIGRATION:
  Schema is auto-migrated on New() for both dialects with CREATE TABLE IF
  NOT EXISTS.

SEE ALSO:
  - stock/store.go: interface definitions
  - schema.go: table definitions per dialect
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/chipiona/stock-engine/stock"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// dialect captures the few SQL differences between the two drivers.
type dialect struct {
	name       string
	lockSuffix string // appended to SELECTs that lock rows
	greatest   string // two-argument max function
}

var dialects = map[string]dialect{
	DriverSQLite: {name: DriverSQLite, lockSuffix: "", greatest: "MAX"},
	DriverMySQL:  {name: DriverMySQL, lockSuffix: " FOR UPDATE", greatest: "GREATEST"},
}

// Store implements stock.Store.
type Store struct {
	db    *sqlx.DB
	d     dialect
	mu    sync.RWMutex
	clock func() time.Time
}

var _ stock.Store = (*Store)(nil)

// New opens the database and migrates the schema. For sqlite, use
// ":memory:" for an in-memory database.
func New(driver, dsn string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection: ":memory:" databases are per-connection, and
		// writers are serialized by the store anyway.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, d: d, clock: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func sqliteDSN(dsn string) string {
	params := "_foreign_keys=on&_journal_mode=WAL"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Driver returns the dialect name.
func (s *Store) Driver() string { return s.d.name }

// SetClock overrides the time source used for created_at columns.
func (s *Store) SetClock(now func() time.Time) { s.clock = now }

func (s *Store) migrate() error {
	for _, stmt := range schemaFor(s.d.name) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: %s", err, firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// =============================================================================
// TRANSACTIONAL STORE (stock.Store interface)
// =============================================================================

// serialized reports whether writers go through the store mutex. Only
// sqlite needs it; MySQL relies on FOR UPDATE row locks so transactions
// on disjoint rows run in parallel.
func (s *Store) serialized() bool { return s.d.name == DriverSQLite }

func (s *Store) lockWrite() (unlock func()) {
	if !s.serialized() {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) lockRead() (unlock func()) {
	if !s.serialized() {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(stock.Tx) error) error {
	defer s.lockWrite()()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txRepo{tx: sqlTx, d: s.d, locking: true, now: s.clock}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Read executes fn in a read-only transaction. Lock flags are ignored.
func (s *Store) Read(ctx context.Context, fn func(stock.Tx) error) error {
	defer s.lockRead()()

	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read: %w", err)
	}
	defer sqlTx.Rollback()

	return fn(&txRepo{tx: sqlTx, d: s.d, locking: false, now: s.clock})
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	defer s.lockWrite()()

	// Children first so foreign keys never block the delete.
	tables := []string{
		"auditoria", "asignacion_lotes", "asignaciones", "reservas", "pre_reservas",
		"compras_stock", "productos", "tipos_producto", "proveedores", "delegaciones", "comerciales",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TX REPOSITORY (stock.Tx interface)
// =============================================================================

type txRepo struct {
	tx      *sqlx.Tx
	d       dialect
	locking bool
	now     func() time.Time
}

var _ stock.Tx = (*txRepo)(nil)

func (r *txRepo) lock(lock bool) string {
	if lock && r.locking {
		return r.d.lockSuffix
	}
	return ""
}

func (r *txRepo) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// get runs a single-row query, mapping sql.ErrNoRows to found=false.
func (r *txRepo) get(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := r.tx.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *txRepo) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// exec runs a statement that must touch at least one row.
func (r *txRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseWeek(s string) stock.Week {
	w, _ := stock.ParseWeek(s)
	return w
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
