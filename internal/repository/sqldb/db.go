// Package sqldb implements the repositories on top of a SQL database. The same
// queries run on PostgreSQL (lib/pq or pgx) and SQLite (modernc), written with
// ? placeholders and rebound for the active driver.
package sqldb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
)

//go:embed schema.sql
var schema string

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type DB struct {
	*sqlx.DB
	sem    *semaphore.Weighted
	driver string
}

// Open connects to the configured database and bounds concurrent operations.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	dsn := cfg.ConnString()
	if cfg.Driver == "sqlite" && !strings.Contains(dsn, "_time_format") {
		dsn += sep(dsn) + "_time_format=sqlite"
	}

	db, err := sqlx.Connect(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// single writer; also keeps :memory: databases on one connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return Wrap(db, cfg.Driver, cfg.MaxConcurrentOps), nil
}

func sep(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

// Wrap adopts an existing connection pool.
func Wrap(db *sqlx.DB, driver string, maxConcurrent int64) *DB {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &DB{DB: db, sem: semaphore.NewWeighted(maxConcurrent), driver: driver}
}

// Driver returns the database/sql driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info().Str("driver", db.driver).Msg("database schema is up to date")
	return nil
}

// NewStore returns every repository backed by db.
func NewStore(db *DB) *repository.Store {
	return &repository.Store{
		Rules:          NewRuleRepository(db),
		PurchaseOrders: NewPurchaseOrderRepository(db),
		Demand:         NewDemandRepository(db),
		Stock:          NewStockRepository(db),
		Catalog:        NewCatalogRepository(db),
	}
}

func (db *DB) acquire(ctx context.Context) (func(), error) {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("could not acquire semaphore: %w", err)
	}
	return func() { db.sem.Release(1) }, nil
}

// WithTx executes fn within a transaction.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	release, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}

	return nil
}

// get and selectAll run a single rebound read under the semaphore.
func (db *DB) get(ctx context.Context, dest any, query string, args ...any) error {
	release, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return db.GetContext(ctx, dest, db.Rebind(query), args...)
}

func (db *DB) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	release, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return db.SelectContext(ctx, dest, db.Rebind(query), args...)
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	release, err := db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return db.ExecContext(ctx, db.Rebind(query), args...)
}

// classify maps driver errors onto the domain sentinels. Missing rows become
// ErrNotFound, constraint violations ErrInvalidInput, cancellations pass
// through and everything else is treated as a transient backing store failure
// carrying a stack trace.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case constraintViolation(err):
		return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidInput, err.Error())
	default:
		return domain.Transient(op, errors.WithStack(err))
	}
}

// constraintViolation reports integrity constraint failures: SQLSTATE class
// 23 on PostgreSQL and SQLITE_CONSTRAINT with any extended code on SQLite.
func constraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// in expands a list argument. sqlx.In keeps ? placeholders, Rebind runs later.
func in(query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand query: %w", err)
	}
	return q, a, nil
}
