package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storagebooking/internal/clock"
	"storagebooking/internal/domain"
	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrConcurrentModification = errs.Mark(errs.New("concurrent modification"), errs.ErrConflict)
	ErrMaxRetriesExceeded     = errs.Mark(errs.New("transaction retries exhausted"), errs.ErrRetryable)
)

// DB is the sqlite store. A single connection serializes writers, which makes
// the availability re-check inside RunInTx authoritative.
type DB struct {
	*sql.DB
	queries

	logger     *zerolog.Logger
	maxRetries int
	retryDelay time.Duration

	mu         sync.RWMutex
	rulesCache []models.PricingRule
}

type Option func(*options)

type options struct {
	busyTimeoutMs int
	maxRetries    int
	retryDelay    time.Duration
	clock         clock.Clock
}

func WithBusyTimeout(ms int) Option {
	return func(o *options) { o.busyTimeoutMs = ms }
}

func WithMaxTxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { o.retryDelay = d }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{busyTimeoutMs: 5000, maxRetries: 3, retryDelay: 20 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path, o.busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")

	return &DB{
		DB:         sqlDB,
		queries:    queries{q: sqlDB, clock: o.clock},
		logger:     logger,
		maxRetries: o.maxRetries,
		retryDelay: o.retryDelay,
	}, nil
}

func dsn(path string, busyTimeoutMs int) string {
	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", busyTimeoutMs)
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	return "file:" + path + "?" + params + "&_journal_mode=WAL"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS units (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            location_id INTEGER NOT NULL,
            city TEXT NOT NULL DEFAULT '',
            unit_number TEXT NOT NULL,
            size TEXT NOT NULL,
            price_per_hour TEXT NOT NULL,
            price_per_day TEXT NOT NULL,
            price_per_month TEXT NOT NULL DEFAULT '0',
            currency TEXT NOT NULL DEFAULT 'USD',
            status TEXT NOT NULL DEFAULT 'AVAILABLE',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            UNIQUE (location_id, unit_number)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_number TEXT NOT NULL UNIQUE,
            user_id INTEGER NOT NULL,
            unit_id INTEGER NOT NULL REFERENCES units(id),
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            status TEXT NOT NULL,
            total_price TEXT NOT NULL,
            currency TEXT NOT NULL,
            access_code TEXT NOT NULL,
            check_in_time DATETIME,
            check_out_time DATETIME,
            cancellation_reason TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (end_time > start_time)
        )`,
		`CREATE TABLE IF NOT EXISTS pricing_rules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            rule_type TEXT NOT NULL,
            conditions TEXT NOT NULL DEFAULT '{}',
            multiplier TEXT NOT NULL,
            priority INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            valid_from DATETIME,
            valid_until DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            user_id INTEGER NOT NULL,
            payment_intent_id TEXT UNIQUE,
            kind TEXT NOT NULL,
            amount TEXT NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            gateway_ref TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS loyalty_accounts (
            user_id INTEGER PRIMARY KEY,
            points INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS loyalty_ledger (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            booking_id INTEGER NOT NULL UNIQUE,
            points INTEGER NOT NULL,
            reason TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS outbox (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            aggregate_id INTEGER NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_unit_status ON bookings(unit_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_start_time ON bookings(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_access_code ON bookings(access_code)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_booking_id ON payment_transactions(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	if i := strings.IndexByte(q, '\n'); i > 0 {
		return q[:i]
	}
	return q
}

// Tx wraps a sql.Tx with the shared query set.
type Tx struct {
	tx *sql.Tx
	queries
}

var _ domain.Tx = (*Tx)(nil)
var _ domain.Store = (*DB)(nil)

// RunInTx runs fn in one transaction. Busy/locked failures roll back and retry
// with linear backoff; any other error from fn is returned as-is.
func (db *DB) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	attempts := db.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = db.runOnce(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !errs.Is(lastErr, errs.ErrRetryable) {
			return lastErr
		}

		db.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("transaction busy, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * db.retryDelay):
		}
	}
	return errs.Wrapf(ErrMaxRetriesExceeded, "after %d attempts: %v", attempts, lastErr)
}

func (db *DB) runOnce(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{tx: sqlTx, queries: queries{q: sqlTx, clock: db.clock}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return classify(err, "commit transaction")
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// classify marks driver errors with the error kind the caller maps to transport status.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errs.Mark(errs.Wrap(err, msg), errs.ErrNotFound)
	}
	var sqliteErr sqlite3.Error
	if errs.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return errs.Mark(errs.Wrap(err, msg), errs.ErrConflict)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return errs.Mark(errs.Wrap(err, msg), errs.ErrRetryable)
		}
	}
	return errs.Wrap(err, msg)
}
