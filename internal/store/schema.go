// Package store is the SQLite-backed system of record for contacts, their
// directed links, and the outbox that drives search-vector maintenance.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/dossier/internal/searchvec"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const driverName = "sqlite3_dossier"

// The driver registers the engine-side text-search primitives:
//
//	vector_rank(vector, query) REAL  -- 0 when query does not match vector
//	fold(text) TEXT                  -- unicode-aware lower-casing
func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("vector_rank", searchvec.Rank, true); err != nil {
				return err
			}
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// DB wraps a sql.DB with contact-specific operations.
//
// Writes go through conn, whose transactions take the write lock up front.
// read opens deferred transactions, which in WAL mode pin one snapshot for
// every statement they run without blocking writers.
type DB struct {
	conn *sql.DB
	read *sql.DB
	now  func() time.Time
}

// Option tunes Open.
type Option func(*openOptions)

type openOptions struct {
	busyTimeout time.Duration
}

// WithBusyTimeout sets how long a write waits on the database lock before
// failing with a storage-unavailable error.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *openOptions) {
		o.busyTimeout = d
	}
}

func defaultOptions() openOptions {
	return openOptions{busyTimeout: 5 * time.Second}
}

func dsn(path string, o openOptions) string {
	return dsnWithLock(path, o, "immediate")
}

func dsnWithLock(path string, o openOptions, txlock string) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=%s&_loc=UTC",
		path, o.busyTimeout.Milliseconds(), txlock)
}

// Open opens (or creates) the SQLite database and applies pending migrations.
func Open(path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := migrateUp(dsn(path, o)); err != nil {
		return nil, err
	}

	conn, err := sql.Open(driverName, dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}

	read, err := sql.Open(driverName, dsnWithLock(path, o, "deferred"))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: open read pool: %w", err)
	}
	return newDB(conn, read), nil
}

func newDB(conn, read *sql.DB) *DB {
	return &DB{
		conn: conn,
		read: read,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// Close closes both connection pools.
func (db *DB) Close() error {
	return errors.Join(db.read.Close(), db.conn.Close())
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return classify("ping", db.conn.PingContext(ctx))
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a write transaction and classifies any failure.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(op+": begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op+": commit", err)
	}
	return nil
}
