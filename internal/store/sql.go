package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sqliteBusyCode = 5
)

// Options selects and tunes the SQL backend.
type Options struct {
	Driver string // DriverSQLite or DriverPostgres
	DSN    string
	Logger *slog.Logger

	// ConnectAttempts bounds the initial ping loop, for databases that
	// start alongside the server.
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// SQL is a Store backed by database/sql.
type SQL struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects, waits for the database to answer, and creates the schema on
// first use.
func Open(ctx context.Context, opts Options) (*SQL, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.Driver != DriverSQLite && opts.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 5
	}
	if opts.ConnectDelay == 0 {
		opts.ConnectDelay = 500 * time.Millisecond
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", opts.Driver, err)
	}
	if opts.Driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(opts.ConnectAttempts),
		retry.Delay(opts.ConnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			opts.Logger.Warn("store not reachable, retrying", "driver", opts.Driver, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s db: %w", opts.Driver, err)
	}

	s := &SQL{db: db, driver: opts.Driver, logger: opts.Logger}
	if opts.Driver == DriverSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
			}
		}
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQL) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.createSchema(ctx)
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQL) createSchema(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_version (version) VALUES (?)"), schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQL) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withTx runs fn in a transaction, retrying the whole transaction while
// SQLite reports the database busy.
func (s *SQL) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(
		func() error {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback() }()
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit()
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(10*time.Millisecond),
		retry.MaxDelay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isSQLiteBusy),
		retry.LastErrorOnly(true),
	)
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(query), args...)
		return err
	})
}
