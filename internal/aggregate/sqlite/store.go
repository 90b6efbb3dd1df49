// Package sqlite implements the default aggregate store: a SQLite database
// file that every instance on the host opens. Transactions begin with
// BEGIN IMMEDIATE so the write lock is taken before the record is read, and
// busy_timeout makes concurrent writers queue instead of failing.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"zerobyte/internal/aggregate/sqlstore"
)

// DefaultFile is the database file name used in os.TempDir() when no DSN is
// configured.
const DefaultFile = "zerobyte-aggregates.db"

// Config holds SQLite store configuration.
type Config struct {
	// DSN is a file path or a file: URI. Empty selects DefaultPath().
	DSN    string
	Logger zerolog.Logger
}

// Store is a SQLite-backed aggregate.Store.
type Store struct {
	*sqlstore.Store
}

// Dialect is the SQLite SQL set.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS ` + sqlstore.Table + ` (
			path            TEXT PRIMARY KEY,
			active_workers  INTEGER NOT NULL DEFAULT 0,
			total_zero_bits INTEGER NOT NULL DEFAULT 0,
			generation      INTEGER NOT NULL DEFAULT 0,
			state           TEXT NOT NULL DEFAULT ''
		)`,
	},
	Ensure:          `INSERT OR IGNORE INTO ` + sqlstore.Table + ` (path) VALUES (?)`,
	Select:          `SELECT active_workers, total_zero_bits, generation, state FROM ` + sqlstore.Table + ` WHERE path = ?`,
	SelectForUpdate: `SELECT active_workers, total_zero_bits, generation, state FROM ` + sqlstore.Table + ` WHERE path = ?`,
	Write:           `UPDATE ` + sqlstore.Table + ` SET active_workers = ?, total_zero_bits = ?, generation = ?, state = ? WHERE path = ?`,
}

// DefaultPath returns the store location used when no DSN is given.
func DefaultPath() string { return filepath.Join(os.TempDir(), DefaultFile) }

// BuildDSN turns a path or URI into a driver DSN with the pragmas the store
// relies on. Parameters already present in dsn are left alone.
func BuildDSN(dsn string) string {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultPath()
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	params := []struct{ marker, kv string }{
		{"_txlock", "_txlock=immediate"},
		{"busy_timeout", "_pragma=busy_timeout(10000)"},
		{"journal_mode", "_pragma=journal_mode(WAL)"},
	}
	for _, p := range params {
		if strings.Contains(dsn, p.marker) {
			continue
		}
		sep := "&"
		if !strings.Contains(dsn, "?") {
			sep = "?"
		}
		dsn += sep + p.kv
	}
	return dsn
}

// NewStore opens the database and ensures the table exists. It returns the
// store plus a close function for cleanup.
func NewStore(ctx context.Context, cfg Config) (*Store, func(), error) {
	dsn := BuildDSN(cfg.DSN)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	s, err := sqlstore.New(ctx, db, Dialect, cfg.Logger.With().Str("dsn", dsn).Logger())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	closeFn := func() { _ = db.Close() }
	return &Store{Store: s}, closeFn, nil
}
