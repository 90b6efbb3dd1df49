// Package mysql provides a MySQL-backed aggregate.Store. Updates lock the
// key's row with SELECT ... FOR UPDATE inside an InnoDB transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"zerobyte/internal/aggregate/sqlstore"
)

// Config holds MySQL store configuration.
type Config struct {
	DSN    string // go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/db"
	Logger zerolog.Logger
}

// Store is a MySQL-backed aggregate.Store.
type Store struct {
	*sqlstore.Store
}

// Dialect is the MySQL SQL set. Paths are limited to 768 characters, the
// widest utf8mb4 primary key InnoDB accepts.
var Dialect = sqlstore.Dialect{
	Name: "mysql",
	Schema: []string{
		"CREATE TABLE IF NOT EXISTS " + sqlstore.Table + ` (
			path            VARCHAR(768) NOT NULL PRIMARY KEY,
			active_workers  BIGINT NOT NULL DEFAULT 0,
			total_zero_bits BIGINT NOT NULL DEFAULT 0,
			generation      BIGINT NOT NULL DEFAULT 0,
			state           LONGTEXT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	Ensure:          "INSERT IGNORE INTO " + sqlstore.Table + " (path) VALUES (?)",
	Select:          "SELECT active_workers, total_zero_bits, generation, state FROM " + sqlstore.Table + " WHERE path = ?",
	SelectForUpdate: "SELECT active_workers, total_zero_bits, generation, state FROM " + sqlstore.Table + " WHERE path = ? FOR UPDATE",
	Write:           "UPDATE " + sqlstore.Table + " SET active_workers = ?, total_zero_bits = ?, generation = ?, state = ? WHERE path = ?",
}

// NewStore parses the DSN, connects and ensures the table exists. It
// returns a Close function for cleanup.
func NewStore(ctx context.Context, cfg Config) (*Store, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	s, err := sqlstore.New(ctx, db, Dialect, cfg.Logger.With().Str("addr", mc.Addr).Str("db", mc.DBName).Logger())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &Store{Store: s}, func() { _ = db.Close() }, nil
}
