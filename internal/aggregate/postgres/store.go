// Package postgres implements an aggregate.Store on PostgreSQL using pgx v5.
// Each Update runs in a transaction that first takes a transaction-scoped
// advisory lock derived from the key, which serializes writers even before
// the key's row exists.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"zerobyte/internal/aggregate"
)

const table = "zerobyte_aggregates"

// schemaLockID guards concurrent CREATE TABLE IF NOT EXISTS, which is not
// race free in PostgreSQL.
var schemaLockID = LockID("zerobyte:schema")

const (
	createSQL = `CREATE TABLE IF NOT EXISTS ` + table + ` (
		path            TEXT PRIMARY KEY,
		active_workers  BIGINT NOT NULL DEFAULT 0,
		total_zero_bits BIGINT NOT NULL DEFAULT 0,
		generation      BIGINT NOT NULL DEFAULT 0,
		state           TEXT NOT NULL DEFAULT ''
	)`
	selectSQL = `SELECT active_workers, total_zero_bits, generation, state FROM ` + table + ` WHERE path = $1`
	upsertSQL = `INSERT INTO ` + table + ` (path, active_workers, total_zero_bits, generation, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path) DO UPDATE SET
			active_workers = EXCLUDED.active_workers,
			total_zero_bits = EXCLUDED.total_zero_bits,
			generation = EXCLUDED.generation,
			state = EXCLUDED.state`
	lockSQL = `SELECT pg_advisory_xact_lock($1)`
)

// Config holds Postgres store configuration.
type Config struct {
	DSN    string // connection string for pgxpool
	Logger zerolog.Logger
}

// Store is a Postgres-backed aggregate.Store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// LockID maps a key to the 64-bit advisory lock id used for it.
func LockID(key string) int64 { return int64(xxh3.HashString(key)) }

// NewStore connects, creates the table if needed and returns a Close
// function for cleanup.
func NewStore(ctx context.Context, cfg Config) (*Store, func(), error) {
	if cfg.DSN == "" {
		return nil, nil, errors.New("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	s := &Store{pool: pool, log: cfg.Logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	s.log.Debug().Str("store", "postgres").Msg("aggregate store ready")
	return s, func() { pool.Close() }, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockSQL, schemaLockID); err != nil {
			return fmt.Errorf("postgres: schema lock: %w", err)
		}
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return fmt.Errorf("postgres: create table: %w", err)
		}
		return nil
	})
}

func scanRecord(row pgx.Row) (aggregate.Record, error) {
	var r aggregate.Row
	if err := row.Scan(&r.ActiveWorkers, &r.TotalZeroBits, &r.Generation, &r.State); err != nil {
		return aggregate.Record{}, err
	}
	return aggregate.DecodeRow(r)
}

// Get implements aggregate.Store.
func (s *Store) Get(ctx context.Context, key string) (aggregate.Record, bool, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectSQL, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return aggregate.Record{}, false, nil
	}
	if err != nil {
		return aggregate.Record{}, false, fmt.Errorf("postgres: get: %w", err)
	}
	return rec, true, nil
}

// Put implements aggregate.Store.
func (s *Store) Put(ctx context.Context, key string, rec aggregate.Record) error {
	_, err := s.Update(ctx, key, func(r *aggregate.Record) error {
		*r = rec
		return nil
	})
	return err
}

// Update implements aggregate.Store.
func (s *Store) Update(ctx context.Context, key string, fn func(*aggregate.Record) error) (aggregate.Record, error) {
	var out aggregate.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockSQL, LockID(key)); err != nil {
			return fmt.Errorf("postgres: advisory lock: %w", err)
		}
		rec, err := scanRecord(tx.QueryRow(ctx, selectSQL, key))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: select: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
		row, err := aggregate.EncodeRow(rec)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertSQL,
			key, row.ActiveWorkers, row.TotalZeroBits, row.Generation, row.State); err != nil {
			return fmt.Errorf("postgres: upsert: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return aggregate.Record{}, err
	}
	return out, nil
}
