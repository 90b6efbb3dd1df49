// Package sqlstore implements aggregate.Store on top of database/sql. The
// SQLite, MySQL and SQL Server backends share it and differ only in their
// Dialect.
//
// Update runs in a transaction. Before the transaction starts, a row for the
// key is created if missing, so the locking read inside the transaction
// always finds a row to lock and two first-time writers cannot both insert.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zerobyte/internal/aggregate"
)

// Table is the table every dialect stores records in.
const Table = "zerobyte_aggregates"

// Dialect holds the backend-specific SQL. Statements take the key as their
// only parameter unless noted.
type Dialect struct {
	Name string

	// Schema statements run once on open; they must be idempotent.
	Schema []string

	// Ensure inserts an empty row for the key if none exists.
	Ensure string

	// Select reads active_workers, total_zero_bits, generation, state.
	Select string

	// SelectForUpdate is Select with whatever hint makes the read hold a
	// write lock until commit. Backends whose transactions already take a
	// write lock up front can reuse Select.
	SelectForUpdate string

	// Write sets active_workers, total_zero_bits, generation, state (in that
	// order) and takes the key as its fifth parameter.
	Write string

	// TxOptions are passed to BeginTx.
	TxOptions *sql.TxOptions
}

// Store is an aggregate.Store backed by a *sql.DB.
type Store struct {
	db  *sql.DB
	d   Dialect
	log zerolog.Logger
}

var _ aggregate.Store = (*Store)(nil)

// New pings db and applies the dialect schema.
func New(ctx context.Context, db *sql.DB, d Dialect, log zerolog.Logger) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: schema: %w", d.Name, err)
		}
	}
	log.Debug().Str("store", d.Name).Msg("aggregate store ready")
	return &Store{db: db, d: d, log: log}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func scanRecord(row *sql.Row) (aggregate.Record, error) {
	var r aggregate.Row
	var st sql.NullString
	if err := row.Scan(&r.ActiveWorkers, &r.TotalZeroBits, &r.Generation, &st); err != nil {
		return aggregate.Record{}, err
	}
	r.State = st.String
	return aggregate.DecodeRow(r)
}

// Get implements aggregate.Store.
func (s *Store) Get(ctx context.Context, key string) (aggregate.Record, bool, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.d.Select, key))
	if errors.Is(err, sql.ErrNoRows) {
		return aggregate.Record{}, false, nil
	}
	if err != nil {
		return aggregate.Record{}, false, fmt.Errorf("%s: get: %w", s.d.Name, err)
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
	if _, err := s.db.ExecContext(ctx, s.d.Ensure, key); err != nil {
		return aggregate.Record{}, fmt.Errorf("%s: ensure row: %w", s.d.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, s.d.TxOptions)
	if err != nil {
		return aggregate.Record{}, fmt.Errorf("%s: begin tx: %w", s.d.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, s.d.SelectForUpdate, key))
	if err != nil {
		return aggregate.Record{}, fmt.Errorf("%s: select for update: %w", s.d.Name, err)
	}
	if err := fn(&rec); err != nil {
		return aggregate.Record{}, err
	}
	row, err := aggregate.EncodeRow(rec)
	if err != nil {
		return aggregate.Record{}, err
	}
	if _, err := tx.ExecContext(ctx, s.d.Write,
		row.ActiveWorkers, row.TotalZeroBits, row.Generation, row.State, key); err != nil {
		return aggregate.Record{}, fmt.Errorf("%s: write: %w", s.d.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return aggregate.Record{}, fmt.Errorf("%s: commit: %w", s.d.Name, err)
	}
	return rec, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
