package mssql

import (
	"context"

	"zerobyte/internal/aggregate"
)

// newStore is a test hook that points to NewStore by default.
// Tests may replace this variable to avoid real DB connections.
var newStore = NewStore

// wrappedStore adapts *Store to aggregate.Store, adding a Close method that
// calls the cleanup function returned by NewStore.
type wrappedStore struct {
	*Store
	closeFn func()
}

// Close implements aggregate.Store.Close.
func (w *wrappedStore) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

// Ensure wrappedStore satisfies the interface at compile time.
var _ aggregate.Store = (*wrappedStore)(nil)

func init() {
	aggregate.Register("mssql", func(ctx context.Context, cfg aggregate.Config) (aggregate.Store, error) {
		s, closeFn, err := newStore(ctx, Config{DSN: cfg.DSN, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return &wrappedStore{Store: s, closeFn: closeFn}, nil
	})
}
