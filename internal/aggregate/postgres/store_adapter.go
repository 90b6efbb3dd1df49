package postgres

import (
	"context"

	"zerobyte/internal/aggregate"
)

// newStore is a test hook that points to NewStore by default.
// Tests may replace this variable to avoid real DB connections.
var newStore = NewStore

type wrappedStore struct {
	*Store
	closeFn func()
}

// Close closes the connection pool.
func (w *wrappedStore) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

var _ aggregate.Store = (*wrappedStore)(nil)

func init() {
	aggregate.Register("postgres", func(ctx context.Context, cfg aggregate.Config) (aggregate.Store, error) {
		s, closeFn, err := newStore(ctx, Config{DSN: cfg.DSN, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return &wrappedStore{Store: s, closeFn: closeFn}, nil
	})
}
