package mysql

import (
	"context"

	"zerobyte/internal/aggregate"
)

// newStore is a test hook that points to NewStore by default.
var newStore = NewStore

type wrappedStore struct {
	*Store
	closeFn func()
}

// Close closes the connection pool.
func (w *wrappedStore) Close() error {
	w.closeFn()
	return nil
}

// init registers the "mysql" backend with the factory.
func init() {
	aggregate.Register("mysql", func(ctx context.Context, cfg aggregate.Config) (aggregate.Store, error) {
		s, closeFn, err := newStore(ctx, Config{DSN: cfg.DSN, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return &wrappedStore{Store: s, closeFn: closeFn}, nil
	})
}
