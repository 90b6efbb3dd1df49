package sqlite

import (
	"context"

	"zerobyte/internal/aggregate"
)

// newStore is a test hook that points to NewStore by default.
var newStore = NewStore

// wrappedStore adds a Close that runs the cleanup function from NewStore.
type wrappedStore struct {
	*Store
	closeFn func()
}

func (w *wrappedStore) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

var _ aggregate.Store = (*wrappedStore)(nil)

func init() {
	aggregate.Register("sqlite", func(ctx context.Context, cfg aggregate.Config) (aggregate.Store, error) {
		s, closeFn, err := newStore(ctx, Config{DSN: cfg.DSN, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return &wrappedStore{Store: s, closeFn: closeFn}, nil
	})
}
