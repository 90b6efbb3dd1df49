package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnknownKind is returned by Open when no backend registered the kind.
var ErrUnknownKind = errors.New("aggregate: unknown store kind")

// DefaultKind is the backend used when none is configured.
const DefaultKind = "sqlite"

// Config selects and configures a backend.
type Config struct {
	Kind   string // "sqlite", "postgres", "mysql", "mssql"
	DSN    string // backend specific; empty selects the backend default if it has one
	Logger zerolog.Logger
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open opens a Store for cfg.Kind, defaulting to DefaultKind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		cfg.Kind = DefaultKind
	}
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownKind, cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
