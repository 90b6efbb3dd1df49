// Package aggregate defines the shared record that instances counting the
// same file coordinate through, and the store interface backends implement.
//
// Every logical step an instance takes (join, claim, fold, heartbeat, leave,
// reap) is expressed as a single Store.Update so the read-modify-write is
// atomic across processes. Concrete backends live in subpackages and
// register themselves by kind; import aggregate/all to enable all of them.
package aggregate

import (
	"context"
	"errors"
	"time"

	"zerobyte/internal/bitmap"
)

var (
	// ErrGeometryMismatch is returned when an instance tries to join a
	// running generation with a different file size or chunk size.
	ErrGeometryMismatch = errors.New("aggregate: geometry does not match running generation")

	// ErrLeaseLost is returned when a worker's lease was reaped or its
	// generation is no longer current.
	ErrLeaseLost = errors.New("aggregate: worker lease lost")
)

// Geometry fixes how a generation splits the file into chunks.
type Geometry struct {
	TotalSize int64 `json:"total_size"`
	ChunkSize int64 `json:"chunk_size"`
}

// Outcome is the final value of a drained generation.
type Outcome struct {
	Generation    uint64 `json:"generation"`
	TotalZeroBits uint64 `json:"total_zero_bits"`
	Degraded      bool   `json:"degraded,omitempty"`
}

// Record is the shared state for one canonical path.
//
// ActiveWorkers always equals len(Leases). TotalZeroBits only grows while
// ActiveWorkers > 0 and is reset when an idle record is joined, in the same
// update that starts the next generation.
type Record struct {
	ActiveWorkers uint32
	TotalZeroBits uint64
	Generation    uint64

	Geometry Geometry
	Leases   map[string]time.Time // worker id -> lease expiry
	Claimed  bitmap.Bitmap        // chunk indexes claimed this generation
	Degraded bool                 // a lease was reaped this generation

	// Completed holds the most recent drained generations, oldest first.
	Completed []Outcome
}

// Store persists Records keyed by canonical path.
type Store interface {
	// Get returns the record for key. The bool is false when no record exists.
	Get(ctx context.Context, key string) (Record, bool, error)

	// Put overwrites the record for key.
	Put(ctx context.Context, key string, rec Record) error

	// Update atomically applies fn to the record for key and persists the
	// result, excluding concurrent Updates from any process. A missing
	// record is passed to fn as the zero Record. If fn returns an error
	// nothing is written and the error is returned.
	Update(ctx context.Context, key string, fn func(*Record) error) (Record, error)

	Close() error
}
