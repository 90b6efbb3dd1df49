// Package barrier implements the completion barrier instances pass through
// while counting a file: join the current generation, scan, deregister, and
// wait until every participant of the generation has deregistered.
//
// Participation is tracked with leases in the shared aggregate record. A
// background heartbeat keeps this instance's lease alive while it scans;
// waiters reap leases of peers that stopped heartbeating, so a crashed
// instance degrades the result instead of blocking everyone forever.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zerobyte/internal/aggregate"
	"zerobyte/internal/metrics"
)

const (
	DefaultPollInterval = time.Millisecond
	DefaultLeaseTTL     = 30 * time.Second
)

// ErrEvicted is returned by Wait when the joined generation has been pushed
// out of the record's history before this instance observed its outcome.
var ErrEvicted = errors.New("barrier: generation outcome evicted from history")

// State is the position of one instance in the barrier protocol.
type State int

const (
	Joining State = iota
	Scanning
	Deregistering
	Waiting
	Done
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Scanning:
		return "scanning"
	case Deregistering:
		return "deregistering"
	case Waiting:
		return "waiting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options tune a Barrier. Zero values select defaults.
type Options struct {
	PollInterval      time.Duration // Wait polling period
	LeaseTTL          time.Duration
	HeartbeatInterval time.Duration // defaults to LeaseTTL/3
	WorkerID          string        // defaults to a random UUID
	Now               func() time.Time
	Logger            zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = DefaultLeaseTTL
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = o.LeaseTTL / 3
	}
	if o.WorkerID == "" {
		o.WorkerID = uuid.NewString()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Result is the aggregate a drained generation settled on.
type Result struct {
	Generation    uint64
	TotalZeroBits uint64
	Degraded      bool // a participant's lease was reaped
}

// Barrier tracks one instance through one generation.
type Barrier struct {
	store aggregate.Store
	key   string
	opts  Options
	log   zerolog.Logger

	mu     sync.Mutex
	state  State
	ticket aggregate.Ticket
}

// New returns a Barrier in the Joining state for the record at key.
func New(store aggregate.Store, key string, opts Options) *Barrier {
	opts = opts.withDefaults()
	return &Barrier{
		store: store,
		key:   key,
		opts:  opts,
		log:   opts.Logger.With().Str("key", key).Str("worker", opts.WorkerID).Logger(),
		state: Joining,
	}
}

// State returns the current state.
func (b *Barrier) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Worker returns this instance's lease id.
func (b *Barrier) Worker() string { return b.opts.WorkerID }

// Ticket returns the generation this instance joined.
func (b *Barrier) Ticket() aggregate.Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticket
}

func (b *Barrier) expect(s State) error {
	if b.state != s {
		return fmt.Errorf("barrier: in state %s, want %s", b.state, s)
	}
	return nil
}

func (b *Barrier) set(s State) {
	b.log.Debug().Stringer("from", b.state).Stringer("to", s).Msg("barrier transition")
	b.state = s
}

// Join registers this instance with the current generation, starting a new
// one if the record is idle, and moves to Scanning.
func (b *Barrier) Join(ctx context.Context, g aggregate.Geometry) (aggregate.Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.expect(Joining); err != nil {
		return aggregate.Ticket{}, err
	}
	t, err := aggregate.Join(ctx, b.store, b.key, b.opts.WorkerID, g, b.opts.Now(), b.opts.LeaseTTL)
	if err != nil {
		return aggregate.Ticket{}, fmt.Errorf("barrier: join: %w", err)
	}
	b.ticket = t
	if t.Reaped > 0 {
		metrics.RecordReaped(t.Reaped)
		b.log.Warn().Int("reaped", t.Reaped).Msg("dropped expired leases of a crashed generation")
	}
	b.log = b.log.With().Uint64("generation", t.Generation).Logger()
	b.log.Debug().Bool("fresh", t.Fresh).Msg("joined generation")
	b.set(Scanning)
	return t, nil
}

// Heartbeat extends this instance's lease once.
func (b *Barrier) Heartbeat(ctx context.Context) error {
	t := b.Ticket()
	return aggregate.Heartbeat(ctx, b.store, b.key, b.opts.WorkerID, t.Generation, b.opts.Now(), b.opts.LeaseTTL)
}

// KeepAlive refreshes the lease every HeartbeatInterval until ctx is done.
// It returns nil on cancellation and aggregate.ErrLeaseLost if the lease
// was reaped. Other store errors are logged and retried on the next tick.
func (b *Barrier) KeepAlive(ctx context.Context) error {
	tick := time.NewTicker(b.opts.HeartbeatInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		err := b.Heartbeat(ctx)
		switch {
		case err == nil:
		case errors.Is(err, aggregate.ErrLeaseLost):
			return fmt.Errorf("barrier: heartbeat: %w", err)
		case ctx.Err() != nil:
			return nil
		default:
			b.log.Warn().Err(err).Msg("heartbeat failed")
		}
	}
}

// Deregister leaves the generation and moves to Waiting. A lease that was
// already reaped is not an error: the generation is then reported degraded.
func (b *Barrier) Deregister(ctx context.Context) error {
	return b.deregister(ctx, aggregate.Leave)
}

// Abandon deregisters after a failed scan. The generation is marked
// degraded because chunks this instance claimed may not have been counted.
func (b *Barrier) Abandon(ctx context.Context) error {
	return b.deregister(ctx, aggregate.Abandon)
}

type leaveFunc func(ctx context.Context, s aggregate.Store, key, worker string, gen uint64) error

func (b *Barrier) deregister(ctx context.Context, leave leaveFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Deregistering {
		if err := b.expect(Scanning); err != nil {
			return err
		}
		b.set(Deregistering)
	}
	err := leave(ctx, b.store, b.key, b.opts.WorkerID, b.ticket.Generation)
	if errors.Is(err, aggregate.ErrLeaseLost) {
		b.log.Warn().Err(err).Msg("lease was reclaimed before deregistering")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("barrier: deregister: %w", err)
	}
	b.set(Waiting)
	return nil
}

// Wait polls the record until the joined generation has drained and returns
// its outcome. While waiting it reaps expired leases of crashed peers. If
// ctx is cancelled Wait returns ctx.Err() and may be called again.
func (b *Barrier) Wait(ctx context.Context) (Result, error) {
	b.mu.Lock()
	err := b.expect(Waiting)
	gen := b.ticket.Generation
	b.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	tick := time.NewTicker(b.opts.PollInterval)
	defer tick.Stop()
	for {
		rec, _, err := b.store.Get(ctx, b.key)
		if err != nil {
			return Result{}, fmt.Errorf("barrier: poll: %w", err)
		}
		if out, ok := aggregate.OutcomeOf(rec, gen); ok {
			b.mu.Lock()
			b.set(Done)
			b.mu.Unlock()
			return Result{Generation: out.Generation, TotalZeroBits: out.TotalZeroBits, Degraded: out.Degraded}, nil
		}
		if rec.Generation > gen || (len(rec.Completed) > 0 && rec.Completed[0].Generation > gen) {
			return Result{}, fmt.Errorf("%w: generation %d, record at %d", ErrEvicted, gen, rec.Generation)
		}
		if now := b.opts.Now(); aggregate.Expired(rec, now) {
			n, err := aggregate.Reap(ctx, b.store, b.key, now)
			if err != nil {
				return Result{}, fmt.Errorf("barrier: reap: %w", err)
			}
			if n > 0 {
				metrics.RecordReaped(n)
				b.log.Warn().Int("reaped", n).Msg("reclaimed expired peer leases")
			}
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-tick.C:
		}
	}
}
