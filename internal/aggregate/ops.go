package aggregate

import (
	"context"
	"fmt"
	"time"
)

// HistoryLimit bounds Record.Completed.
const HistoryLimit = 16

// Ticket is what a worker receives on joining.
type Ticket struct {
	Generation uint64
	Fresh      bool // this join started the generation
	Reaped     int  // expired leases dropped before joining
}

// Join registers worker under a lease expiring at now+ttl. Leases that
// expired before now are dropped first, so a generation abandoned by crashed
// workers is finalized as degraded rather than joined. Joining an idle
// record starts a new generation: the total, claims and degraded flag are
// cleared in the same update that takes the first lease.
func Join(ctx context.Context, s Store, key, worker string, g Geometry, now time.Time, ttl time.Duration) (Ticket, error) {
	var t Ticket
	_, err := s.Update(ctx, key, func(r *Record) error {
		t = Ticket{}
		normalize(r)
		t.Reaped = dropExpired(r, now)
		if r.ActiveWorkers == 0 {
			r.Generation++
			r.TotalZeroBits = 0
			r.Geometry = g
			r.Claimed = nil
			r.Degraded = false
			t.Fresh = true
		} else if r.Geometry != g {
			return fmt.Errorf("%w: running %+v, joining %+v", ErrGeometryMismatch, r.Geometry, g)
		}
		r.Leases[worker] = now.Add(ttl)
		r.ActiveWorkers = uint32(len(r.Leases))
		t.Generation = r.Generation
		return nil
	})
	if err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Claim marks chunk as taken in generation gen. It reports false if another
// worker claimed it first.
func Claim(ctx context.Context, s Store, key, worker string, gen uint64, chunk int) (bool, error) {
	var won bool
	_, err := s.Update(ctx, key, func(r *Record) error {
		if err := holdsLease(r, worker, gen); err != nil {
			return err
		}
		won = r.Claimed.Add(chunk)
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// Fold adds zeros to the running total of generation gen.
func Fold(ctx context.Context, s Store, key, worker string, gen, zeros uint64) error {
	_, err := s.Update(ctx, key, func(r *Record) error {
		if err := holdsLease(r, worker, gen); err != nil {
			return err
		}
		r.TotalZeroBits += zeros
		return nil
	})
	return err
}

// Heartbeat extends worker's lease to now+ttl.
func Heartbeat(ctx context.Context, s Store, key, worker string, gen uint64, now time.Time, ttl time.Duration) error {
	_, err := s.Update(ctx, key, func(r *Record) error {
		if err := holdsLease(r, worker, gen); err != nil {
			return err
		}
		r.Leases[worker] = now.Add(ttl)
		return nil
	})
	return err
}

// Leave drops worker's lease. The last worker to leave finalizes the
// generation into Completed.
func Leave(ctx context.Context, s Store, key, worker string, gen uint64) error {
	return leave(ctx, s, key, worker, gen, false)
}

// Abandon is Leave for a worker that stopped before finishing its claimed
// chunks. The generation is marked degraded.
func Abandon(ctx context.Context, s Store, key, worker string, gen uint64) error {
	return leave(ctx, s, key, worker, gen, true)
}

func leave(ctx context.Context, s Store, key, worker string, gen uint64, degraded bool) error {
	_, err := s.Update(ctx, key, func(r *Record) error {
		if err := holdsLease(r, worker, gen); err != nil {
			return err
		}
		if degraded {
			r.Degraded = true
		}
		delete(r.Leases, worker)
		r.ActiveWorkers = uint32(len(r.Leases))
		if r.ActiveWorkers == 0 {
			finalize(r)
		}
		return nil
	})
	return err
}

// Reap drops leases that expired before now and returns how many it
// removed. Reaping marks the generation degraded and finalizes it if no
// worker remains.
func Reap(ctx context.Context, s Store, key string, now time.Time) (int, error) {
	var reaped int
	_, err := s.Update(ctx, key, func(r *Record) error {
		normalize(r)
		reaped = dropExpired(r, now)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reaped, nil
}

func dropExpired(r *Record, now time.Time) int {
	n := 0
	for w, exp := range r.Leases {
		if exp.Before(now) {
			delete(r.Leases, w)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	r.Degraded = true
	r.ActiveWorkers = uint32(len(r.Leases))
	if r.ActiveWorkers == 0 {
		finalize(r)
	}
	return n
}

// Expired reports whether any lease in r expired before now.
func Expired(r Record, now time.Time) bool {
	for _, exp := range r.Leases {
		if exp.Before(now) {
			return true
		}
	}
	return false
}

// OutcomeOf returns the final value of generation gen if it has drained.
func OutcomeOf(r Record, gen uint64) (Outcome, bool) {
	for i := len(r.Completed) - 1; i >= 0; i-- {
		if r.Completed[i].Generation == gen {
			return r.Completed[i], true
		}
	}
	return Outcome{}, false
}

// Reset clears a wedged record in one update. If workers were still
// registered, their generation is finalized as degraded so anyone waiting on
// it can finish. The generation counter and history are preserved. A missing
// record is left missing.
func Reset(ctx context.Context, s Store, key string) (Record, error) {
	if _, ok, err := s.Get(ctx, key); err != nil || !ok {
		return Record{}, err
	}
	return s.Update(ctx, key, func(r *Record) error {
		if r.ActiveWorkers > 0 || len(r.Leases) > 0 {
			r.Degraded = true
			finalize(r)
		}
		*r = Record{Generation: r.Generation, Completed: r.Completed}
		return nil
	})
}

func holdsLease(r *Record, worker string, gen uint64) error {
	if r.Generation != gen {
		return fmt.Errorf("%w: generation %d is no longer current (now %d)", ErrLeaseLost, gen, r.Generation)
	}
	if _, ok := r.Leases[worker]; !ok {
		return fmt.Errorf("%w: worker %s in generation %d", ErrLeaseLost, worker, gen)
	}
	return nil
}

// normalize restores ActiveWorkers == len(Leases) for records written
// without leases.
func normalize(r *Record) {
	if r.Leases == nil {
		r.Leases = make(map[string]time.Time)
	}
	r.ActiveWorkers = uint32(len(r.Leases))
}

func finalize(r *Record) {
	r.Completed = append(r.Completed, Outcome{
		Generation:    r.Generation,
		TotalZeroBits: r.TotalZeroBits,
		Degraded:      r.Degraded,
	})
	if n := len(r.Completed); n > HistoryLimit {
		r.Completed = append([]Outcome(nil), r.Completed[n-HistoryLimit:]...)
	}
}
