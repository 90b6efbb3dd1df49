// Package runner wires one counting instance together: it partitions the
// file, claims and scans whatever chunks no peer holds, folds the counts
// into the shared aggregate and waits at the completion barrier for the
// generation's final total.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"zerobyte/internal/aggregate"
	"zerobyte/internal/barrier"
	"zerobyte/internal/metrics"
	"zerobyte/internal/partition"
	"zerobyte/internal/rangelock"
	"zerobyte/internal/scan"
)

// deregisterTimeout bounds the final Leave when the run was interrupted.
const deregisterTimeout = 10 * time.Second

// Config describes one run.
type Config struct {
	Path      string
	ChunkSize int64 // 0 selects partition.DefaultChunkSize
	Barrier   barrier.Options
	Logger    zerolog.Logger
}

// Stats counts what this instance did with each chunk.
type Stats struct {
	Scanned          int
	Contended        int // lock held by a peer
	ClaimedElsewhere int // already claimed in this generation
	BytesScanned     int64
}

// Result is the outcome of one run.
type Result struct {
	barrier.Result
	Key     string // canonical path
	Stats   Stats
	Elapsed time.Duration
}

// Run counts the zero bits of cfg.Path in cooperation with any other
// instances sharing store, and returns the generation's final total.
func Run(ctx context.Context, store aggregate.Store, cfg Config) (Result, error) {
	start := time.Now()
	log := cfg.Logger

	path, key, err := Resolve(cfg.Path)
	if err != nil {
		return Result{}, err
	}
	log = log.With().Str("path", key).Logger()

	f, err := rangelock.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return Result{}, err
	}
	chunk := cfg.ChunkSize
	if chunk == 0 {
		chunk = partition.DefaultChunkSize(size)
	}
	p, err := partition.New(size, chunk)
	if err != nil {
		return Result{}, err
	}
	log.Debug().Int64("size", size).Int64("chunk", chunk).Int("chunks", p.Count()).Msg("partitioned")

	opts := cfg.Barrier
	opts.Logger = log
	b := barrier.New(store, key, opts)

	joinStart := time.Now()
	ticket, err := b.Join(ctx, aggregate.Geometry{TotalSize: size, ChunkSize: chunk})
	metrics.RecordStep("join", err, time.Since(joinStart))
	if err != nil {
		return Result{}, err
	}
	log = log.With().Uint64("generation", ticket.Generation).Str("worker", b.Worker()).Logger()

	w := &worker{
		file:  f,
		store: store,
		key:   key,
		id:    b.Worker(),
		gen:   ticket.Generation,
		log:   log,
	}
	scanStart := time.Now()
	scanErr := w.scanWithHeartbeat(ctx, b, p)
	metrics.RecordStep("scan", scanErr, time.Since(scanStart))
	log.Info().
		Int("scanned", w.stats.Scanned).
		Int("contended", w.stats.Contended).
		Int("claimed_elsewhere", w.stats.ClaimedElsewhere).
		Int64("bytes", w.stats.BytesScanned).
		Err(scanErr).
		Msg("scan finished")

	// Deregister even when interrupted so peers are not left waiting on us.
	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deregisterTimeout)
	defer cancel()
	if scanErr != nil {
		if err := b.Abandon(leaveCtx); err != nil {
			return Result{}, errors.Join(scanErr, err)
		}
		return Result{}, scanErr
	}
	if err := b.Deregister(leaveCtx); err != nil {
		return Result{}, err
	}

	waitStart := time.Now()
	res, err := b.Wait(ctx)
	metrics.RecordStep("wait", err, time.Since(waitStart))
	if err != nil {
		return Result{}, err
	}
	if res.Degraded {
		log.Warn().Msg("generation finished degraded: a participant did not complete")
	}
	return Result{Result: res, Key: key, Stats: w.stats, Elapsed: time.Since(start)}, nil
}

// worker holds the per-run state of the scan loop.
type worker struct {
	file  *rangelock.File
	store aggregate.Store
	key   string
	id    string
	gen   uint64
	log   zerolog.Logger
	stats Stats
}

// scanWithHeartbeat runs the scan loop while a second goroutine keeps the
// lease alive. Losing the lease cancels the scan.
func (w *worker) scanWithHeartbeat(ctx context.Context, b *barrier.Barrier, p *partition.Partitioner) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	g, gctx := errgroup.WithContext(hbCtx)
	g.Go(func() error { return b.KeepAlive(gctx) })
	g.Go(func() error {
		defer stopHeartbeat()
		return w.scanAll(gctx, p)
	})
	return g.Wait()
}

func (w *worker) scanAll(ctx context.Context, p *partition.Partitioner) error {
	for r := range p.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lk, err := w.file.TryLock(r.Offset, r.Len)
		if errors.Is(err, rangelock.ErrContended) {
			w.stats.Contended++
			metrics.RecordChunk(metrics.ChunkContended)
			w.log.Debug().Stringer("range", r).Msg("range locked by a peer, skipping")
			continue
		}
		if err != nil {
			return err
		}
		err = w.scanLocked(ctx, r)
		if relErr := lk.Release(); err == nil {
			err = relErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// scanLocked claims r for this generation and, if no one else has, counts
// it and folds the result. The caller holds the range lock.
func (w *worker) scanLocked(ctx context.Context, r partition.Range) error {
	won, err := aggregate.Claim(ctx, w.store, w.key, w.id, w.gen, r.Index)
	if err != nil {
		return fmt.Errorf("runner: claim %v: %w", r, err)
	}
	if !won {
		w.stats.ClaimedElsewhere++
		metrics.RecordChunk(metrics.ChunkClaimedElsewhere)
		w.log.Debug().Stringer("range", r).Msg("range already counted this generation")
		return nil
	}
	zeros, err := scan.Range(w.file.OS(), r)
	if err != nil {
		return err
	}
	if err := aggregate.Fold(ctx, w.store, w.key, w.id, w.gen, zeros); err != nil {
		return fmt.Errorf("runner: fold %v: %w", r, err)
	}
	w.stats.Scanned++
	w.stats.BytesScanned += r.Len
	metrics.RecordChunk(metrics.ChunkScanned)
	metrics.RecordBytes(r.Len)
	w.log.Debug().Stringer("range", r).Uint64("zeros", zeros).Msg("range counted")
	return nil
}
