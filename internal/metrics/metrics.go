// Package metrics records operational metrics for a counting run without
// tying the rest of the code to a metrics system.
//
// A global, pluggable Backend defaults to a no-op, so instrumented code is
// always safe to call. Concrete systems live in subpackages (prompush for a
// Prometheus Pushgateway, datadog for DogStatsD) and are installed with
// SetBackend by the CLI.
package metrics

import "time"

// Metric names shared by the backends.
const (
	StepTotal           = "zerobyte_step_total"
	StepDurationSeconds = "zerobyte_step_duration_seconds"
	ChunksTotal         = "zerobyte_chunks_total"
	BytesScannedTotal   = "zerobyte_bytes_scanned_total"
	LeasesReapedTotal   = "zerobyte_leases_reaped_total"
)

// Chunk outcome kinds for RecordChunk.
const (
	ChunkScanned          = "scanned"
	ChunkContended        = "contended"
	ChunkClaimedElsewhere = "claimed_elsewhere"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep records latency and success/failure of one run step
// ("join", "scan", "wait").
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordChunk counts one chunk by what happened to it.
func RecordChunk(kind string) {
	backend.IncCounter(ChunksTotal, 1, Labels{"kind": kind})
}

// RecordBytes adds n to the bytes-scanned counter.
func RecordBytes(n int64) {
	if n <= 0 {
		return
	}
	backend.IncCounter(BytesScannedTotal, float64(n), nil)
}

// RecordReaped counts leases this instance reclaimed from crashed peers.
func RecordReaped(n int) {
	if n <= 0 {
		return
	}
	backend.IncCounter(LeasesReapedTotal, float64(n), nil)
}
