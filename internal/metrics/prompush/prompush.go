// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A counting run is a short-lived batch job, so collected
// metrics are pushed once at exit instead of being scraped.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"zerobyte/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	instance   string // Pushgateway "instance" grouping label, may be empty
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec   // zerobyte_step_total
	stepDuration *prometheus.HistogramVec // zerobyte_step_duration_seconds
	chunkCounter *prometheus.CounterVec   // zerobyte_chunks_total
	bytesCounter prometheus.Counter       // zerobyte_bytes_scanned_total
	reapCounter  prometheus.Counter       // zerobyte_leases_reaped_total
}

// NewBackend constructs a Pushgateway backend. instance distinguishes
// concurrent instances in the same job; it may be empty.
func NewBackend(jobName, instance, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "zerobyte"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.StepTotal,
		Help: "Run steps executed, by step and status.",
	}, []string{"step", "status"})
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.StepDurationSeconds,
		Help:    "Duration of run steps in seconds, by step and status.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"step", "status"})
	chunkCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.ChunksTotal,
		Help: "Chunks visited, by outcome (scanned, contended, claimed_elsewhere).",
	}, []string{"kind"})
	bytesCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: metrics.BytesScannedTotal,
		Help: "Bytes scanned by this instance.",
	})
	reapCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: metrics.LeasesReapedTotal,
		Help: "Expired peer leases reclaimed by this instance.",
	})

	for name, c := range map[string]prometheus.Collector{
		"step counter":  stepCounter,
		"step duration": stepDuration,
		"chunk counter": chunkCounter,
		"bytes counter": bytesCounter,
		"reap counter":  reapCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		instance:     instance,
		reg:          reg,
		stepCounter:  stepCounter,
		stepDuration: stepDuration,
		chunkCounter: chunkCounter,
		bytesCounter: bytesCounter,
		reapCounter:  reapCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.ChunksTotal:
		if b.chunkCounter != nil {
			b.chunkCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.BytesScannedTotal:
		if b.bytesCounter != nil {
			b.bytesCounter.Add(delta)
		}
	case metrics.LeasesReapedTotal:
		if b.reapCounter != nil {
			b.reapCounter.Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	p := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg)
	if b.instance != "" {
		p = p.Grouping("instance", b.instance)
	}
	return p.Push()
}
