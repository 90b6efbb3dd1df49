package datadog

import (
	"slices"
	"testing"

	"zerobyte/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls  []call
	closed bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend(empty Addr) error = nil, want non-nil")
	}
}

func TestNewBackendUDP(t *testing.T) {
	t.Parallel()

	// UDP clients do not dial a listener, so this succeeds offline.
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "zerobyte.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend error = %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush error = %v", err)
	}
}

func TestBackendForwardsWithTags(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.ChunksTotal, 2, metrics.Labels{"kind": "scanned"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "scan", "status": "success"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush error = %v", err)
	}

	want := []call{
		{"count", metrics.ChunksTotal, 2, []string{"kind:scanned"}},
		{"histogram", metrics.StepDurationSeconds, 0.25, []string{"status:success", "step:scan"}},
	}
	if len(fc.calls) != len(want) {
		t.Fatalf("calls = %#v, want %#v", fc.calls, want)
	}
	for i := range want {
		got := fc.calls[i]
		if got.kind != want[i].kind || got.name != want[i].name || got.value != want[i].value || !slices.Equal(got.tags, want[i].tags) {
			t.Fatalf("call[%d] = %#v, want %#v", i, got, want[i])
		}
	}
	if !fc.closed {
		t.Fatal("Flush did not close the client")
	}
}

func TestNilClientIsNoop(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush error = %v", err)
	}
}
