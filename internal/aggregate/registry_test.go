package aggregate

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestOpenUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Kind: "no-such-store"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Open(unknown) error = %v, want ErrUnknownKind", err)
	}
}

func TestRegisterAndOpen(t *testing.T) {
	t.Parallel()

	var gotCfg Config
	want := newMemStore()
	Register("memory-test", func(_ context.Context, cfg Config) (Store, error) {
		gotCfg = cfg
		return want, nil
	})

	s, err := Open(context.Background(), Config{Kind: "memory-test", DSN: "x"})
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	if s != Store(want) {
		t.Fatalf("Open returned %T, want registered store", s)
	}
	if gotCfg.DSN != "x" {
		t.Fatalf("factory cfg.DSN = %q, want %q", gotCfg.DSN, "x")
	}
	if !slices.Contains(Kinds(), "memory-test") {
		t.Fatalf("Kinds() = %v, want it to contain memory-test", Kinds())
	}
}

func TestRowCodecPreservesState(t *testing.T) {
	t.Parallel()

	rec := Record{
		ActiveWorkers: 1,
		TotalZeroBits: 123,
		Generation:    7,
		Geometry:      geo,
		Leases:        map[string]time.Time{"w": t0},
		Degraded:      true,
		Completed:     []Outcome{{Generation: 6, TotalZeroBits: 5}},
	}
	rec.Claimed.Add(3)

	row, err := EncodeRow(rec)
	if err != nil {
		t.Fatalf("EncodeRow error = %v", err)
	}
	got, err := DecodeRow(row)
	if err != nil {
		t.Fatalf("DecodeRow error = %v", err)
	}
	if got.TotalZeroBits != 123 || got.Generation != 7 || got.Geometry != geo || !got.Degraded {
		t.Fatalf("DecodeRow = %+v, want counters and geometry of %+v", got, rec)
	}
	if !got.Leases["w"].Equal(t0) || !got.Claimed.Has(3) || len(got.Completed) != 1 {
		t.Fatalf("DecodeRow lost state: %+v", got)
	}
}

func TestDecodeEmptyState(t *testing.T) {
	t.Parallel()

	got, err := DecodeRow(Row{Generation: 2})
	if err != nil {
		t.Fatalf("DecodeRow error = %v", err)
	}
	if got.Generation != 2 || got.Leases != nil {
		t.Fatalf("DecodeRow = %+v, want bare generation 2", got)
	}
	if _, err := DecodeRow(Row{TotalZeroBits: -1}); err == nil {
		t.Fatal("DecodeRow(negative) error = nil, want non-nil")
	}
}
