package partition

import (
	"testing"
)

// TestNewRejectsBadGeometry locks in the validation rules for sizes.
func TestNewRejectsBadGeometry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int64
		chunk     int64
		wantError bool
	}{
		{name: "negative total", total: -1, chunk: 4, wantError: true},
		{name: "zero chunk", total: 10, chunk: 0, wantError: true},
		{name: "chunk above 31-bit limit", total: 10, chunk: MaxChunkSize + 1, wantError: true},
		{name: "chunk at limit", total: 10, chunk: MaxChunkSize},
		{name: "empty file", total: 0, chunk: 4},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.total, tt.chunk)
			if (err != nil) != tt.wantError {
				t.Fatalf("New(%d, %d) error = %v, wantError %v", tt.total, tt.chunk, err, tt.wantError)
			}
		})
	}
}

// TestNextCoversFileExactlyOnce checks contiguity, ordering, truncation of
// the tail range and that the union of ranges is [0, total).
func TestNextCoversFileExactlyOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int64
		chunk     int64
		wantCount int
		wantLast  int64
	}{
		{name: "exact multiple", total: 1 << 20, chunk: 256 << 10, wantCount: 4, wantLast: 256 << 10},
		{name: "ragged tail", total: 10, chunk: 4, wantCount: 3, wantLast: 2},
		{name: "single range", total: 16, chunk: 16, wantCount: 1, wantLast: 16},
		{name: "chunk larger than file", total: 3, chunk: 100, wantCount: 1, wantLast: 3},
		{name: "byte ranges", total: 5, chunk: 1, wantCount: 5, wantLast: 1},
		{name: "empty", total: 0, chunk: 8, wantCount: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := New(tt.total, tt.chunk)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			var (
				got  []Range
				next int64
			)
			for {
				r, ok := p.Next()
				if !ok {
					break
				}
				if r.Offset != next {
					t.Fatalf("range %v starts at %d, want %d", r, r.Offset, next)
				}
				if r.Index != len(got) {
					t.Fatalf("range %v index = %d, want %d", r, r.Index, len(got))
				}
				if r.Len <= 0 || r.Len > tt.chunk {
					t.Fatalf("range %v has length %d outside (0, %d]", r, r.Len, tt.chunk)
				}
				next = r.End()
				got = append(got, r)
			}

			if next != tt.total {
				t.Fatalf("ranges end at %d, want %d", next, tt.total)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("got %d ranges, want %d", len(got), tt.wantCount)
			}
			if p.Count() != tt.wantCount {
				t.Fatalf("Count() = %d, want %d", p.Count(), tt.wantCount)
			}
			if tt.wantCount > 0 && got[len(got)-1].Len != tt.wantLast {
				t.Fatalf("last range length = %d, want %d", got[len(got)-1].Len, tt.wantLast)
			}
		})
	}
}

func TestResetRestartsSequence(t *testing.T) {
	t.Parallel()

	p, err := New(10, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first, _ := p.Next()
	p.Next()
	p.Reset()
	again, ok := p.Next()
	if !ok || again != first {
		t.Fatalf("after Reset Next() = %v, %v; want %v, true", again, ok, first)
	}
}

func TestAllDoesNotMoveCursor(t *testing.T) {
	t.Parallel()

	p, err := New(10, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.Next()

	var n int
	for r := range p.All() {
		if r.Index != n {
			t.Fatalf("All() yielded index %d, want %d", r.Index, n)
		}
		n++
	}
	if n != 3 {
		t.Fatalf("All() yielded %d ranges, want 3", n)
	}

	r, ok := p.Next()
	if !ok || r.Index != 1 {
		t.Fatalf("Next() after All() = %v, %v; want index 1", r, ok)
	}
}

// TestLargeFileRangesStayAddressable covers files larger than the 31-bit
// limit: no range may request a length above MaxChunkSize.
func TestLargeFileRangesStayAddressable(t *testing.T) {
	t.Parallel()

	const total = 5 * (1 << 31) // 10 GiB
	p, err := New(total, MaxChunkSize)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var sum int64
	for r := range p.All() {
		if r.Len > MaxChunkSize {
			t.Fatalf("range %v length exceeds MaxChunkSize", r)
		}
		sum += r.Len
	}
	if sum != total {
		t.Fatalf("sum of lengths = %d, want %d", sum, total)
	}
}

func TestDefaultChunkSize(t *testing.T) {
	t.Parallel()

	if got := DefaultChunkSize(16); got != 16 {
		t.Fatalf("DefaultChunkSize(16) = %d, want 16", got)
	}
	if got := DefaultChunkSize(1 << 40); got != defaultChunkSize {
		t.Fatalf("DefaultChunkSize(1TiB) = %d, want %d", got, defaultChunkSize)
	}
	if got := DefaultChunkSize(0); got != defaultChunkSize {
		t.Fatalf("DefaultChunkSize(0) = %d, want %d", got, defaultChunkSize)
	}
}

func BenchmarkPartitionerNext(b *testing.B) {
	p, err := New(50<<30, 64<<20)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p.Reset()
		for {
			if _, ok := p.Next(); !ok {
				break
			}
		}
	}
}
