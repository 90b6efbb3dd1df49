// Package partition divides a file into contiguous, lockable byte ranges.
//
// A Partitioner is pure range arithmetic: it never touches the file. Ranges
// are produced lazily in ascending offset order, cover [0, totalSize)
// exactly once, and the last range is truncated to the remaining tail.
package partition

import (
	"fmt"
	"iter"
	"math"
)

const (
	// MaxChunkSize is the largest range a single lock or mapping call is
	// asked to address. It matches the 31-bit signed length limit of common
	// locking and mapping APIs, so a range length always fits in an int32
	// even when the file itself is much larger.
	MaxChunkSize int64 = math.MaxInt32

	// defaultChunkSize keeps each mapping modest so several instances get
	// something to do on multi-gigabyte files.
	defaultChunkSize int64 = 64 << 20 // 64 MiB
)

// Range denotes the half-open byte interval [Offset, Offset+Len) of the
// target file. Index is the zero-based position of the range in the
// partition and doubles as the chunk identifier in the shared aggregate.
type Range struct {
	Index  int
	Offset int64
	Len    int64
}

// End returns the exclusive end offset of r.
func (r Range) End() int64 { return r.Offset + r.Len }

func (r Range) String() string {
	return fmt.Sprintf("#%d[%d,%d)", r.Index, r.Offset, r.End())
}

// Partitioner yields the ranges of a file of TotalSize bytes cut into
// ChunkSize pieces. The zero value is not usable; use New.
type Partitioner struct {
	totalSize int64
	chunkSize int64
	next      int64 // offset of the next range to yield
	index     int
}

// New validates the geometry and returns a Partitioner positioned at the
// first range.
func New(totalSize, chunkSize int64) (*Partitioner, error) {
	if totalSize < 0 {
		return nil, fmt.Errorf("partition: negative total size %d", totalSize)
	}
	if chunkSize < 1 {
		return nil, fmt.Errorf("partition: chunk size must be positive, got %d", chunkSize)
	}
	if chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("partition: chunk size %d exceeds maximum %d", chunkSize, MaxChunkSize)
	}
	return &Partitioner{totalSize: totalSize, chunkSize: chunkSize}, nil
}

// TotalSize returns the size of the partitioned file.
func (p *Partitioner) TotalSize() int64 { return p.totalSize }

// ChunkSize returns the nominal range length.
func (p *Partitioner) ChunkSize() int64 { return p.chunkSize }

// Count returns the number of ranges the partition contains.
func (p *Partitioner) Count() int {
	return Count(p.totalSize, p.chunkSize)
}

// Next returns the next range and true, or the zero Range and false once
// the partition is exhausted.
func (p *Partitioner) Next() (Range, bool) {
	if p.next >= p.totalSize {
		return Range{}, false
	}
	n := p.chunkSize
	if rem := p.totalSize - p.next; rem < n {
		n = rem
	}
	r := Range{Index: p.index, Offset: p.next, Len: n}
	p.next += n
	p.index++
	return r, true
}

// Reset rewinds the partitioner to the first range.
func (p *Partitioner) Reset() {
	p.next = 0
	p.index = 0
}

// All returns an iterator over every range, independent of the cursor
// used by Next.
func (p *Partitioner) All() iter.Seq[Range] {
	return func(yield func(Range) bool) {
		q := Partitioner{totalSize: p.totalSize, chunkSize: p.chunkSize}
		for {
			r, ok := q.Next()
			if !ok || !yield(r) {
				return
			}
		}
	}
}

// Count returns how many chunkSize ranges cover totalSize bytes.
func Count(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// DefaultChunkSize picks the range length used when none is configured.
func DefaultChunkSize(totalSize int64) int64 {
	if totalSize > 0 && totalSize < defaultChunkSize {
		return totalSize
	}
	return defaultChunkSize
}
