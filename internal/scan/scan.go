// Package scan counts zero bits in a locked byte range of the target file.
//
// Ranges are read through a read-only memory mapping of exactly that
// window so large chunks never pass through application buffers.
package scan

import (
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"

	"zerobyte/internal/partition"
)

// mapAlign is the offset alignment used for mappings. 64 KiB satisfies the
// page size on Unix and the allocation granularity on Windows.
var mapAlign = max(int64(os.Getpagesize()), 64<<10)

// View is a read-only window over [off, off+n) of a file.
type View struct {
	m     mmap.MMap
	delta int64 // bytes mapped before the requested offset
	n     int64
}

// Window maps [off, off+n) of f read-only. The mapping starts at the
// aligned offset at or below off; Bytes hides the extra prefix.
func Window(f *os.File, off, n int64) (*View, error) {
	if off < 0 || n <= 0 {
		return nil, fmt.Errorf("scan: invalid window offset=%d len=%d", off, n)
	}
	base := off - off%mapAlign
	delta := off - base
	if delta+n > math.MaxInt {
		return nil, fmt.Errorf("scan: window of %d bytes not addressable", delta+n)
	}
	m, err := mmap.MapRegion(f, int(delta+n), mmap.RDONLY, 0, base)
	if err != nil {
		return nil, fmt.Errorf("scan: map [%d,+%d): %w", off, n, err)
	}
	adviseSequential(f, off, n)
	return &View{m: m, delta: delta, n: n}, nil
}

// Bytes returns the mapped window. It is only valid until Close.
func (v *View) Bytes() []byte { return v.m[v.delta : v.delta+v.n] }

// Close unmaps the window.
func (v *View) Close() error {
	if v.m == nil {
		return nil
	}
	err := v.m.Unmap()
	v.m = nil
	if err != nil {
		return fmt.Errorf("scan: unmap: %w", err)
	}
	return nil
}

// Range maps r and returns its zero-bit count.
func Range(f *os.File, r partition.Range) (uint64, error) {
	if r.Len == 0 {
		return 0, nil
	}
	v, err := Window(f, r.Offset, r.Len)
	if err != nil {
		return 0, err
	}
	zeros := CountZeroBits(v.Bytes())
	if err := v.Close(); err != nil {
		return 0, err
	}
	return zeros, nil
}
