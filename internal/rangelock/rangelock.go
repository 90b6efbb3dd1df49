// Package rangelock claims byte ranges of a shared file with non-blocking,
// exclusive, advisory locks.
//
// Peers never tell each other which ranges they took: a range whose lock
// cannot be acquired immediately is being handled elsewhere and is skipped.
// Locks belong to the open file, so a crashed process releases them when
// the kernel tears down its descriptors.
package rangelock

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	// ErrContended reports that a peer already holds part of the range.
	// It is the expected steady-state signal to skip a range, not a failure.
	ErrContended = errors.New("rangelock: range held by another owner")

	// ErrUnsupported is returned on platforms without a byte-range lock
	// primitive.
	ErrUnsupported = errors.New("rangelock: byte-range locks not supported on this platform")
)

// File is a target file opened for range locking.
type File struct {
	f *os.File

	mu   sync.Mutex
	held map[*Lock]struct{}
}

// Open opens path read-write. POSIX exclusive record locks require a
// descriptor open for writing; the file content is never modified.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("rangelock: open %s: %w", path, err)
	}
	return &File{f: f, held: make(map[*Lock]struct{})}, nil
}

// OS returns the underlying file, e.g. for mapping a locked range.
func (lf *File) OS() *os.File { return lf.f }

// Name returns the path the file was opened with.
func (lf *File) Name() string { return lf.f.Name() }

// Size returns the current file size.
func (lf *File) Size() (int64, error) {
	st, err := lf.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("rangelock: stat %s: %w", lf.f.Name(), err)
	}
	return st.Size(), nil
}

// TryLock attempts an exclusive lock on [off, off+n) and returns at once.
// It returns ErrContended when another owner holds any byte of the range.
func (lf *File) TryLock(off, n int64) (*Lock, error) {
	if off < 0 || n <= 0 {
		return nil, fmt.Errorf("rangelock: invalid range offset=%d len=%d", off, n)
	}
	if err := tryLock(lf.f, off, n); err != nil {
		return nil, err
	}
	l := &Lock{file: lf, off: off, n: n}
	lf.mu.Lock()
	lf.held[l] = struct{}{}
	lf.mu.Unlock()
	return l, nil
}

// Held returns the number of locks currently held through lf.
func (lf *File) Held() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.held)
}

// Close releases every lock still held and closes the file.
func (lf *File) Close() error {
	lf.mu.Lock()
	locks := make([]*Lock, 0, len(lf.held))
	for l := range lf.held {
		locks = append(locks, l)
	}
	lf.mu.Unlock()

	var errs []error
	for _, l := range locks {
		if err := l.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := lf.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("rangelock: close: %w", err))
	}
	return errors.Join(errs...)
}

// Lock is a held exclusive lock on one byte range.
type Lock struct {
	file *File
	off  int64
	n    int64

	once sync.Once
	err  error
}

// Offset returns the first locked byte.
func (l *Lock) Offset() int64 { return l.off }

// Len returns the number of locked bytes.
func (l *Lock) Len() int64 { return l.n }

// Release unlocks the range. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	l.once.Do(func() {
		l.err = unlock(l.file.f, l.off, l.n)
		l.file.mu.Lock()
		delete(l.file.held, l)
		l.file.mu.Unlock()
	})
	return l.err
}
