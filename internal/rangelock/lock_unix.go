//go:build unix && !linux

package rangelock

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Classic POSIX record locks. They are per process, so descriptors opened
// by the same process do not exclude each other.
func tryLock(f *os.File, off, n int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
		Start:  off,
		Len:    n,
	}
	err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EACCES):
		return ErrContended
	default:
		return fmt.Errorf("rangelock: fcntl lock [%d,+%d): %w", off, n, err)
	}
}

func unlock(f *os.File, off, n int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: io.SeekStart,
		Start:  off,
		Len:    n,
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk); err != nil {
		return fmt.Errorf("rangelock: fcntl unlock [%d,+%d): %w", off, n, err)
	}
	return nil
}
