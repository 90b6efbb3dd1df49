//go:build windows

package rangelock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

func tryLock(f *os.File, off, n int64) error {
	ol := overlappedAt(off)
	err := windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		uint32(n),
		uint32(uint64(n)>>32),
		ol,
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, windows.ERROR_LOCK_VIOLATION):
		return ErrContended
	default:
		return fmt.Errorf("rangelock: LockFileEx [%d,+%d): %w", off, n, err)
	}
}

func unlock(f *os.File, off, n int64) error {
	ol := overlappedAt(off)
	err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, uint32(n), uint32(uint64(n)>>32), ol)
	if err != nil {
		return fmt.Errorf("rangelock: UnlockFileEx [%d,+%d): %w", off, n, err)
	}
	return nil
}

func overlappedAt(off int64) *windows.Overlapped {
	return &windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(uint64(off) >> 32),
	}
}
