//go:build linux

package scan

import (
	"os"

	"golang.org/x/sys/unix"
)

// Best-effort kernel hint: the window is read once, front to back.
func adviseSequential(f *os.File, off, n int64) {
	_ = unix.Fadvise(int(f.Fd()), off, n, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(f.Fd()), off, n, unix.FADV_WILLNEED)
}
