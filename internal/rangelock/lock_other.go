//go:build !unix && !windows

package rangelock

import "os"

func tryLock(*os.File, int64, int64) error { return ErrUnsupported }

func unlock(*os.File, int64, int64) error { return ErrUnsupported }
