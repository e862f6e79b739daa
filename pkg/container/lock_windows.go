//go:build windows

package container

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockFile acquires an exclusive lock on the whole file without blocking.
func lockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, ^uint32(0), ^uint32(0), ol)
}

// unlockFile releases the lock. Errors are ignored since the lock dies
// with the handle anyway.
func unlockFile(f *os.File) {
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(f.Fd()), 0, ^uint32(0), ^uint32(0), ol)
}
