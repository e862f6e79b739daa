//go:build !windows

package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkDiskSpace refuses to append when the log's filesystem is nearly
// full. A failed statfs only warns; the write still proceeds.
func (l *Logger) checkDiskSpace() error {
	var stat unix.Statfs_t
	if err := unix.Statfs(l.path, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(l.path), &stat); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to check disk space for audit log: %v\n", err)
			return nil
		}
	}

	available := stat.Bavail * uint64(stat.Bsize)
	if available < MinDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: %d bytes available, need at least %d",
			available, MinDiskSpace)
	}
	return nil
}
