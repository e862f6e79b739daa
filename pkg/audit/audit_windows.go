//go:build windows

package audit

// checkDiskSpace is a no-op on Windows; appends proceed without a free
// space check.
func (l *Logger) checkDiskSpace() error {
	return nil
}
