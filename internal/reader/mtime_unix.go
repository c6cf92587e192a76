//go:build !windows

package reader

import (
	"time"

	"golang.org/x/sys/unix"
)

// restoreMtime sets path's mtime (and leaves atime equal to it) via
// unix.UtimesNanoAt, mirroring the precision the teacher's installer
// restores package file timestamps with on non-Windows hosts.
func restoreMtime(path string, mtime time.Time) error {
	ts := unix.NsecToTimespec(mtime.UnixNano())
	times := []unix.Timespec{ts, ts}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0)
}
