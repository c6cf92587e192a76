//go:build windows

package reader

import (
	"os"
	"time"
)

// restoreMtime falls back to os.Chtimes on Windows, where unix.UtimesNanoAt
// isn't available.
func restoreMtime(path string, mtime time.Time) error {
	return os.Chtimes(path, mtime, mtime)
}
