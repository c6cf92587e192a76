// Package traversal is C4: given a base directory and a manifest's list of
// input path prefixes, enumerate the regular files beneath them and report
// their size and modification time, grounded in the teacher's own
// filepath.Walk-based tree walks (internal/build/build.go).
package traversal

import (
	"os"
	"path/filepath"
	"time"

	"gasfs"
)

// InputFile is one enumerated regular file: its logical path (relative to
// the base directory, forward-slash separated) plus its size and mtime.
type InputFile struct {
	LogicalPath string
	Size        int64
	ModTime     time.Time
}

// Enumerate walks baseDir/prefix for every prefix in pathList, skipping "."
// and "..", recursing into subdirectories, and returning one InputFile per
// regular file found. It fails with gasfs.KindPathNotFound if a listed
// prefix does not exist (spec.md §4.4).
func Enumerate(baseDir string, pathList []string) ([]InputFile, error) {
	var out []InputFile
	for _, prefix := range pathList {
		root := filepath.Join(baseDir, filepath.FromSlash(prefix))
		if _, err := os.Stat(root); err != nil {
			if os.IsNotExist(err) {
				return nil, gasfs.NewError(gasfs.KindPathNotFound, prefix, err, "input prefix does not exist")
			}
			return nil, gasfs.NewError(gasfs.KindIoError, prefix, err, "stat input prefix")
		}

		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			name := info.Name()
			if name == "." || name == ".." {
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(baseDir, path)
			if err != nil {
				return err
			}
			out = append(out, InputFile{
				LogicalPath: filepath.ToSlash(rel),
				Size:        info.Size(),
				ModTime:     info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, gasfs.NewError(gasfs.KindIoError, prefix, err, "walk input prefix")
		}
	}
	return out, nil
}
