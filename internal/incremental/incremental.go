// Package incremental is C6: the decision engine that compares a freshly
// computed allocation against an existing on-disk archive (and the
// manifest's own mtime) to decide, per slice, whether a rebuild can be
// skipped, and whether an implicit "force" full rebuild is required
// (spec.md §4.6). It never writes anything itself — cmd/mkgasfs consumes
// the resulting Plan and calls internal/writer accordingly.
package incremental

import (
	"os"
	"time"

	"golang.org/x/xerrors"

	"gasfs/internal/gfsformat"
	"gasfs/internal/reader"
)

// Plan is the decision engine's output.
type Plan struct {
	// Force reports whether a full rebuild was triggered: every slice is
	// rewritten regardless of its individual mtime comparison.
	Force bool
	// Rewrite lists the slice numbers that must be (re)written.
	Rewrite map[int]bool
	// Reused holds, for every slice number NOT in Rewrite, the slice
	// descriptor recovered from its on-disk sub-header without
	// recomputation (spec.md §4.6: "populate slice descriptor fields ...
	// from the on-disk sub-header without recomputation").
	Reused map[int]gfsformat.Slice
	// RewriteDirectory reports whether base_000.gfs itself must be
	// rewritten.
	RewriteDirectory bool
	// OldPaths is the path map parsed from the existing archive, when one
	// was found and Force wasn't triggered. Skipped slices keep their
	// on-disk byte layout untouched, so a caller rewriting the directory
	// (because some other slice did change) must copy each reused entry's
	// Offset from here rather than from the freshly allocated map, which
	// never had WriteSlice run over it to fill Offset in.
	OldPaths gfsformat.PathMap
}

// NeedsRewrite reports whether slice s must be (re)written under this plan.
func (p *Plan) NeedsRewrite(s int) bool { return p.Force || p.Rewrite[s] }

// Decide runs the spec.md §4.6 decision procedure. newSlicesCount and
// newMaxSliceMiB are this build's manifest settings and newPaths is the
// fresh allocator.Result path map; manifestMTime is the .gfi
// file's own modification time; userForce mirrors the CLI's --force flag.
func Decide(base string, manifestMTime time.Time, userForce bool, newSlicesCount int, newMaxSliceMiB uint32, newPaths gfsformat.PathMap) (*Plan, error) {
	plan := &Plan{
		Rewrite: make(map[int]bool),
		Reused:  make(map[int]gfsformat.Slice),
	}

	dirPath := gfsformat.SliceFilename(base, 0)
	dirInfo, err := os.Stat(dirPath)
	switch {
	case err == nil:
		// fall through
	case os.IsNotExist(err):
		plan.Force = true
	default:
		return nil, xerrors.Errorf("incremental: stat %s: %w", dirPath, err)
	}

	if userForce {
		plan.Force = true
	}

	var old *reader.Directory
	if !plan.Force && dirInfo != nil {
		old, err = reader.ParseDirectory(base)
		if err != nil {
			// A directory file that exists but fails to parse is an
			// archive-level corruption, not an incremental-rebuild signal;
			// the caller should see this as a fatal error, matching C8's
			// own treatment of a bad marker/CRC.
			return nil, err
		}

		if old.Global.SlicesCount != newSlicesCount || old.Global.MaxSliceSizeMiB != newMaxSliceMiB {
			plan.Force = true
		} else if pathMapDiffers(old.Global.Paths, newPaths) {
			plan.Force = true
		} else if dirInfo != nil && manifestMTime.After(dirInfo.ModTime()) {
			plan.Force = true
		} else {
			plan.OldPaths = old.Global.Paths
		}
	}

	if plan.Force {
		for s := 1; s <= newSlicesCount; s++ {
			plan.Rewrite[s] = true
		}
		plan.RewriteDirectory = true
		return plan, nil
	}

	// tFiles[s] is the newest mtime among entries newly assigned to slice s.
	tFiles := make(map[int]time.Time, newSlicesCount)
	for _, e := range newPaths {
		if e.LastModified.After(tFiles[e.SliceNo]) {
			tFiles[e.SliceNo] = e.LastModified
		}
	}

	var maxSliceFileMTime time.Time // newest existing slice file mtime
	anyRewrite := false
	for s := 1; s <= newSlicesCount; s++ {
		slicePath := gfsformat.SliceFilename(base, s)
		fi, err := os.Stat(slicePath)
		if os.IsNotExist(err) {
			plan.Rewrite[s] = true
			anyRewrite = true
			continue
		}
		if err != nil {
			return nil, xerrors.Errorf("incremental: stat %s: %w", slicePath, err)
		}
		if fi.ModTime().After(maxSliceFileMTime) {
			maxSliceFileMTime = fi.ModTime()
		}

		if fi.ModTime().After(tFiles[s]) {
			if sub, ok := tryParseSubHeader(slicePath); ok {
				plan.Reused[s] = gfsformat.Slice{
					SliceNo:      s,
					FilesCount:   sub.Files,
					TotalSize:    sub.TotalSize,
					Crc32:        sub.Crc32,
					LastModified: sub.LastModified,
					Filename:     slicePath,
				}
				continue
			}
		}
		plan.Rewrite[s] = true
		anyRewrite = true
	}

	// spec.md §4.6: "Directory file is rewritten iff any slice was
	// rewritten, OR force was set, OR its own mtime <= max slice mtime."
	plan.RewriteDirectory = anyRewrite || !dirInfo.ModTime().After(maxSliceFileMTime)

	return plan, nil
}

// pathMapDiffers reports whether a and b differ in cardinality or in any
// (path, slice_no) pair when both are walked in sorted-path order (spec.md
// §4.6).
func pathMapDiffers(a, b gfsformat.PathMap) bool {
	if len(a) != len(b) {
		return true
	}
	for _, p := range a.SortedPaths() {
		eb, ok := b[p]
		if !ok || eb.SliceNo != a[p].SliceNo {
			return true
		}
	}
	return false
}

// tryParseSubHeader reads and decodes the 32-byte sub-header at the start
// of slicePath, returning ok=false if the file is too short or its marker
// doesn't decode cleanly (spec.md §4.6: "existing slice file's sub-header
// parses cleanly with correct marker").
func tryParseSubHeader(slicePath string) (gfsformat.SubHeader, bool) {
	f, err := os.Open(slicePath)
	if err != nil {
		return gfsformat.SubHeader{}, false
	}
	defer f.Close()

	buf := make([]byte, gfsformat.SubHeaderSize)
	if _, err := f.Read(buf); err != nil {
		return gfsformat.SubHeader{}, false
	}

	var marker [4]byte
	copy(marker[:], buf[0:4])
	gen, ok := gfsformat.PeekGeneration(marker, true)
	if !ok {
		return gfsformat.SubHeader{}, false
	}

	var sh gfsformat.SubHeader
	var derr error
	switch gen {
	case gfsformat.GFS3:
		sh, derr = gfsformat.DecodeSubHeaderV3(buf)
	case gfsformat.GFS2:
		sh, derr = gfsformat.DecodeSubHeaderV2(buf)
	default:
		return gfsformat.SubHeader{}, false
	}
	if derr != nil {
		return gfsformat.SubHeader{}, false
	}
	return sh, true
}
