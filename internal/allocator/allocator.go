// Package allocator is C5: the two-phase bin-packing slice allocator.
// Phase A honours pinned placements from the manifest's per-slice
// sections; phase B round-robins the remaining entries across slices that
// still have budget and haven't been marked no_add_free_file. Phase A walks
// slices in ascending number and each pin list in manifest order; phase B
// iterates in sorted-by-path order. Together that is what makes
// repeated builds of an unchanged manifest allocate identically (spec.md
// §4.5, testable property "Allocation determinism").
package allocator

import (
	"sort"

	"gasfs"
	"gasfs/internal/gfsformat"
	"gasfs/internal/manifest"
	"gasfs/internal/traversal"
)

// Input collects everything the allocator needs: the manifest's slice
// count/budget, the enumerated input files, and the per-slice pinned path
// lists (slice number -> paths, where manifest.PinnedToken marks a slice
// no_add_free_file).
type Input struct {
	SlicesCount     int
	MaxSliceSizeMiB uint32
	Files           []traversal.InputFile
	Pinned          map[int][]string
}

// Result is the allocator's output: the final path -> Entry map and the
// per-slice descriptors (tallies only; Crc32 and Filename are filled in
// later by the writer).
type Result struct {
	Paths  gfsformat.PathMap
	Slices []gfsformat.Slice // Slices[i] has SliceNo == i+1
}

// Allocate runs phase A (pinned placement) then phase B (free fill) and
// returns the resulting path map and slice descriptors, or one of
// gasfs.KindPinnedEntryMissing, gasfs.KindSliceOverflow,
// gasfs.KindInsufficientSlices on failure.
func Allocate(in Input) (*Result, error) {
	if in.SlicesCount < 1 || in.SlicesCount > 255 {
		return nil, gasfs.NewError(gasfs.KindSliceOverflow, "", nil, "slices count %d out of range [1,255]", in.SlicesCount)
	}

	global := gfsformat.Global{SlicesCount: in.SlicesCount, MaxSliceSizeMiB: in.MaxSliceSizeMiB}
	initialBudget := global.MaxSliceBudgetBytes()
	budget := make([]int64, in.SlicesCount+1)
	slices := make([]gfsformat.Slice, in.SlicesCount+1)
	for s := 1; s <= in.SlicesCount; s++ {
		slices[s].SliceNo = s
		budget[s] = initialBudget
	}

	remaining := make(map[string]traversal.InputFile, len(in.Files))
	for _, f := range in.Files {
		remaining[f.LogicalPath] = f
	}

	paths := make(gfsformat.PathMap, len(in.Files))

	// Phase A: pinned placement, in ascending slice-number order so that
	// "****" and real pins on the same slice behave deterministically
	// regardless of manifest section ordering.
	pinnedSlices := make([]int, 0, len(in.Pinned))
	for s := range in.Pinned {
		pinnedSlices = append(pinnedSlices, s)
	}
	sort.Ints(pinnedSlices)

	for _, s := range pinnedSlices {
		if s < 1 || s > in.SlicesCount {
			return nil, gasfs.NewError(gasfs.KindPinnedEntryMissing, "", nil, "pinned section [%03d] has no corresponding slice", s)
		}
		for _, p := range in.Pinned[s] {
			if p == manifest.PinnedToken {
				slices[s].NoAddFreeFile = true
				continue
			}
			f, ok := remaining[p]
			if !ok {
				return nil, gasfs.NewError(gasfs.KindPinnedEntryMissing, p, nil, "pinned path not found among inputs (possibly pinned to two slices)")
			}
			delete(remaining, p)

			budget[s] -= f.Size
			if budget[s] < 0 {
				return nil, gasfs.NewError(gasfs.KindSliceOverflow, p, nil, "slice %d overflowed while placing pinned entry", s)
			}
			if f.ModTime.After(slices[s].LastModified) {
				slices[s].LastModified = f.ModTime
			}
			slices[s].FilesCount++
			paths[p] = gfsformat.Entry{
				Path:         p,
				SliceNo:      s,
				Size:         uint64(f.Size),
				LastModified: f.ModTime,
			}
		}
	}

	// Phase B: free fill, round-robin over the remaining entries in
	// sorted-path order.
	remainingPaths := make([]string, 0, len(remaining))
	for p := range remaining {
		remainingPaths = append(remainingPaths, p)
	}
	sort.Strings(remainingPaths)

	cursor := 1
	for _, p := range remainingPaths {
		f := remaining[p]
		placed := -1
		for i := 0; i < in.SlicesCount; i++ {
			s := ((cursor - 1 + i) % in.SlicesCount) + 1
			if slices[s].NoAddFreeFile {
				continue
			}
			if budget[s] >= f.Size {
				placed = s
				break
			}
		}
		if placed == -1 {
			return nil, gasfs.NewError(gasfs.KindInsufficientSlices, p, nil, "no slice has room for this entry")
		}

		budget[placed] -= f.Size
		if f.ModTime.After(slices[placed].LastModified) {
			slices[placed].LastModified = f.ModTime
		}
		slices[placed].FilesCount++
		paths[p] = gfsformat.Entry{
			Path:         p,
			SliceNo:      placed,
			Size:         uint64(f.Size),
			LastModified: f.ModTime,
		}

		cursor = placed%in.SlicesCount + 1
	}

	for s := 1; s <= in.SlicesCount; s++ {
		slices[s].TotalSize = uint64(initialBudget - budget[s])
	}

	return &Result{Paths: paths, Slices: slices[1:]}, nil
}
