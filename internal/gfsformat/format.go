// Package gfsformat is the in-memory archive descriptor and the on-disk
// structures for the three GASFS format generations (GFS1, GFS2, GFS3),
// modelled as a tagged union discriminated on the 4-byte marker, per the
// DESIGN NOTE in spec.md §9 ("three format generations sharing names...
// model as a tagged union"). Every multi-byte integer is little-endian;
// packing goes through internal/bytecodec so field widths (1/3/4/6/8 bytes)
// are exact, never relying on Go struct layout or encoding/binary's
// fixed-width-only types the way the teacher's squashfs package does (that
// package never needed 3- or 6-byte fields).
package gfsformat

import (
	"fmt"
	"sort"
	"time"
)

// Generation identifies which on-disk layout a header uses.
type Generation byte

const (
	GFS1 Generation = '1'
	GFS2 Generation = '2'
	GFS3 Generation = '3'
)

const (
	mainMarker = "GFS"
	subMarker  = "gFS"

	// MainHeaderSize and SubHeaderSize are the fixed record sizes shared by
	// all three generations (spec.md §6).
	MainHeaderSize = 32
	SubHeaderSize  = 32
	EntrySize      = 16
)

// Entry is one logical file mapped to (slice, offset, size). Entries are
// immutable once built (spec.md §3).
type Entry struct {
	Path         string
	SliceNo      int
	Offset       uint64 // measured from after the slice's sub-header
	Size         uint64
	LastModified time.Time
}

// PathMap is the ordered mapping logical_path -> Entry required by
// spec.md §3: keys are unique, and SortedPaths defines the iteration order
// observable in the directory's entry array and in each slice's offset
// layout.
type PathMap map[string]Entry

// SortedPaths returns the map's keys in byte-wise sorted order. This
// ordering is load-bearing: it is what the writer uses to lay out offsets
// within a slice and what the incremental engine (internal/incremental)
// compares across builds to decide whether a rebuild is required.
func (m PathMap) SortedPaths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Slice is the per-slice descriptor (spec.md §3).
type Slice struct {
	SliceNo       int
	FilesCount    int
	TotalSize     uint64
	Crc32         uint32
	LastModified  time.Time
	NoAddFreeFile bool
	Filename      string
}

// Global is the archive-wide descriptor (spec.md §3).
type Global struct {
	EntriesCount    int
	SlicesCount     int
	MaxSliceSizeMiB uint32
	LastModified    time.Time
	ArchiveBase     string
	InputBaseDir    string
	Force           bool
	SkipCheckCrc    bool
	Slices          []Slice // Slices[i] has SliceNo == i+1
	Paths           PathMap
}

// MaxSliceBudgetBytes returns the per-slice byte budget a fresh allocator
// run may fill: MaxSliceSizeMiB * 2^20, minus the sub-header that precedes
// every slice's entry data (spec.md §4.5).
func (g *Global) MaxSliceBudgetBytes() int64 {
	return int64(g.MaxSliceSizeMiB)*1024*1024 - SubHeaderSize
}

// SliceFilename returns "<base>_NNN.gfs" for slice NNN, or "<base>_000.gfs"
// for the directory file when sliceNo is 0 (spec.md §6).
func SliceFilename(base string, sliceNo int) string {
	return fmt.Sprintf("%s_%03d.gfs", base, sliceNo)
}
