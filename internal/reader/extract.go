package reader

import (
	"io"
	"os"
	"path/filepath"

	"gasfs"
	"gasfs/internal/gfsformat"
)

// ExtractOptions controls Extract's behaviour.
type ExtractOptions struct {
	DestDir      string
	Prefixes     []string // empty means "everything"
	SkipCheckCrc bool
	RestoreMtime bool
}

// Extract materialises every entry matching opts.Prefixes under
// opts.DestDir, reading each entry's bytes out of its slice file at the
// recorded offset/size. Unless opts.SkipCheckCrc, each slice touched is CRC
// verified (via VerifySliceData) before any of its entries are written,
// matching spec.md §4.8 step 5/6 ("skip_check_crc short-circuits the
// integrity check, never the extraction itself").
func (d *Directory) Extract(opts ExtractOptions) error {
	bySlice := make(map[int][]gfsformat.Entry)
	for _, p := range d.Global.Paths.SortedPaths() {
		e := d.Global.Paths[p]
		if !MatchesAnyPrefix(e.Path, opts.Prefixes) {
			continue
		}
		bySlice[e.SliceNo] = append(bySlice[e.SliceNo], e)
	}

	checked := make(map[int]bool)
	for sliceNo, entries := range bySlice {
		if !opts.SkipCheckCrc && !checked[sliceNo] {
			if err := d.VerifySliceData(sliceNo); err != nil {
				return err
			}
			checked[sliceNo] = true
		}
		if err := d.extractSliceEntries(sliceNo, entries, opts); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) extractSliceEntries(sliceNo int, entries []gfsformat.Entry, opts ExtractOptions) error {
	slicePath := gfsformat.SliceFilename(d.Base, sliceNo)
	f, err := os.Open(slicePath)
	if err != nil {
		return gasfs.NewError(gasfs.KindIoError, slicePath, err, "open slice for extraction")
	}
	defer f.Close()

	for _, e := range entries {
		destPath := filepath.Join(opts.DestDir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return gasfs.NewError(gasfs.KindIoError, destPath, err, "create parent directory")
		}

		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return gasfs.NewError(gasfs.KindIoError, destPath, err, "create output file")
		}

		start := gfsformat.SubHeaderSize + int64(e.Offset)
		if _, err := io.Copy(out, io.NewSectionReader(f, start, int64(e.Size))); err != nil {
			out.Close()
			return gasfs.NewError(gasfs.KindIoError, destPath, err, "copy entry data")
		}
		if err := out.Close(); err != nil {
			return gasfs.NewError(gasfs.KindIoError, destPath, err, "close output file")
		}

		if opts.RestoreMtime && !e.LastModified.IsZero() {
			if err := restoreMtime(destPath, e.LastModified); err != nil {
				return gasfs.NewError(gasfs.KindIoError, destPath, err, "restore mtime")
			}
		}
	}
	return nil
}
