// Package writer is C7: streaming input file bytes into slice containers
// and assembling the directory file (main header, sub-header table, entry
// array, path blob) that indexes them.
package writer

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/orcaman/writerseeker"

	"gasfs"
	"gasfs/internal/crc32ieee"
	"gasfs/internal/gfsformat"
)

// copyBufferSize is the streaming buffer used while copying input file
// bytes into a slice (spec.md §5: "16 MiB for data copy").
const copyBufferSize = 16 * 1024 * 1024

// WriteSlice streams every entry in paths with SliceNo == sliceNo, in
// sorted-path order, into base_NNN.gfs: a zero-filled sub-header
// placeholder, then each file's bytes back to back, then a seek-back to
// patch in the finalised sub-header (spec.md §4.7). It mutates paths in
// place, setting each written entry's Offset, and returns the resulting
// gfsformat.Slice descriptor.
//
// inputBaseDir is the directory input files are read from (Global.InputBaseDir).
func WriteSlice(inputBaseDir, base string, sliceNo int, paths gfsformat.PathMap) (gfsformat.Slice, error) {
	slicePath := gfsformat.SliceFilename(base, sliceNo)

	entryPaths := entriesForSlice(paths, sliceNo)

	f, err := os.Create(slicePath)
	if err != nil {
		return gfsformat.Slice{}, gasfs.NewError(gasfs.KindIoError, slicePath, err, "create slice file")
	}
	defer f.Close()

	placeholder := make([]byte, gfsformat.SubHeaderSize)
	if _, err := f.Write(placeholder); err != nil {
		return gfsformat.Slice{}, gasfs.NewError(gasfs.KindIoError, slicePath, err, "write sub-header placeholder")
	}

	buf := make([]byte, copyBufferSize)
	crc := uint32(crc32ieee.Seed)
	var offset uint64
	var lastMod time.Time
	files := 0

	for _, p := range entryPaths {
		e := paths[p]
		srcPath := filepath.Join(inputBaseDir, filepath.FromSlash(p))
		src, err := os.Open(srcPath)
		if err != nil {
			return gfsformat.Slice{}, gasfs.NewError(gasfs.KindIoError, srcPath, err, "open input file")
		}

		n, err := copyAndChecksum(f, src, buf, &crc)
		src.Close()
		if err != nil {
			return gfsformat.Slice{}, gasfs.NewError(gasfs.KindIoError, srcPath, err, "copy entry data into slice %d", sliceNo)
		}

		e.Offset = offset
		e.Size = uint64(n)
		paths[p] = e

		offset += uint64(n)
		files++
		if e.LastModified.After(lastMod) {
			lastMod = e.LastModified
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return gfsformat.Slice{}, gasfs.NewError(gasfs.KindIoError, slicePath, err, "seek to patch sub-header")
	}
	sub := gfsformat.EncodeSubHeaderV3(gfsformat.SubHeader{
		Generation:   gfsformat.GFS3,
		SliceNo:      sliceNo,
		Files:        files,
		TotalSize:    offset,
		Crc32:        crc,
		LastModified: lastMod,
	})
	if _, err := f.Write(sub); err != nil {
		return gfsformat.Slice{}, gasfs.NewError(gasfs.KindIoError, slicePath, err, "patch finalised sub-header")
	}

	return gfsformat.Slice{
		SliceNo:      sliceNo,
		FilesCount:   files,
		TotalSize:    offset,
		Crc32:        crc,
		LastModified: lastMod,
		Filename:     slicePath,
	}, nil
}

// copyAndChecksum copies all of src into dst through buf, updating crc as
// it goes, and returns the number of bytes copied.
func copyAndChecksum(dst io.Writer, src io.Reader, buf []byte, crc *uint32) (int64, error) {
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			*crc = crc32ieee.Update(*crc, buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// entriesForSlice returns the paths assigned to sliceNo, sorted (spec.md
// §4.5: "this ordering is load-bearing").
func entriesForSlice(paths gfsformat.PathMap, sliceNo int) []string {
	var out []string
	for _, p := range paths.SortedPaths() {
		if paths[p].SliceNo == sliceNo {
			out = append(out, p)
		}
	}
	return out
}

// WriteDirectory assembles and writes base_000.gfs: the main header
// followed by the sub-header table, entry array and path blob (spec.md
// §4.7). The variable-length payload (everything after the main header) is
// first built in an in-memory github.com/orcaman/writerseeker.WriterSeeker
// so its exact length and CRC-32 are known before a single sequential write
// to the real file — the "build then measure then patch the header" shape
// spec.md §4.7 describes, the same way the teacher's squashfs writer
// assembles metadata blocks before laying them out (internal/squashfs/writer.go).
func WriteDirectory(base string, slices []gfsformat.Slice, paths gfsformat.PathMap, maxSliceMiB uint32, lastModified time.Time) error {
	sort.Slice(slices, func(i, j int) bool { return slices[i].SliceNo < slices[j].SliceNo })

	var ws writerseeker.WriterSeeker

	for _, s := range slices {
		sub := gfsformat.EncodeSubHeaderV3(gfsformat.SubHeader{
			Generation:   gfsformat.GFS3,
			SliceNo:      s.SliceNo,
			Files:        s.FilesCount,
			TotalSize:    s.TotalSize,
			Crc32:        s.Crc32,
			LastModified: s.LastModified,
		})
		if _, err := ws.Write(sub); err != nil {
			return gasfs.NewError(gasfs.KindIoError, base, err, "write sub-header table")
		}
	}

	sortedPaths := paths.SortedPaths()

	var pathBlob []byte
	pathOffsets := make([]uint32, len(sortedPaths))
	for i, p := range sortedPaths {
		pathOffsets[i] = uint32(len(pathBlob))
		pathBlob = append(pathBlob, p...)
		pathBlob = append(pathBlob, 0)
	}

	for i, p := range sortedPaths {
		e := paths[p]
		rec := make([]byte, gfsformat.EntrySize)
		gfsformat.EncodeEntryRecord(rec, e.SliceNo, pathOffsets[i], e.Offset, e.Size)
		if _, err := ws.Write(rec); err != nil {
			return gasfs.NewError(gasfs.KindIoError, base, err, "write entry array")
		}
	}

	if _, err := ws.Write(pathBlob); err != nil {
		return gasfs.NewError(gasfs.KindIoError, base, err, "write path blob")
	}

	payload, err := io.ReadAll(ws.Reader())
	if err != nil {
		return gasfs.NewError(gasfs.KindIoError, base, err, "read back assembled directory payload")
	}

	crc := crc32ieee.Checksum(payload)

	hdr := gfsformat.EncodeMainHeaderV3(gfsformat.MainHeader{
		Generation:   gfsformat.GFS3,
		Slices:       len(slices),
		Entries:      len(sortedPaths),
		TotalSize:    uint32(len(payload)),
		MaxSliceMiB:  maxSliceMiB,
		Crc32:        crc,
		LastModified: lastModified,
	})

	dirPath := gfsformat.SliceFilename(base, 0)
	f, err := os.Create(dirPath)
	if err != nil {
		return gasfs.NewError(gasfs.KindIoError, dirPath, err, "create directory file")
	}
	defer f.Close()

	if _, err := f.Write(hdr); err != nil {
		return gasfs.NewError(gasfs.KindIoError, dirPath, err, "write main header")
	}
	if _, err := f.Write(payload); err != nil {
		return gasfs.NewError(gasfs.KindIoError, dirPath, err, "write directory payload")
	}

	return nil
}
