// Package reader is C8: parsing the directory file, verifying archive and
// per-slice integrity, and extracting entries back onto a filesystem.
//
// The directory file is opened via golang.org/x/exp/mmap (a read-only
// io.ReaderAt over the whole file) rather than ioutil.ReadFile, the way the
// teacher's own installer (internal/install/install.go) reads squashfs
// package images for extraction. Slice files are read with os.Open.
package reader

import (
	"bytes"
	"io"
	"os"
	"strings"

	"golang.org/x/exp/mmap"
	"golang.org/x/xerrors"

	"gasfs"
	"gasfs/internal/crc32ieee"
	"gasfs/internal/gfsformat"
)

// verifyBufferSize is the fixed buffer used while streaming a slice's data
// region through CRC for verification (spec.md §5: "64 KiB for
// verification, 16 MiB for data copy").
const verifyBufferSize = 64 * 1024

// Directory is the parsed form of a "<base>_000.gfs" file.
type Directory struct {
	Base         string
	Generation   gfsformat.Generation
	Global       gfsformat.Global
	subRaw       [][]byte          // raw 32-byte sub-header records, index 0..Slices-1
	subHeaders   []gfsformat.SubHeader
}

// ParseDirectory reads and validates base_000.gfs: marker, archive-level
// total_size/CRC (GFS3 only — GFS2 predates them, spec.md §4.3), the
// sub-header table, and the entry array + path blob (spec.md §4.8 steps
// 1-4). It does not touch the slice files themselves; see VerifySlices.
func ParseDirectory(base string) (*Directory, error) {
	path := gfsformat.SliceFilename(base, 0)
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, gasfs.NewError(gasfs.KindIoError, path, err, "open directory file")
	}
	defer ra.Close()

	total := ra.Len()
	if total < gfsformat.MainHeaderSize {
		return nil, gasfs.NewError(gasfs.KindNotArchive, path, nil, "file shorter than main header")
	}

	hdrBuf := make([]byte, gfsformat.MainHeaderSize)
	if _, err := ra.ReadAt(hdrBuf, 0); err != nil {
		return nil, gasfs.NewError(gasfs.KindIoError, path, err, "read main header")
	}

	var marker [4]byte
	copy(marker[:], hdrBuf[0:4])
	gen, ok := gfsformat.PeekGeneration(marker, false)
	if !ok {
		return nil, gasfs.NewError(gasfs.KindNotArchive, path, nil, "unrecognised marker %q", marker[:])
	}
	if gen == gfsformat.GFS1 {
		return nil, gasfs.NewError(gasfs.KindNotArchive, path, nil, "GFS1 archives are not supported for reading (see DESIGN.md)")
	}

	var mh gfsformat.MainHeader
	if gen == gfsformat.GFS3 {
		mh, err = gfsformat.DecodeMainHeaderV3(hdrBuf)
	} else {
		mh, err = gfsformat.DecodeMainHeaderV2(hdrBuf)
	}
	if err != nil {
		return nil, gasfs.NewError(gasfs.KindNotArchive, path, err, "decode main header")
	}

	region := total - gfsformat.MainHeaderSize
	if gen == gfsformat.GFS3 {
		if int(mh.TotalSize) != region {
			return nil, gasfs.NewError(gasfs.KindArchiveCorrupt, path, nil, "total_size=%d does not match actual region length %d", mh.TotalSize, region)
		}
		crc, err := streamCRC(ra, int64(gfsformat.MainHeaderSize), int64(region))
		if err != nil {
			return nil, gasfs.NewError(gasfs.KindIoError, path, err, "compute archive CRC")
		}
		if crc != mh.Crc32 {
			return nil, gasfs.NewError(gasfs.KindArchiveCorrupt, path, nil, "archive CRC mismatch: stored %#08x, computed %#08x", mh.Crc32, crc)
		}
	}

	body := make([]byte, region)
	if _, err := ra.ReadAt(body, int64(gfsformat.MainHeaderSize)); err != nil {
		return nil, gasfs.NewError(gasfs.KindIoError, path, err, "read directory body")
	}

	subRaw := make([][]byte, mh.Slices)
	subHeaders := make([]gfsformat.SubHeader, mh.Slices)
	off := 0
	for i := 0; i < mh.Slices; i++ {
		if off+gfsformat.SubHeaderSize > len(body) {
			return nil, gasfs.NewError(gasfs.KindArchiveCorrupt, path, nil, "sub-header table truncated")
		}
		raw := body[off : off+gfsformat.SubHeaderSize]
		subRaw[i] = raw
		var sh gfsformat.SubHeader
		var derr error
		if gen == gfsformat.GFS3 {
			sh, derr = gfsformat.DecodeSubHeaderV3(raw)
		} else {
			sh, derr = gfsformat.DecodeSubHeaderV2(raw)
		}
		if derr != nil {
			return nil, gasfs.NewError(gasfs.KindArchiveCorrupt, path, derr, "decode sub-header %d", i+1)
		}
		subHeaders[i] = sh
		off += gfsformat.SubHeaderSize
	}

	entryTableEnd := off + mh.Entries*gfsformat.EntrySize
	if entryTableEnd > len(body) {
		return nil, gasfs.NewError(gasfs.KindArchiveCorrupt, path, nil, "entry array truncated")
	}
	pathBlob := body[entryTableEnd:]

	paths := make(gfsformat.PathMap, mh.Entries)
	for i := 0; i < mh.Entries; i++ {
		rec := body[off : off+gfsformat.EntrySize]
		sliceNo, pathOffset, entryOff, size := gfsformat.DecodeEntryRecord(rec)
		p, err := readCString(pathBlob, int(pathOffset))
		if err != nil {
			return nil, gasfs.NewError(gasfs.KindArchiveCorrupt, path, err, "entry %d path", i)
		}
		paths[p] = gfsformat.Entry{
			Path:    p,
			SliceNo: sliceNo,
			Offset:  entryOff,
			Size:    size,
		}
		off += gfsformat.EntrySize
	}

	slices := make([]gfsformat.Slice, mh.Slices)
	for i, sh := range subHeaders {
		slices[i] = gfsformat.Slice{
			SliceNo:      sh.SliceNo,
			FilesCount:   sh.Files,
			TotalSize:    sh.TotalSize,
			Crc32:        sh.Crc32,
			LastModified: sh.LastModified,
			Filename:     gfsformat.SliceFilename(base, sh.SliceNo),
		}
	}
	// Entry.LastModified isn't persisted per-entry in the directory (only
	// slice-level last_modified_time is on disk); stamp each entry with its
	// slice's timestamp so downstream consumers (the incremental engine)
	// have a usable value without re-deriving it from scratch.
	for p, e := range paths {
		if e.SliceNo >= 1 && e.SliceNo <= len(slices) {
			e.LastModified = slices[e.SliceNo-1].LastModified
			paths[p] = e
		}
	}

	return &Directory{
		Base:       base,
		Generation: gen,
		Global: gfsformat.Global{
			EntriesCount:    mh.Entries,
			SlicesCount:     mh.Slices,
			MaxSliceSizeMiB: mh.MaxSliceMiB,
			LastModified:    mh.LastModified,
			ArchiveBase:     base,
			Slices:          slices,
			Paths:           paths,
		},
		subRaw:     subRaw,
		subHeaders: subHeaders,
	}, nil
}

// VerifySlices performs spec.md §4.8 step 3: for each slice, read its
// on-disk sub-header and byte-compare it to the directory's copy, failing
// with gasfs.KindSliceMismatch on any difference. GFS3 additionally checks
// that the slice's stored total_size matches its actual file size minus
// the sub-header.
func (d *Directory) VerifySlices() error {
	for i := 0; i < d.Global.SlicesCount; i++ {
		slicePath := gfsformat.SliceFilename(d.Base, i+1)
		f, err := os.Open(slicePath)
		if err != nil {
			return gasfs.NewError(gasfs.KindIoError, slicePath, err, "open slice")
		}
		raw := make([]byte, gfsformat.SubHeaderSize)
		_, err = io.ReadFull(f, raw)
		if err != nil {
			f.Close()
			return gasfs.NewError(gasfs.KindIoError, slicePath, err, "read slice sub-header")
		}
		if !bytes.Equal(raw, d.subRaw[i]) {
			f.Close()
			return gasfs.NewError(gasfs.KindSliceMismatch, slicePath, nil, "slice sub-header differs from directory's copy")
		}
		if d.Generation == gfsformat.GFS3 {
			fi, err := f.Stat()
			if err != nil {
				f.Close()
				return gasfs.NewError(gasfs.KindIoError, slicePath, err, "stat slice")
			}
			wantSize := fi.Size() - gfsformat.SubHeaderSize
			if wantSize < 0 {
				wantSize = 0
			}
			if d.subHeaders[i].TotalSize != uint64(wantSize) {
				f.Close()
				return gasfs.NewError(gasfs.KindSliceMismatch, slicePath, nil, "stored total_size %d != file_size-subheader %d", d.subHeaders[i].TotalSize, wantSize)
			}
		}
		f.Close()
	}
	return nil
}

// VerifySliceData streams slice sliceNo's data region through CRC-32 and
// compares it to the sub-header's recorded checksum (spec.md §4.8 step 5).
func (d *Directory) VerifySliceData(sliceNo int) error {
	slicePath := gfsformat.SliceFilename(d.Base, sliceNo)
	f, err := os.Open(slicePath)
	if err != nil {
		return gasfs.NewError(gasfs.KindIoError, slicePath, err, "open slice")
	}
	defer f.Close()
	if _, err := f.Seek(gfsformat.SubHeaderSize, io.SeekStart); err != nil {
		return gasfs.NewError(gasfs.KindIoError, slicePath, err, "seek past sub-header")
	}

	buf := make([]byte, verifyBufferSize)
	crc := uint32(crc32ieee.Seed)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			crc = crc32ieee.Update(crc, buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return gasfs.NewError(gasfs.KindIoError, slicePath, err, "read slice data")
		}
	}

	want := d.subHeaders[sliceNo-1].Crc32
	if crc != want {
		return gasfs.NewError(gasfs.KindSliceCrcMismatch, slicePath, nil, "stored CRC %#08x, computed %#08x", want, crc)
	}
	return nil
}

func streamCRC(ra *mmap.ReaderAt, start, length int64) (uint32, error) {
	buf := make([]byte, verifyBufferSize)
	crc := uint32(crc32ieee.Seed)
	var pos int64
	for pos < length {
		n := int64(len(buf))
		if length-pos < n {
			n = length - pos
		}
		if _, err := ra.ReadAt(buf[:n], start+pos); err != nil && err != io.EOF {
			return 0, err
		}
		crc = crc32ieee.Update(crc, buf[:n])
		pos += n
	}
	return crc, nil
}

func readCString(blob []byte, offset int) (string, error) {
	if offset < 0 || offset > len(blob) {
		return "", xerrors.Errorf("path offset %d out of range [0,%d]", offset, len(blob))
	}
	end := bytes.IndexByte(blob[offset:], 0)
	if end < 0 {
		return "", xerrors.Errorf("path at offset %d is not NUL-terminated", offset)
	}
	return string(blob[offset : offset+end]), nil
}

// MatchesAnyPrefix reports whether path starts with any of prefixes (an
// empty prefixes list matches everything), implementing the byte-prefix,
// OR-combined filter semantics of spec.md §4.8 step 6 / §6.
func MatchesAnyPrefix(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// SliceFilename is re-exported for callers (cmd/exgasfs) that only need the
// naming convention without a full Directory.
func SliceFilename(base string, sliceNo int) string {
	return gfsformat.SliceFilename(base, sliceNo)
}
