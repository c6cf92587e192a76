package gfsformat

import (
	"time"

	"gasfs/internal/bytecodec"
	"golang.org/x/xerrors"
)

// MainHeader is the decoded form of the GFS3 main header (spec.md §6): a
// 32-byte fixed record at the start of every directory file.
//
//	marker[3]="GFS" version[1] slices[1] entries[3] total_size[4]
//	max_slice_size[4] crc[4] date[7 BCD] reserved[5]
//
// spec.md's running byte count for reserved ("reserved[6]") doesn't add up
// to the stated 32-byte record once every other field width is summed
// (3+1+1+3+4+4+4+7 = 27, leaving 5, not 6, to reach 32); the fixed 32-byte
// record size is asserted in multiple places and is what on-disk offsets
// and scenario tests key off, so this implementation treats reserved as
// 5 bytes and keeps the record at exactly 32 — see DESIGN.md.
type MainHeader struct {
	Generation   Generation
	Slices       int
	Entries      int
	TotalSize    uint32
	MaxSliceMiB  uint32
	Crc32        uint32
	LastModified time.Time
}

// EncodeMainHeaderV3 serialises h as a GFS3 main header.
func EncodeMainHeaderV3(h MainHeader) []byte {
	b := make([]byte, MainHeaderSize)
	copy(b[0:3], mainMarker)
	b[3] = byte(GFS3)
	b[4] = byte(h.Slices)
	bytecodec.PutUint24(b[5:8], uint32(h.Entries))
	putUint32LE(b[8:12], h.TotalSize)
	putUint32LE(b[12:16], h.MaxSliceMiB)
	putUint32LE(b[16:20], h.Crc32)
	bytecodec.PutBCDDate(b[20:27], h.LastModified)
	// b[27:32] reserved, left zero.
	return b
}

// DecodeMainHeaderV3 parses a 32-byte GFS3 main header. The caller is
// expected to have already checked the marker/version via PeekGeneration.
func DecodeMainHeaderV3(b []byte) (MainHeader, error) {
	if len(b) < MainHeaderSize {
		return MainHeader{}, errShortBuffer("main header", MainHeaderSize, len(b))
	}
	return MainHeader{
		Generation:   GFS3,
		Slices:       int(b[4]),
		Entries:      int(bytecodec.Uint24(b[5:8])),
		TotalSize:    getUint32LE(b[8:12]),
		MaxSliceMiB:  getUint32LE(b[12:16]),
		Crc32:        getUint32LE(b[16:20]),
		LastModified: bytecodec.BCDDate(b[20:27]),
	}, nil
}

// EncodeMainHeaderV2 serialises h as a GFS2 main header. GFS2 predates the
// archive-level CRC and total_size fields (spec.md §4.3), so those are
// absent here; the directory's integrity is established purely by the
// per-slice sub-header cross-checks in that generation.
func EncodeMainHeaderV2(h MainHeader) []byte {
	b := make([]byte, MainHeaderSize)
	copy(b[0:3], mainMarker)
	b[3] = byte(GFS2)
	b[4] = byte(h.Slices)
	bytecodec.PutUint24(b[5:8], uint32(h.Entries))
	putUint32LE(b[8:12], h.MaxSliceMiB)
	bytecodec.PutBCDDate(b[12:19], h.LastModified)
	// b[19:32] reserved, left zero.
	return b
}

// DecodeMainHeaderV2 parses a 32-byte GFS2 main header.
func DecodeMainHeaderV2(b []byte) (MainHeader, error) {
	if len(b) < MainHeaderSize {
		return MainHeader{}, errShortBuffer("main header", MainHeaderSize, len(b))
	}
	return MainHeader{
		Generation:   GFS2,
		Slices:       int(b[4]),
		Entries:      int(bytecodec.Uint24(b[5:8])),
		MaxSliceMiB:  getUint32LE(b[8:12]),
		LastModified: bytecodec.BCDDate(b[12:19]),
	}, nil
}

// SubHeader is the decoded form of a sub-header (spec.md §6): a 32-byte
// fixed record, used both as the first bytes of every slice file and
// (duplicated) in the directory's sub-header table.
//
//	marker[3]="gFS" version[1] slice_no[1] files[3] total_size[8] crc[4]
//	date[7 BCD] reserved[5]
type SubHeader struct {
	Generation   Generation
	SliceNo      int
	Files        int
	TotalSize    uint64
	Crc32        uint32
	LastModified time.Time
}

// EncodeSubHeaderV3 serialises h as a GFS3 sub-header (8-byte total_size).
func EncodeSubHeaderV3(h SubHeader) []byte {
	b := make([]byte, SubHeaderSize)
	copy(b[0:3], subMarker)
	b[3] = byte(GFS3)
	b[4] = byte(h.SliceNo)
	putFiles24(b[5:8], h.Files)
	putUint64LE(b[8:16], h.TotalSize)
	putUint32LE(b[16:20], h.Crc32)
	bytecodec.PutBCDDate(b[20:27], h.LastModified)
	return b
}

// DecodeSubHeaderV3 parses a 32-byte GFS3 sub-header.
func DecodeSubHeaderV3(b []byte) (SubHeader, error) {
	if len(b) < SubHeaderSize {
		return SubHeader{}, errShortBuffer("sub-header", SubHeaderSize, len(b))
	}
	return SubHeader{
		Generation:   GFS3,
		SliceNo:      int(b[4]),
		Files:        getFiles24(b[5:8]),
		TotalSize:    getUint64LE(b[8:16]),
		Crc32:        getUint32LE(b[16:20]),
		LastModified: bytecodec.BCDDate(b[20:27]),
	}, nil
}

// EncodeSubHeaderV2 serialises h as a GFS2 sub-header (4-byte total_size).
func EncodeSubHeaderV2(h SubHeader) []byte {
	b := make([]byte, SubHeaderSize)
	copy(b[0:3], subMarker)
	b[3] = byte(GFS2)
	b[4] = byte(h.SliceNo)
	putFiles24(b[5:8], h.Files)
	putUint32LE(b[8:12], uint32(h.TotalSize))
	putUint32LE(b[12:16], h.Crc32)
	bytecodec.PutBCDDate(b[16:23], h.LastModified)
	return b
}

// DecodeSubHeaderV2 parses a 32-byte GFS2 sub-header.
func DecodeSubHeaderV2(b []byte) (SubHeader, error) {
	if len(b) < SubHeaderSize {
		return SubHeader{}, errShortBuffer("sub-header", SubHeaderSize, len(b))
	}
	return SubHeader{
		Generation:   GFS2,
		SliceNo:      int(b[4]),
		Files:        getFiles24(b[5:8]),
		TotalSize:    uint64(getUint32LE(b[8:12])),
		Crc32:        getUint32LE(b[12:16]),
		LastModified: bytecodec.BCDDate(b[16:23]),
	}, nil
}

// putFiles24/getFiles24 pack the sub-header's 3-byte files count as
// b0 | b1<<8 | b2<<16. spec.md §9 flags the original source's packing
// (b0 | b1<<8 | b0<<16, i.e. the top byte duplicated from the bottom byte)
// as a typo and directs implementations to use the corrected form; this is
// exactly bytecodec.PutUint24/Uint24, used here under names that mirror the
// field's role in the header.
func putFiles24(b []byte, n int) { bytecodec.PutUint24(b, uint32(n)) }
func getFiles24(b []byte) int    { return int(bytecodec.Uint24(b)) }

func putUint32LE(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32LE(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putUint64LE(b []byte, v uint64) {
	_ = b[7]
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64LE(b []byte) uint64 {
	_ = b[7]
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// Entry record encode/decode (16 bytes): slice[1] path_offset[3] offset[6]
// size[6].

// EncodeEntryRecord serialises one entry array record.
func EncodeEntryRecord(b []byte, sliceNo int, pathOffset uint32, offset, size uint64) {
	_ = b[EntrySize-1]
	b[0] = byte(sliceNo)
	bytecodec.PutUint24(b[1:4], pathOffset)
	bytecodec.PutUint48(b[4:10], offset)
	bytecodec.PutUint48(b[10:16], size)
}

// DecodeEntryRecord parses one 16-byte entry array record.
func DecodeEntryRecord(b []byte) (sliceNo int, pathOffset uint32, offset, size uint64) {
	_ = b[EntrySize-1]
	sliceNo = int(b[0])
	pathOffset = bytecodec.Uint24(b[1:4])
	offset = bytecodec.Uint48(b[4:10])
	size = bytecodec.Uint48(b[10:16])
	return
}

// PeekGeneration inspects the first 4 bytes of a directory or slice file
// and reports which generation wrote it, without otherwise decoding the
// record. It returns ok=false if the marker isn't recognised at all.
func PeekGeneration(marker [4]byte, wantSub bool) (gen Generation, ok bool) {
	prefix := string(marker[:3])
	want := mainMarker
	if wantSub {
		want = subMarker
	}
	if prefix != want {
		return 0, false
	}
	switch Generation(marker[3]) {
	case GFS1, GFS2, GFS3:
		return Generation(marker[3]), true
	default:
		return 0, false
	}
}

func errShortBuffer(what string, want, got int) error {
	return xerrors.Errorf("%s: need at least %d bytes, got %d", what, want, got)
}
