// Package bytecodec implements the fixed-width little-endian integer
// packing and BCD date packing used throughout the on-disk GASFS format.
//
// Every field is an unsigned, zero-extended, little-endian byte string of a
// fixed width (1, 3, 4, 6 or 8 bytes). Signed interpretation never appears
// on disk. Writers mask each byte with (value >> (8*i)) & 0xFF; readers
// zero-extend. Overflow (a value too large for its declared field width) is
// a programming error here, not a runtime one — callers validate sizes
// before they reach the codec (see internal/allocator).
package bytecodec

import "time"

// PutUint24 writes the low 24 bits of v into b[0:3], little-endian.
func PutUint24(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// Uint24 reads a 3-byte little-endian unsigned integer from b[0:3].
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// PutUint48 writes the low 48 bits of v into b[0:6], little-endian.
func PutUint48(b []byte, v uint64) {
	_ = b[5]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
}

// Uint48 reads a 6-byte little-endian unsigned integer from b[0:6].
func Uint48(b []byte) uint64 {
	_ = b[5]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32 | uint64(b[5])<<40
}

// bcdByte packs a two-digit decimal value (0-99) into one BCD byte.
func bcdByte(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}

// unbcdByte unpacks one BCD byte into its two-digit decimal value.
func unbcdByte(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// PutBCDDate packs t (interpreted in UTC) into the 7-byte BCD layout
// YY YY MM DD hh mm ss, e.g. 2021-04-07 18:45:01 -> 20 21 04 07 18 45 01.
func PutBCDDate(b []byte, t time.Time) {
	_ = b[6]
	u := t.UTC()
	year := u.Year()
	b[0] = bcdByte(year / 100)
	b[1] = bcdByte(year % 100)
	b[2] = bcdByte(int(u.Month()))
	b[3] = bcdByte(u.Day())
	b[4] = bcdByte(u.Hour())
	b[5] = bcdByte(u.Minute())
	b[6] = bcdByte(u.Second())
}

// BCDDate unpacks the 7-byte BCD layout into a UTC time.Time.
func BCDDate(b []byte) time.Time {
	_ = b[6]
	year := unbcdByte(b[0])*100 + unbcdByte(b[1])
	month := unbcdByte(b[2])
	day := unbcdByte(b[3])
	hour := unbcdByte(b[4])
	min := unbcdByte(b[5])
	sec := unbcdByte(b[6])
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}
