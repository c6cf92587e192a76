package bytecodec

import (
	"testing"
	"time"
)

func TestUint24RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xFF, 0xFFFF, 0xFFFFFF} {
		b := make([]byte, 3)
		PutUint24(b, v)
		if got := Uint24(b); got != v {
			t.Errorf("Uint24(PutUint24(%d)) = %d", v, got)
		}
	}
}

func TestUint48RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xFF, 0xFFFFFFFF, 0xFFFFFFFFFFFF} {
		b := make([]byte, 6)
		PutUint48(b, v)
		if got := Uint48(b); got != v {
			t.Errorf("Uint48(PutUint48(%d)) = %d", v, got)
		}
	}
}

func TestBCDDate(t *testing.T) {
	// Scenario D from the testable properties.
	tm := time.Date(2021, time.April, 7, 18, 45, 1, 0, time.UTC)
	b := make([]byte, 7)
	PutBCDDate(b, tm)
	want := []byte{0x20, 0x21, 0x04, 0x07, 0x18, 0x45, 0x01}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("PutBCDDate(%v) = % x, want % x", tm, b, want)
		}
	}
	if got := BCDDate(b); !got.Equal(tm) {
		t.Errorf("BCDDate(% x) = %v, want %v", b, got, tm)
	}
}

func TestBCDDateRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(1999, time.December, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2099, time.June, 15, 12, 30, 45, 0, time.UTC),
	}
	for _, tm := range times {
		b := make([]byte, 7)
		PutBCDDate(b, tm)
		if got := BCDDate(b); !got.Equal(tm) {
			t.Errorf("round trip of %v = %v", tm, got)
		}
	}
}
