package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gasfs/internal/gfsformat"
	"gasfs/internal/reader"
)

// writeInput creates a regular file with the given contents under dir,
// creating any parent directories needed, and backdates its mtime so tests
// can exercise the incremental engine's mtime comparisons deterministically.
func writeInput(t *testing.T, dir, rel, contents string, mtime time.Time) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(full, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

// TestScenarioA writes and finalises a one-slice archive from spec.md §8
// scenario A: files a/x="hello", a/y="world!" land in slice 1 with offsets
// 0 and 5.
func TestScenarioA(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	writeInput(t, dir, "a/x", "hello", when)
	writeInput(t, dir, "a/y", "world!", when)

	paths := gfsformat.PathMap{
		"a/x": {Path: "a/x", SliceNo: 1, Size: 5, LastModified: when},
		"a/y": {Path: "a/y", SliceNo: 1, Size: 6, LastModified: when},
	}

	base := filepath.Join(dir, "out")
	slice, err := WriteSlice(dir, base, 1, paths)
	if err != nil {
		t.Fatal(err)
	}
	if paths["a/x"].Offset != 0 || paths["a/x"].Size != 5 {
		t.Errorf("a/x = %+v, want offset 0 size 5", paths["a/x"])
	}
	if paths["a/y"].Offset != 5 || paths["a/y"].Size != 6 {
		t.Errorf("a/y = %+v, want offset 5 size 6", paths["a/y"])
	}
	if slice.TotalSize != 11 {
		t.Errorf("slice TotalSize = %d, want 11", slice.TotalSize)
	}
	if slice.FilesCount != 2 {
		t.Errorf("slice FilesCount = %d, want 2", slice.FilesCount)
	}

	if err := WriteDirectory(base, []gfsformat.Slice{slice}, paths, 1, when); err != nil {
		t.Fatal(err)
	}

	d, err := reader.ParseDirectory(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.VerifySlices(); err != nil {
		t.Fatal(err)
	}
	if err := d.VerifySliceData(1); err != nil {
		t.Fatal(err)
	}

	extractDir := t.TempDir()
	if err := d.Extract(reader.ExtractOptions{DestDir: extractDir, Prefixes: []string{"a/x"}}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(extractDir, "a", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("extracted a/x = %q, want %q", got, "hello")
	}
}

// TestRoundTripAllEntries is testable property 1 (spec.md §8): build then
// extract every entry and confirm the bytes match the inputs.
func TestRoundTripAllEntries(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)
	inputs := map[string]string{
		"docs/readme.txt": "hello there",
		"docs/license":    "all rights reserved",
		"bin/tool":        "\x00\x01\x02binary-ish\xff",
	}
	for p, c := range inputs {
		writeInput(t, dir, p, c, when)
	}

	paths := make(gfsformat.PathMap, len(inputs))
	for p, c := range inputs {
		paths[p] = gfsformat.Entry{Path: p, SliceNo: 1, Size: uint64(len(c)), LastModified: when}
	}

	base := filepath.Join(dir, "out")
	slice, err := WriteSlice(dir, base, 1, paths)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteDirectory(base, []gfsformat.Slice{slice}, paths, 8, when); err != nil {
		t.Fatal(err)
	}

	d, err := reader.ParseDirectory(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.VerifySlices(); err != nil {
		t.Fatal(err)
	}

	extractDir := t.TempDir()
	if err := d.Extract(reader.ExtractOptions{DestDir: extractDir}); err != nil {
		t.Fatal(err)
	}
	for p, want := range inputs {
		got, err := os.ReadFile(filepath.Join(extractDir, filepath.FromSlash(p)))
		if err != nil {
			t.Fatalf("read back %s: %v", p, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", p, got, want)
		}
	}
}

// TestCrcSoundness is testable property 2: flipping a byte in a slice's
// data region must make extraction fail with SliceCrcMismatch.
func TestCrcSoundness(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeInput(t, dir, "f", "some payload bytes", when)

	paths := gfsformat.PathMap{
		"f": {Path: "f", SliceNo: 1, Size: uint64(len("some payload bytes")), LastModified: when},
	}
	base := filepath.Join(dir, "out")
	slice, err := WriteSlice(dir, base, 1, paths)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteDirectory(base, []gfsformat.Slice{slice}, paths, 1, when); err != nil {
		t.Fatal(err)
	}

	slicePath := gfsformat.SliceFilename(base, 1)
	b, err := os.ReadFile(slicePath)
	if err != nil {
		t.Fatal(err)
	}
	b[gfsformat.SubHeaderSize] ^= 0xFF // flip a byte in the data region
	if err := os.WriteFile(slicePath, b, 0644); err != nil {
		t.Fatal(err)
	}

	d, err := reader.ParseDirectory(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.VerifySlices(); err != nil {
		t.Fatal(err)
	}
	err = d.VerifySliceData(1)
	if err == nil {
		t.Fatal("expected SliceCrcMismatch after flipping a data byte")
	}
	if got := err.Error(); len(got) < len("SliceCrcMismatch") || got[:len("SliceCrcMismatch")] != "SliceCrcMismatch" {
		t.Fatalf("error %q does not start with SliceCrcMismatch", got)
	}
}

// TestAllocationDeterminism is testable property 4: writing the same
// allocation into two different bases yields byte-identical directory
// files (which embed each slice's sub-header and CRC) modulo the embedded
// date, which here is held constant.
func TestAllocationDeterminism(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)
	writeInput(t, dir, "x", "abc", when)
	writeInput(t, dir, "y", "defg", when)

	build := func(base string) []byte {
		paths := gfsformat.PathMap{
			"x": {Path: "x", SliceNo: 1, Size: 3, LastModified: when},
			"y": {Path: "y", SliceNo: 1, Size: 4, LastModified: when},
		}
		slice, err := WriteSlice(dir, base, 1, paths)
		if err != nil {
			t.Fatal(err)
		}
		if err := WriteDirectory(base, []gfsformat.Slice{slice}, paths, 1, when); err != nil {
			t.Fatal(err)
		}
		b, err := os.ReadFile(gfsformat.SliceFilename(base, 0))
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	b1 := build(filepath.Join(dir, "one"))
	b2 := build(filepath.Join(dir, "two"))
	if len(b1) != len(b2) {
		t.Fatalf("directory lengths differ: %d vs %d", len(b1), len(b2))
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatalf("directory bytes differ at offset %d: %#02x vs %#02x", i, b1[i], b2[i])
		}
	}
}

// TestScenarioFPrefixFilterAcrossManyFiles is scenario F: an archive of
// 300 tiny files extracted with filter prefix "sub/" emits exactly those
// whose logical path begins with "sub/".
func TestScenarioFPrefixFilterAcrossManyFiles(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)

	paths := make(gfsformat.PathMap)
	wantExtracted := make(map[string]string)
	for i := 0; i < 200; i++ {
		p := fmtPath("root/file%03d", i)
		c := fmtPath("content-%03d", i)
		writeInput(t, dir, p, c, when)
		paths[p] = gfsformat.Entry{Path: p, SliceNo: 1, Size: uint64(len(c)), LastModified: when}
	}
	for i := 0; i < 100; i++ {
		p := fmtPath("sub/file%03d", i)
		c := fmtPath("sub-content-%03d", i)
		writeInput(t, dir, p, c, when)
		paths[p] = gfsformat.Entry{Path: p, SliceNo: 1, Size: uint64(len(c)), LastModified: when}
		wantExtracted[p] = c
	}

	base := filepath.Join(dir, "out")
	slice, err := WriteSlice(dir, base, 1, paths)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteDirectory(base, []gfsformat.Slice{slice}, paths, 64, when); err != nil {
		t.Fatal(err)
	}

	d, err := reader.ParseDirectory(base)
	if err != nil {
		t.Fatal(err)
	}
	extractDir := t.TempDir()
	if err := d.Extract(reader.ExtractOptions{DestDir: extractDir, Prefixes: []string{"sub/"}}); err != nil {
		t.Fatal(err)
	}

	for p, want := range wantExtracted {
		got, err := os.ReadFile(filepath.Join(extractDir, filepath.FromSlash(p)))
		if err != nil {
			t.Fatalf("read back %s: %v", p, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", p, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(extractDir, "root")); !os.IsNotExist(err) {
		t.Fatalf("root/* should not have been extracted, stat err = %v", err)
	}
}

func fmtPath(format string, i int) string {
	return fmt.Sprintf(format, i)
}
