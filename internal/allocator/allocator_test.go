package allocator

import (
	"testing"
	"time"

	"gasfs/internal/manifest"
	"gasfs/internal/traversal"
)

func files(specs map[string]int64) []traversal.InputFile {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]traversal.InputFile, 0, len(specs))
	for p, sz := range specs {
		out = append(out, traversal.InputFile{LogicalPath: p, Size: sz, ModTime: now})
	}
	return out
}

func TestScenarioA(t *testing.T) {
	res, err := Allocate(Input{
		SlicesCount:     1,
		MaxSliceSizeMiB: 1,
		Files:           files(map[string]int64{"a/x": 5, "a/y": 6}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Paths["a/x"].SliceNo != 1 || res.Paths["a/y"].SliceNo != 1 {
		t.Fatalf("both entries should land in slice 1: %+v", res.Paths)
	}
	if res.Slices[0].FilesCount != 2 {
		t.Fatalf("FilesCount = %d, want 2", res.Slices[0].FilesCount)
	}
	if res.Slices[0].TotalSize != 11 {
		t.Fatalf("TotalSize = %d, want 11", res.Slices[0].TotalSize)
	}
}

func TestScenarioBPinPrecedence(t *testing.T) {
	res, err := Allocate(Input{
		SlicesCount:     2,
		MaxSliceSizeMiB: 4,
		Files:           files(map[string]int64{"pin.bin": 3, "free.bin": 3}),
		Pinned:          map[int][]string{1: {"pin.bin"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Paths["pin.bin"].SliceNo != 1 {
		t.Errorf("pin.bin landed in slice %d, want 1", res.Paths["pin.bin"].SliceNo)
	}
	if res.Paths["free.bin"].SliceNo != 2 {
		t.Errorf("free.bin landed in slice %d, want 2", res.Paths["free.bin"].SliceNo)
	}
}

func TestScenarioCNoAddFreeFile(t *testing.T) {
	res, err := Allocate(Input{
		SlicesCount:     2,
		MaxSliceSizeMiB: 4,
		Files:           files(map[string]int64{"a": 1, "b": 1, "c": 1}),
		Pinned:          map[int][]string{2: {manifest.PinnedToken}},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"a", "b", "c"} {
		if res.Paths[p].SliceNo != 1 {
			t.Errorf("%s landed in slice %d, want 1", p, res.Paths[p].SliceNo)
		}
	}
	if res.Slices[1].FilesCount != 0 {
		t.Errorf("slice 2 FilesCount = %d, want 0", res.Slices[1].FilesCount)
	}
	if !res.Slices[1].NoAddFreeFile {
		t.Error("slice 2 NoAddFreeFile should be true")
	}
}

func TestPinnedEntryMissing(t *testing.T) {
	_, err := Allocate(Input{
		SlicesCount:     1,
		MaxSliceSizeMiB: 1,
		Files:           files(map[string]int64{"a": 1}),
		Pinned:          map[int][]string{1: {"nonexistent"}},
	})
	assertKind(t, err, "PinnedEntryMissing")
}

func TestSliceOverflow(t *testing.T) {
	_, err := Allocate(Input{
		SlicesCount:     1,
		MaxSliceSizeMiB: 1,
		Files:           files(map[string]int64{"big": 1 << 30}),
		Pinned:          map[int][]string{1: {"big"}},
	})
	assertKind(t, err, "SliceOverflow")
}

func TestInsufficientSlices(t *testing.T) {
	_, err := Allocate(Input{
		SlicesCount:     1,
		MaxSliceSizeMiB: 1,
		Files:           files(map[string]int64{"big": 1 << 30}),
	})
	assertKind(t, err, "InsufficientSlices")
}

func TestFreeFillRoundRobinDeterministic(t *testing.T) {
	in := Input{
		SlicesCount:     3,
		MaxSliceSizeMiB: 1,
		Files: files(map[string]int64{
			"f1": 100, "f2": 100, "f3": 100, "f4": 100, "f5": 100, "f6": 100,
		}),
	}
	r1, err := Allocate(in)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Allocate(in)
	if err != nil {
		t.Fatal(err)
	}
	for p, e1 := range r1.Paths {
		if e2 := r2.Paths[p]; e2.SliceNo != e1.SliceNo {
			t.Errorf("%s: slice %d vs %d across repeated runs", p, e1.SliceNo, e2.SliceNo)
		}
	}
}

func assertKind(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %s, got nil", want)
	}
	if got := err.Error(); len(got) < len(want) || got[:len(want)] != want {
		t.Fatalf("error %q does not start with kind %s", got, want)
	}
}
