package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseScenarioA(t *testing.T) {
	src := `# Scenario A from the testable properties
[Global]
Slices=1
MaxSliceSize=1

[Input]
PathList=[[[[
a/
]]]]
`
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if m.Slices != 1 || m.MaxSliceMiB != 1 {
		t.Fatalf("Slices=%d MaxSliceMiB=%d, want 1, 1", m.Slices, m.MaxSliceMiB)
	}
	if diff := cmp.Diff([]string{"a/"}, m.InputPaths); diff != "" {
		t.Errorf("InputPaths mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScenarioBPinned(t *testing.T) {
	src := `[Global]
Slices=2
MaxSliceSize=4

[Input]
PathList=[[[[
pin.bin
free.bin
]]]]

[001]
PathList=[[[[
pin.bin
]]]]
`
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"pin.bin"}, m.Pinned[1]); diff != "" {
		t.Errorf("Pinned[1] mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScenarioCNoAddFreeFile(t *testing.T) {
	src := `[Global]
Slices=2
MaxSliceSize=4

[Input]
PathList=[[[[
a
b
c
]]]]

[002]
PathList=[[[[
****
]]]]
`
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{PinnedToken}, m.Pinned[2]); diff != "" {
		t.Errorf("Pinned[2] mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInlineSingleLineList(t *testing.T) {
	src := `[Global]
Slices=1
MaxSliceSize=1
[Input]
PathList=[[[[ only-one ]]]]
`
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"only-one"}, m.InputPaths); diff != "" {
		t.Errorf("InputPaths mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsUnterminatedList(t *testing.T) {
	src := `[Input]
PathList=[[[[
a/
`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("expected error for unterminated list")
	}
}

func TestParseRejectsUnknownKey(t *testing.T) {
	src := `[Global]
Bogus=1
`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("expected error for unrecognised key")
	}
}

func TestParseTrimsTrailingWhitespace(t *testing.T) {
	src := "[Global]\nSlices=1  \nMaxSliceSize=2\t\n"
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if m.Slices != 1 || m.MaxSliceMiB != 2 {
		t.Fatalf("got Slices=%d MaxSliceMiB=%d", m.Slices, m.MaxSliceMiB)
	}
}
