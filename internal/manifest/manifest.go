// Package manifest is a reference implementation of the one collaborator
// spec.md declares out of scope: the INI-style configuration reader/writer
// that supplies global settings and path lists (spec.md §1, §6). The core
// builder/extractor only consume the typed Manifest this package produces;
// nothing downstream cares how it got there.
//
// No INI-parsing library appears anywhere in the retrieved corpus (the
// teacher and its siblings use JSON or protobuf text format for their own
// configuration), so this is hand-rolled line-oriented scanning code,
// grounded in the shape of the teacher's own config reader
// (pb.ReadBuildFile in pb/readbuild.go: slurp the whole file into a pooled
// buffer, then parse) rather than a stdlib fallback of convenience.
package manifest

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/xerrors"
)

// Manifest is the parsed form of a .gfi file.
type Manifest struct {
	Slices      int
	MaxSliceMiB uint32
	InputPaths  []string         // [Input] PathList
	Pinned      map[int][]string // section number -> PathList (may contain "****")
}

// PinnedToken marks a slice as receiving no free-fill entries
// (spec.md glossary: no_add_free_file).
const PinnedToken = "****"

var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// Load reads and parses a .gfi manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if _, err := buf.ReadFrom(f); err != nil {
		return nil, xerrors.Errorf("manifest: read %s: %w", path, err)
	}

	return Parse(buf.Bytes())
}

// pendingList accumulates a multi-line 'key=[[[[ ... ]]]]' value until its
// closing marker, then hands the collected lines to commit.
type pendingList struct {
	key    string
	lines  []string
	commit func([]string)
}

// Parse parses manifest source text. Syntax (spec.md §6): '#' comments,
// '[section]' headers, 'key=value' pairs, and multi-line
// 'key=[[[[ ... ]]]]' lists; trailing whitespace on values is trimmed.
func Parse(src []byte) (*Manifest, error) {
	m := &Manifest{Pinned: make(map[int][]string)}

	sc := bufio.NewScanner(bytes.NewReader(src))
	section := ""
	var pending *pendingList

	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if pending != nil {
			if idx := strings.Index(trimmed, "]]]]"); idx >= 0 {
				if v := strings.TrimSpace(trimmed[:idx]); v != "" {
					pending.lines = append(pending.lines, v)
				}
				pending.commit(pending.lines)
				pending = nil
				continue
			}
			if trimmed != "" {
				pending.lines = append(pending.lines, trimmed)
			}
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			continue
		}

		eq := strings.IndexByte(trimmed, '=')
		if eq < 0 {
			return nil, xerrors.Errorf("manifest: malformed line %q", line)
		}
		key := strings.TrimSpace(trimmed[:eq])
		val := strings.TrimRight(trimmed[eq+1:], " \t\r")

		commit, isList, err := destinationFor(m, section, key)
		if err != nil {
			return nil, err
		}

		if strings.HasPrefix(val, "[[[[") {
			if !isList {
				return nil, xerrors.Errorf("manifest: key %s in [%s] is not a list field", key, section)
			}
			rest := val[len("[[[["):]
			if idx := strings.Index(rest, "]]]]"); idx >= 0 {
				var lines []string
				if v := strings.TrimSpace(rest[:idx]); v != "" {
					lines = append(lines, v)
				}
				commit(lines)
				continue
			}
			var lines []string
			if v := strings.TrimSpace(rest); v != "" {
				lines = append(lines, v)
			}
			pending = &pendingList{key: key, lines: lines, commit: commit}
			continue
		}

		if isList {
			return nil, xerrors.Errorf("manifest: key %s in [%s] requires a [[[[ ... ]]]] list", key, section)
		}
		if err := setScalar(m, section, key, val); err != nil {
			return nil, xerrors.Errorf("manifest: section [%s] key %s: %w", section, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Errorf("manifest: scan: %w", err)
	}
	if pending != nil {
		return nil, xerrors.Errorf("manifest: unterminated list for key %s in [%s]", pending.key, section)
	}
	return m, nil
}

// destinationFor resolves (section, key) to a commit function that stores a
// parsed list's lines, and reports whether this key is list-typed.
func destinationFor(m *Manifest, section, key string) (commit func([]string), isList bool, err error) {
	switch {
	case section == "Global" && (key == "Slices" || key == "MaxSliceSize"):
		return nil, false, nil
	case section == "Input" && key == "PathList":
		return func(lines []string) { m.InputPaths = lines }, true, nil
	case key == "PathList":
		n, convErr := strconv.Atoi(section)
		if convErr != nil {
			return nil, false, xerrors.Errorf("manifest: section [%s] is not a pinned-slice number", section)
		}
		return func(lines []string) { m.Pinned[n] = lines }, true, nil
	default:
		return nil, false, xerrors.Errorf("manifest: unrecognised key %s in section [%s]", key, section)
	}
}

func setScalar(m *Manifest, section, key, val string) error {
	switch {
	case section == "Global" && key == "Slices":
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return err
		}
		m.Slices = n
		return nil
	case section == "Global" && key == "MaxSliceSize":
		n, err := strconv.ParseUint(strings.TrimSpace(val), 10, 32)
		if err != nil {
			return err
		}
		m.MaxSliceMiB = uint32(n)
		return nil
	default:
		return xerrors.Errorf("unrecognised scalar key %s in [%s]", key, section)
	}
}
