package manifest

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// ListingEntry is one line of the informational listing written by
// "mkgasfs --list" and "exgasfs --list": a snapshot of the archive's path ->
// (slice, offset, size) map in manifest-like syntax, for operator
// inspection. The listing is not
// re-fed into a build — it has no [Global]/[Input] sections — so writing
// it atomically with renameio (unlike the archive's own slice/directory
// files, see SPEC_FULL.md's DOMAIN STACK section) carries no risk of
// confusing incremental-build mtime comparisons.
type ListingEntry struct {
	Path    string
	SliceNo int
	Offset  uint64
	Size    uint64
}

// WriteListing atomically writes entries (in sorted-path order) to path as
// a "[NNN] path offset size" listing.
func WriteListing(path string, entries []ListingEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %d entries\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&buf, "[%03d] %s offset=%d size=%d\n", e.SliceNo, e.Path, e.Offset, e.Size)
	}

	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return xerrors.Errorf("manifest: write listing %s: %w", path, err)
	}
	return nil
}
