// Command exgasfs extracts entries from a GASFS archive, per spec.md §6's
// Extractor CLI.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"gasfs/internal/gfsformat"
	"gasfs/internal/manifest"
	"gasfs/internal/reader"
)

const exgasfsHelp = `exgasfs <input_000.gfs> [filters...] [-extract dir] [-slice N] [-list out.gfi] [-skipcheckcrc] [-verbose]

Extract entries from a GASFS archive whose logical path begins with any of
the given filters (no filters means everything).
`

func usage(fset *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, exgasfsHelp)
		fmt.Fprintf(os.Stderr, "Flags for %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

func funcmain() error {
	fset := flag.NewFlagSet("exgasfs", flag.ExitOnError)
	var (
		extractDir   = fset.String("extract", ".", "destination directory for extracted files")
		sliceFlag    = fset.Int("slice", 0, "restrict extraction to this slice number (0 means all slices)")
		list         = fset.String("list", "", "write a listing of the archive's entries to this path instead of extracting")
		skipCheckCrc = fset.Bool("skipcheckcrc", false, "skip per-slice CRC verification before extraction")
		verbose      = fset.Bool("verbose", false, "log each extracted entry")
	)
	fset.Usage = usage(fset)
	fset.Parse(os.Args[1:])

	if fset.NArg() < 1 {
		fset.Usage()
		os.Exit(2)
	}
	args := fset.Args()
	archiveArg, filters := args[0], args[1:]

	// spec.md §9 flags the original --slice parser as a bug: it ran
	// strconv.Atoi("-slice") on the flag's own literal name instead of the
	// following argument, always yielding 0 (i.e. "all slices"). Go's flag
	// package parses -slice's value correctly by construction, so that bug
	// has no analogue here; *sliceFlag already holds argv[i+1]'s value.
	base := strings.TrimSuffix(archiveArg, "_000.gfs")

	return extract(base, filters, *extractDir, *sliceFlag, *list, *skipCheckCrc, *verbose)
}

func extract(base string, filters []string, extractDir string, sliceFilter int, listPath string, skipCheckCrc, verbose bool) error {
	dir, err := reader.ParseDirectory(base)
	if err != nil {
		return xerrors.Errorf("parse directory: %w", err)
	}
	dir.Global.SkipCheckCrc = skipCheckCrc

	if err := dir.VerifySlices(); err != nil {
		return xerrors.Errorf("verify slices: %w", err)
	}

	if listPath != "" {
		entries := make([]manifest.ListingEntry, 0, len(dir.Global.Paths))
		for _, p := range dir.Global.Paths.SortedPaths() {
			e := dir.Global.Paths[p]
			entries = append(entries, manifest.ListingEntry{
				Path:    e.Path,
				SliceNo: e.SliceNo,
				Offset:  e.Offset,
				Size:    e.Size,
			})
		}
		return manifest.WriteListing(listPath, entries)
	}

	// With a slice filter, extract from a copy of the directory whose path
	// map holds only that slice's matching entries, so that prefixes can
	// never pull in entries of other slices.
	src := dir
	prefixes := filters
	if sliceFilter != 0 {
		narrowed := *dir
		narrowed.Global.Paths = make(gfsformat.PathMap)
		for _, p := range filterToSlice(dir, filters, sliceFilter) {
			narrowed.Global.Paths[p] = dir.Global.Paths[p]
		}
		src = &narrowed
		prefixes = nil
	}

	if verbose {
		for _, p := range dir.Global.Paths.SortedPaths() {
			e := dir.Global.Paths[p]
			if !reader.MatchesAnyPrefix(e.Path, filters) {
				continue
			}
			if sliceFilter != 0 && e.SliceNo != sliceFilter {
				continue
			}
			verboseLog("extracting %s (slice %03d, %d bytes)", e.Path, e.SliceNo, e.Size)
		}
	}

	return src.Extract(reader.ExtractOptions{
		DestDir:      extractDir,
		Prefixes:     prefixes,
		SkipCheckCrc: dir.Global.SkipCheckCrc,
		RestoreMtime: true,
	})
}

// filterToSlice narrows the caller's path-prefix filters down to only the
// paths that both match a filter and live in slice sliceFilter, since
// reader.Directory.Extract filters on path prefix only.
func filterToSlice(dir *reader.Directory, filters []string, sliceFilter int) []string {
	var out []string
	for _, p := range dir.Global.Paths.SortedPaths() {
		e := dir.Global.Paths[p]
		if e.SliceNo != sliceFilter {
			continue
		}
		if !reader.MatchesAnyPrefix(e.Path, filters) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func verboseLog(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		log.Printf("\x1b[32m%s\x1b[0m", msg)
		return
	}
	log.Printf("%s", msg)
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
