// Package gasfs implements an archive-and-slice file system: a builder
// that packs a tree of input files into a fixed set of equally-bounded
// container files ("slices") plus a directory/index file, and an extractor
// that verifies and materialises them back onto a filesystem.
package gasfs

import "fmt"

// Kind identifies which of the error categories in the design a failure
// belongs to, so callers can branch on it with errors.As instead of string
// matching.
type Kind int

const (
	_ Kind = iota
	KindIoError
	KindNotArchive
	KindArchiveCorrupt
	KindSliceMismatch
	KindSliceCrcMismatch
	KindPinnedEntryMissing
	KindSliceOverflow
	KindInsufficientSlices
	KindPathNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIoError:
		return "IoError"
	case KindNotArchive:
		return "NotArchive"
	case KindArchiveCorrupt:
		return "ArchiveCorrupt"
	case KindSliceMismatch:
		return "SliceMismatch"
	case KindSliceCrcMismatch:
		return "SliceCrcMismatch"
	case KindPinnedEntryMissing:
		return "PinnedEntryMissing"
	case KindSliceOverflow:
		return "SliceOverflow"
	case KindInsufficientSlices:
		return "InsufficientSlices"
	case KindPathNotFound:
		return "PathNotFound"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every fallible operation in
// this module. It carries the Kind from the design's error taxonomy plus a
// human-readable message and, where relevant, the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Path    string // offending input/slice path, if any
	Err     error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error of the given kind with a formatted message.
func NewError(k Kind, path string, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    k,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
		Err:     err,
	}
}
