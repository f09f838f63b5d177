package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned for malformed containers and decoder failures.
	ErrFormat = errors.New("invalid archive")

	// ErrUnsupportedFormat is returned when the file name does not map to a
	// known format. It wraps ErrFormat.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported archive format", ErrFormat)

	// ErrTraversal is returned when an entry path would resolve outside the
	// destination directory.
	ErrTraversal = errors.New("path traversal detected")

	// ErrEntryNotFound is returned when a named entry is absent.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrUnsupportedOperation is returned when an operation is not available
	// for the archive's format.
	ErrUnsupportedOperation = errors.New("operation not supported for this format")
)

// ErrorKind classifies errors returned by this package.
type ErrorKind string

const (
	KindIO          ErrorKind = "io"
	KindFormat      ErrorKind = "format"
	KindTraversal   ErrorKind = "traversal"
	KindNotFound    ErrorKind = "not_found"
	KindUnsupported ErrorKind = "unsupported"
)

// KindOf returns the kind of err. Errors that carry none of this package's
// sentinels are I/O failures.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTraversal):
		return KindTraversal
	case errors.Is(err, ErrEntryNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupportedOperation):
		return KindUnsupported
	case errors.Is(err, ErrFormat):
		return KindFormat
	default:
		return KindIO
	}
}

// formatError marks err as a container or codec failure.
func formatError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrFormat, what, err)
}

func unsupported(op string, f Format) error {
	return fmt.Errorf("%s for %s archives: %w", op, f, ErrUnsupportedOperation)
}
