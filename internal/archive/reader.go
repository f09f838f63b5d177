package archive

import (
	"fmt"
	"io"
)

// List returns every entry of the archive at path in physical order. Any
// decode failure aborts the listing; partial results are never returned.
func List(path string) ([]Entry, error) {
	format := Detect(path)
	switch {
	case format == Zip:
		return listZip(path)
	case format.IsTar():
		return listTar(path, format)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// ReadEntry reads up to maxBytes of the named ZIP entry. It returns the bytes
// read and the entry's declared uncompressed size.
func ReadEntry(path, entryPath string, maxBytes int64) ([]byte, int64, error) {
	format := Detect(path)
	if format == Unknown {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if format != Zip {
		return nil, 0, unsupported("reading entries", format)
	}

	r, err := openZip(path)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	f, err := findZipEntry(&r.Reader, entryPath)
	if err != nil {
		return nil, 0, err
	}
	size := int64(f.UncompressedSize64)

	rc, err := f.Open()
	if err != nil {
		return nil, size, formatError("opening "+entryPath, err)
	}
	defer rc.Close()

	n := min(size, maxBytes)
	if n < 0 {
		n = 0
	}
	data, err := io.ReadAll(io.LimitReader(rc, n))
	if err != nil {
		return nil, size, formatError("reading "+entryPath, err)
	}
	return data, size, nil
}
