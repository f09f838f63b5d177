package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// openZip opens a ZIP file. Names that archive/zip considers insecure are not
// an error here; every write target goes through ValidateExtractPath anyway.
func openZip(path string) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("opening zip: %w", err)
		}
		return nil, formatError("opening zip", err)
	}
	return r, nil
}

func listZip(path string) ([]Entry, error) {
	r, err := openZip(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, entryFromZip(f))
	}
	return entries, nil
}

func entryFromZip(f *zip.File) Entry {
	kind := KindFile
	if f.FileInfo().IsDir() {
		kind = KindDir
	}
	return Entry{
		Path:     f.Name,
		Name:     extractName(f.Name),
		Size:     int64(f.UncompressedSize64),
		Kind:     kind,
		Modified: timePtr(f.Modified),
	}
}

// findZipEntry looks up an entry by its exact stored name.
func findZipEntry(r *zip.Reader, name string) (*zip.File, error) {
	for _, f := range r.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
}

func extractZip(path, dest string) (int, error) {
	r, err := openZip(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	written := 0
	for _, f := range r.File {
		outPath, err := ValidateExtractPath(dest, f.Name)
		if err != nil {
			return written, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(outPath, 0755); err != nil {
				return written, fmt.Errorf("creating directory: %w", err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return written, formatError("opening "+f.Name, err)
		}
		err = writeFile(outPath, rc, f.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// zipWriter builds a ZIP container. Files are always deflated.
type zipWriter struct {
	w *zip.Writer
}

func newZipWriter(out io.Writer) *zipWriter {
	return &zipWriter{w: zip.NewWriter(out)}
}

func (z *zipWriter) addDir(name string, modTime time.Time) error {
	h := &zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modTime,
	}
	h.SetMode(fs.ModeDir | 0755)
	if _, err := z.w.CreateHeader(h); err != nil {
		return fmt.Errorf("adding directory %s: %w", name, err)
	}
	return nil
}

func (z *zipWriter) addFile(name string, info fs.FileInfo, r io.Reader) error {
	h := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	h.SetMode(0644)
	w, err := z.w.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("adding file %s: %w", name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("writing file %s: %w", name, err)
	}
	return nil
}

// copyFrom copies the entries of the ZIP at path without recompressing them,
// so surviving entries are byte-identical to the source.
func (z *zipWriter) copyFrom(path string, keep func(name string) bool) (int, error) {
	r, err := openZip(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	dropped := 0
	for _, f := range r.File {
		if !keep(f.Name) {
			dropped++
			continue
		}
		if err := z.w.Copy(f); err != nil {
			return dropped, formatError("copying "+f.Name, err)
		}
	}
	return dropped, nil
}

func (z *zipWriter) Close() error {
	return z.w.Close()
}
