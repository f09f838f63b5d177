package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile copies src to dest, carrying over the permission bits, and returns
// the number of bytes copied. An existing dest is overwritten.
func CopyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("copying %s: %w", src, &fs.PathError{Op: "copy", Path: src, Err: errors.New("is a directory")})
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("closing destination: %w", err)
	}
	// OpenFile only applies the mode to new files.
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return n, fmt.Errorf("setting permissions: %w", err)
	}
	return n, nil
}

// FileSize returns the size of the file at path in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return info.Size(), nil
}

// writeFile streams r into a new file at path, creating parent directories.
// Failures reading r are reported as format errors since r is always an
// archive entry.
func writeFile(path string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := copyData(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// copyData copies src to dst, marking errors from src as format errors.
func copyData(dst io.Writer, src io.Reader) error {
	sr := &sourceReader{r: src}
	_, err := io.Copy(dst, sr)
	if err != nil && sr.err != nil {
		return formatError("decoding entry", err)
	}
	return err
}

type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
