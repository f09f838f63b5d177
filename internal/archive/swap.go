package archive

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempPath returns the sibling path used while rebuilding target:
// "a.zip" becomes "a.tmp.zip" and "a.tar.gz" becomes "a.tmp.tar.gz".
func TempPath(target string) string {
	base, suffix, _ := splitSuffix(target)
	return base + ".tmp" + suffix
}

// rebuild writes a new archive next to target using fill, then renames it over
// target. On any error the temp file is removed and target is untouched.
// A symlinked target is resolved first so the link keeps pointing at the
// rebuilt file.
func rebuild(target string, format Format, fill func(containerWriter) error) (err error) {
	if resolved, evalErr := filepath.EvalSymlinks(target); evalErr == nil {
		target = resolved
	}
	tmpPath := TempPath(target)

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w, err := newContainerWriter(f, format)
	if err != nil {
		return err
	}
	if err := fill(w); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing temp archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing temp archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp archive: %w", err)
	}

	if info, statErr := os.Stat(target); statErr == nil {
		if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
			return fmt.Errorf("setting permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("replacing archive: %w", err)
	}
	return nil
}
