package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CreateOptions carries creation hints. CompressionMode and
// ParallelCompression are accepted for compatibility and have no effect.
type CreateOptions struct {
	CompressionMode     string
	ParallelCompression bool
	TempDir             string
}

// containerWriter is implemented by zipWriter and tarWriter.
type containerWriter interface {
	addDir(name string, modTime time.Time) error
	addFile(name string, info fs.FileInfo, r io.Reader) error
	// copyFrom copies the entries of an existing archive for which keep
	// returns true and reports how many were skipped.
	copyFrom(path string, keep func(name string) bool) (int, error)
	Close() error
}

func newContainerWriter(out io.Writer, format Format) (containerWriter, error) {
	switch {
	case format == Zip:
		return newZipWriter(out), nil
	case format.IsTar():
		return newTarWriter(out, format)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// inputItem is one record to be written, resolved from the filesystem.
type inputItem struct {
	name string // archive name, "/"-separated, dirs end in "/"
	src  string
	info fs.FileInfo
}

// collectInputs expands inputs into archive records. A file is stored under
// its base name; a directory's contents are stored relative to the directory
// itself. Inputs that do not exist are skipped, but any error inside a
// directory input is returned. When two inputs produce the same name, the
// later one replaces the earlier record in place.
func collectInputs(inputs []string) ([]inputItem, error) {
	var items []inputItem
	seen := make(map[string]int)
	for _, input := range inputs {
		info, err := os.Stat(input)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", input, err)
		}

		base := filepath.Dir(input)
		if info.IsDir() {
			base = input
		}
		w := walker{base: base, visited: make(map[string]bool)}
		if err := w.walk(input, info); err != nil {
			return nil, err
		}
		for _, item := range w.items {
			if i, ok := seen[item.name]; ok {
				items[i] = item
				continue
			}
			seen[item.name] = len(items)
			items = append(items, item)
		}
	}
	return items, nil
}

type walker struct {
	base    string
	items   []inputItem
	visited map[string]bool
}

func (w *walker) walk(path string, info fs.FileInfo) error {
	rel, err := filepath.Rel(w.base, path)
	if err != nil {
		return fmt.Errorf("relative path for %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	if !info.IsDir() {
		// Sockets, devices and FIFOs cannot be archived as regular files.
		if info.Mode().IsRegular() {
			w.items = append(w.items, inputItem{name: rel, src: path, info: info})
		}
		return nil
	}

	// Symlinked directories are followed, but only once each.
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if w.visited[resolved] {
		return nil
	}
	w.visited[resolved] = true

	if rel != "." {
		w.items = append(w.items, inputItem{name: rel + "/", src: path, info: info})
	}

	children, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", path, err)
	}
	for _, child := range children {
		childPath := filepath.Join(path, child.Name())
		childInfo, err := os.Stat(childPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", childPath, err)
		}
		if err := w.walk(childPath, childInfo); err != nil {
			return err
		}
	}
	return nil
}

func writeItems(w containerWriter, items []inputItem) error {
	for _, item := range items {
		if item.info.IsDir() {
			if err := w.addDir(item.name, item.info.ModTime()); err != nil {
				return err
			}
			continue
		}

		f, err := os.Open(item.src)
		if err != nil {
			return fmt.Errorf("opening %s: %w", item.src, err)
		}
		err = w.addFile(item.name, item.info, f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Create writes a new archive at output containing inputs. The format follows
// the output name. On failure the partial output is removed.
func Create(output string, inputs []string, opts CreateOptions) (err error) {
	format := Detect(output)
	if format == Unknown {
		return fmt.Errorf("%s: %w", output, ErrUnsupportedFormat)
	}

	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	// Collect before creating output so an output inside an input directory
	// does not include itself.
	items, err := collectInputs(inputs)
	if err != nil {
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(output)
		}
	}()

	w, err := newContainerWriter(f, format)
	if err != nil {
		return err
	}
	if err := writeItems(w, items); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}

// Append adds inputs to the archive at path, replacing entries with the same
// name. A missing archive is created. The original is only replaced once the
// new archive is complete.
func Append(path string, inputs []string) error {
	format := Detect(path)
	if format == Unknown {
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	unlock := lockPath(path)
	defer unlock()

	items, err := collectInputs(inputs)
	if err != nil {
		return err
	}
	replaced := make(map[string]bool, len(items))
	for _, item := range items {
		replaced[item.name] = true
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	return rebuild(path, format, func(w containerWriter) error {
		if exists {
			if _, err := w.copyFrom(path, func(name string) bool { return !replaced[name] }); err != nil {
				return err
			}
		}
		return writeItems(w, items)
	})
}

// Remove rebuilds the archive at path without the entries whose names exactly
// match names, and returns how many entries were dropped. Removing a directory
// record does not remove the entries beneath it.
func Remove(path string, names []string) (int, error) {
	format := Detect(path)
	if format == Unknown {
		return 0, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	unlock := lockPath(path)
	defer unlock()

	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	remove := make(map[string]bool, len(names))
	for _, n := range names {
		remove[n] = true
	}

	var dropped int
	err := rebuild(path, format, func(w containerWriter) error {
		var err error
		dropped, err = w.copyFrom(path, func(name string) bool { return !remove[name] })
		return err
	})
	if err != nil {
		return 0, err
	}
	return dropped, nil
}
