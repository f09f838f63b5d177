package archive

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestExtractEntryToTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	writeTestZip(t, path, []testFile{{"docs/sub/guide.md", "# Guide"}})

	tempDir := filepath.Join(dir, "tmp", "nested")
	out, err := ExtractEntryToTemp(path, "docs/sub/guide.md", tempDir)
	if err != nil {
		t.Fatalf("ExtractEntryToTemp failed: %v", err)
	}
	if want := filepath.Join(tempDir, "docs_sub_guide.md"); out != want {
		t.Errorf("path = %q, want %q", out, want)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "# Guide" {
		t.Errorf("content = %q, %v", data, err)
	}
}

func TestExtractEntryToTempErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	writeTestZip(t, path, []testFile{{"x.txt", "x"}})

	if _, err := ExtractEntryToTemp(path, "missing", dir); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("missing entry: err = %v, want ErrEntryNotFound", err)
	}
	if _, err := ExtractEntryToTemp(filepath.Join(dir, "a.tar.gz"), "x.txt", dir); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("tar.gz: err = %v, want ErrUnsupportedOperation", err)
	}
}

func TestFlattenName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"file.txt", "file.txt"},
		{"a/b/c.txt", "a_b_c.txt"},
		{`a\b.txt`, "a_b.txt"},
		{"../x", ".._x"},
	}
	for _, tt := range tests {
		if got := flattenName(tt.in); got != tt.expected {
			t.Errorf("flattenName(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	if err := os.WriteFile(src, []byte("#!/bin/sh\necho hi\n"), 0750); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "dest.sh")

	n, err := CopyFile(src, dest)
	if err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if n != 18 {
		t.Errorf("copied %d bytes, want 18", n)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0750 {
		t.Errorf("mode = %v, want 0750", info.Mode().Perm())
	}

	if _, err := CopyFile(filepath.Join(dir, "missing"), dest); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing source: err = %v, want ErrNotExist", err)
	}
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 1234)), 0644); err != nil {
		t.Fatal(err)
	}
	size, err := FileSize(path)
	if err != nil || size != 1234 {
		t.Errorf("FileSize = %d, %v; want 1234", size, err)
	}
	if _, err := FileSize(filepath.Join(dir, "missing")); KindOf(err) != KindIO {
		t.Errorf("missing file: KindOf = %q, want io", KindOf(err))
	}
}

func TestLockPathSerializes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")

	unlock := lockPath(path)
	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		// A different spelling of the same path shares the lock.
		release := lockPath(filepath.Join(dir, "sub", "..", "a.zip"))
		close(acquired)
		release()
		close(done)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second lock never acquired")
	}
	<-done

	pathLocks.Lock()
	n := len(pathLocks.m)
	pathLocks.Unlock()
	if n != 0 {
		t.Errorf("%d lock entries left after release", n)
	}
}

func TestConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.zip")
	writeTestZip(t, path, []testFile{{"base.txt", "base"}})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		name := filepath.Join(dir, string(rune('a'+i))+".txt")
		if err := os.WriteFile(name, []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- Append(path, []string{name})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Append failed: %v", err)
		}
	}

	if got := len(entryPaths(t, path)); got != workers+1 {
		t.Errorf("archive has %d entries, want %d", got, workers+1)
	}
}
