// Package archive lists, extracts, creates and edits archives on disk.
//
// It supports these formats, selected from the file name:
//   - ZIP (.zip)
//   - TAR (.tar)
//   - TAR+gzip (.tar.gz, .tgz)
//   - TAR+bzip2 (.tar.bz2, .tbz, .tbz2)
//   - TAR+xz (.tar.xz, .txz)
//
// Every operation is a single call that opens the archive, does its work and
// closes it again; nothing is cached between calls. Paths taken from archive
// entries are checked with ValidateExtractPath before anything is written, and
// in-place edits (Append, Remove) rebuild the archive beside the original and
// rename it into place only once the new copy is complete.
package archive

import (
	"strings"
	"time"
)

// EntryKind distinguishes files from directories in a listing.
type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// Entry describes one member of an archive.
type Entry struct {
	Name     string     `json:"name"`               // Base name
	Path     string     `json:"path"`               // Full path within archive
	Size     int64      `json:"size"`               // Declared uncompressed size in bytes
	Kind     EntryKind  `json:"type"`               // file or dir
	Modified *time.Time `json:"modified,omitempty"` // Modification time, if recorded
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}

// ListDir returns the entries directly inside dirPath. Directories that only
// exist implicitly (as a prefix of deeper entries) are synthesized once.
// Use "" or "/" for the archive root.
func ListDir(entries []Entry, dirPath string) []Entry {
	dirPath = normalizeDir(dirPath)
	var files []Entry

	// Track directories we've seen to avoid duplicates
	seenDirs := make(map[string]bool)

	for _, e := range entries {
		p := e.Path

		if isInDir(p, dirPath) {
			if e.IsDir() {
				key := strings.TrimSuffix(p, "/") + "/"
				if seenDirs[key] {
					continue
				}
				seenDirs[key] = true
			}
			files = append(files, e)
			continue
		}

		if dirPath == "" || strings.HasPrefix(p, dirPath) {
			rel := strings.TrimPrefix(p, dirPath)
			parts := strings.Split(strings.TrimSuffix(rel, "/"), "/")
			if len(parts) > 1 {
				subdir := dirPath + parts[0] + "/"
				if !seenDirs[subdir] {
					seenDirs[subdir] = true
					files = append(files, Entry{
						Path: subdir,
						Name: parts[0],
						Kind: KindDir,
					})
				}
			}
		}
	}

	return files
}

// normalizeDir normalizes directory path for consistent comparison.
func normalizeDir(dirPath string) string {
	dirPath = strings.TrimSpace(dirPath)
	dirPath = strings.Trim(dirPath, "/")
	if dirPath == "" {
		return ""
	}
	return dirPath + "/"
}

// isInDir checks if filePath is directly in dirPath (not in subdirectories).
func isInDir(filePath, dirPath string) bool {
	dirPath = normalizeDir(dirPath)

	filePath = strings.TrimSuffix(filePath, "/")

	if dirPath == "" {
		return !strings.Contains(filePath, "/")
	}

	if !strings.HasPrefix(filePath+"/", dirPath) {
		return false
	}

	rel := strings.TrimPrefix(filePath, strings.TrimSuffix(dirPath, "/"))
	rel = strings.TrimPrefix(rel, "/")

	// The directory's own record is not one of its children.
	if rel == "" {
		return false
	}

	return !strings.Contains(rel, "/")
}

func extractName(path string) string {
	path = strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
