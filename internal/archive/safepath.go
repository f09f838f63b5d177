package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateExtractPath resolves entryPath beneath dest and fails with
// ErrTraversal if the result could land outside dest.
//
// The check is lexical first: absolute paths are refused and ".." may only
// cancel a component that was already accepted. Then symlinks are resolved
// through the deepest part of each path that already exists, and the real
// path must still be inside the real destination.
func ValidateExtractPath(dest, entryPath string) (string, error) {
	if isAbsEntry(entryPath) {
		return "", fmt.Errorf("absolute paths not allowed: %s: %w", entryPath, ErrTraversal)
	}

	var parts []string
	for _, c := range strings.FieldsFunc(entryPath, isSeparator) {
		switch c {
		case ".":
		case "..":
			if len(parts) == 0 {
				return "", fmt.Errorf("%s escapes destination: %w", entryPath, ErrTraversal)
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, c)
		}
	}

	fullPath := filepath.Join(append([]string{dest}, parts...)...)

	destReal, err := realPath(dest)
	if err != nil {
		return fullPath, nil
	}
	// A link under dest that cannot be resolved is treated as hostile.
	fullReal, err := realPath(fullPath)
	if err != nil || !within(destReal, fullReal) {
		return "", fmt.Errorf("%s resolves outside destination: %w", entryPath, ErrTraversal)
	}

	return fullPath, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// isAbsEntry reports whether an archive-supplied name is rooted, either
// Unix-style or with a drive letter, regardless of the host OS.
func isAbsEntry(name string) bool {
	if name == "" {
		return false
	}
	if isSeparator(rune(name[0])) || filepath.IsAbs(name) {
		return true
	}
	if len(name) >= 2 && name[1] == ':' {
		c := name[0]
		return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
	}
	return false
}

// realPath resolves symlinks in the longest existing prefix of p and appends
// the components that do not exist yet.
func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var rest []string
	cur := abs
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}

// within reports whether target is root or a descendant of it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
