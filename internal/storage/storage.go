// Package storage provides the bucket backend that archives are exported to.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// Storage defines the interface for export storage backends.
type Storage interface {
	// Store writes content from r to the given key.
	// Returns the number of bytes written and the SHA256 hash of the content.
	Store(ctx context.Context, key string, r io.Reader) (size int64, hash string, err error)

	// Exists returns true if content exists at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// ExportKey builds the object key for an exported archive.
// Format: {prefix}/{filename}, or just {filename} without a prefix.
func ExportKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}
