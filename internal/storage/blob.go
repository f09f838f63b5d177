package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

// Blob implements Storage using gocloud.dev/blob.
// Supports local filesystem (file://) and S3 (s3://) URLs.
// Archives are uploaded with a content type derived from their key.
type Blob struct {
	bucket *blob.Bucket
}

// OpenBucket opens a blob bucket from a URL.
//
// Supported URL schemes:
//   - file:///path/to/dir - Local filesystem storage
//   - s3://bucket-name - Amazon S3 (uses AWS_* environment variables)
//   - s3://bucket-name?region=us-east-1&endpoint=http://localhost:9000 - S3-compatible (MinIO, etc.)
//
// For local filesystem, the directory is created if it doesn't exist.
func OpenBucket(ctx context.Context, urlStr string) (*Blob, error) {
	// Handle file:// URLs specially to create the directory
	if strings.HasPrefix(urlStr, "file://") {
		parsed, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("parsing URL: %w", err)
		}

		path := parsed.Path
		if path == "" {
			path = parsed.Opaque
		}

		// Ensure directory exists
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}

		// fileblob requires an absolute path
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}

		urlStr = "file://" + absPath
	}

	bucket, err := blob.OpenBucket(ctx, urlStr)
	if err != nil {
		return nil, fmt.Errorf("opening bucket: %w", err)
	}

	return &Blob{bucket: bucket}, nil
}

func (b *Blob) Store(ctx context.Context, key string, r io.Reader) (int64, string, error) {
	// Compute hash while writing
	h := sha256.New()
	tee := io.TeeReader(r, h)

	opts := &blob.WriterOptions{ContentType: contentTypeFor(key)}
	w, err := b.bucket.NewWriter(ctx, key, opts)
	if err != nil {
		return 0, "", fmt.Errorf("creating writer: %w", err)
	}

	size, err := io.Copy(w, tee)
	if err != nil {
		_ = w.Close()
		return 0, "", fmt.Errorf("writing content: %w", err)
	}

	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("closing writer: %w", err)
	}

	hash := hex.EncodeToString(h.Sum(nil))
	return size, hash, nil
}

func (b *Blob) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return exists, nil
}

func (b *Blob) Close() error {
	return b.bucket.Close()
}

// contentTypeFor maps an archive key to its media type. Unknown keys are left
// empty so the bucket sniffs the content.
func contentTypeFor(key string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return "application/zip"
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"), strings.HasSuffix(lower, ".tbz"):
		return "application/x-bzip2"
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return "application/x-xz"
	case strings.HasSuffix(lower, ".tar"):
		return "application/x-tar"
	}
	return ""
}
