// Package capsule exposes the archive operations used by the command line and
// the HTTP API. Each call is logged and recorded in the metrics package; the
// archive work itself is done by internal/archive.
package capsule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wayrou/Capsule/internal/archive"
	"github.com/wayrou/Capsule/internal/config"
	"github.com/wayrou/Capsule/internal/metrics"
	"github.com/wayrou/Capsule/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ErrNoExportTarget is returned by ExportArchive when no bucket URL was given
// and none is configured.
var ErrNoExportTarget = errors.New("no export bucket configured")

// ErrExportExists is returned by ExportArchive when the key is already taken
// and overwrite was not requested.
var ErrExportExists = errors.New("export key already exists")

// DefaultConcurrency bounds how many archives OpenArchives lists at once.
const DefaultConcurrency = 4

// Bucket is the export destination.
type Bucket interface {
	storage.Storage
	Close() error
}

// BucketOpener opens an export bucket from a URL.
type BucketOpener func(ctx context.Context, url string) (Bucket, error)

func openBlobBucket(ctx context.Context, url string) (Bucket, error) {
	b, err := storage.OpenBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Logger              *slog.Logger
	PreviewLimits       archive.PreviewLimits
	TempDir             string
	CompressionMode     string
	ParallelCompression bool
	ExportURL           string
	Concurrency         int
	OpenBucket          BucketOpener
}

// Service runs archive operations.
type Service struct {
	logger      *slog.Logger
	limits      archive.PreviewLimits
	tempDir     string
	create      archive.CreateOptions
	exportURL   string
	concurrency int
	openBucket  BucketOpener
}

// New creates a Service.
func New(opts Options) *Service {
	s := &Service{
		logger:      opts.Logger,
		limits:      opts.PreviewLimits,
		tempDir:     opts.TempDir,
		exportURL:   opts.ExportURL,
		concurrency: opts.Concurrency,
		openBucket:  opts.OpenBucket,
		create: archive.CreateOptions{
			CompressionMode:     opts.CompressionMode,
			ParallelCompression: opts.ParallelCompression,
			TempDir:             opts.TempDir,
		},
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.limits == (archive.PreviewLimits{}) {
		s.limits = archive.DefaultPreviewLimits()
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.openBucket == nil {
		s.openBucket = openBlobBucket
	}
	return s
}

// NewFromConfig creates a Service from a validated configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	limits, err := PreviewLimitsFromConfig(cfg.Preview)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Logger:              logger,
		PreviewLimits:       limits,
		TempDir:             cfg.TempDir,
		CompressionMode:     cfg.Create.CompressionMode,
		ParallelCompression: cfg.Create.ParallelCompression,
		ExportURL:           cfg.Export.URL,
	}), nil
}

// PreviewLimitsFromConfig converts configured sizes into preview limits.
func PreviewLimitsFromConfig(pc config.PreviewConfig) (archive.PreviewLimits, error) {
	read, err := config.ParseSize(pc.MaxReadSize)
	if err != nil {
		return archive.PreviewLimits{}, fmt.Errorf("preview.max_read_size: %w", err)
	}
	text, err := config.ParseSize(pc.MaxTextSize)
	if err != nil {
		return archive.PreviewLimits{}, fmt.Errorf("preview.max_text_size: %w", err)
	}
	bin, err := config.ParseSize(pc.MaxBinarySize)
	if err != nil {
		return archive.PreviewLimits{}, fmt.Errorf("preview.max_binary_size: %w", err)
	}
	return archive.PreviewLimits{MaxRead: read, MaxText: int(text), MaxBinary: int(bin)}, nil
}

// PreviewLimits returns the limits applied to previews.
func (s *Service) PreviewLimits() archive.PreviewLimits {
	return s.limits
}

// observe logs and records one operation. It returns err unchanged.
func (s *Service) observe(op, path string, start time.Time, err error, attrs ...any) error {
	duration := time.Since(start)
	format := archive.Detect(path).String()

	args := append([]any{"op", op, "path", path, "duration", duration}, attrs...)
	if err != nil {
		kind := archive.KindOf(err)
		if kind == archive.KindTraversal {
			metrics.RecordTraversalRejection()
		}
		metrics.RecordOperation(op, format, string(kind), duration)
		s.logger.Error("operation failed", append(args, "kind", kind, "error", err)...)
		return err
	}
	metrics.RecordOperation(op, format, "", duration)
	s.logger.Info("operation complete", args...)
	return nil
}

func (s *Service) begin(op, path string) time.Time {
	metrics.IncrementActiveOperations()
	s.logger.Debug("operation started", "op", op, "path", path)
	return time.Now()
}

func (s *Service) end() {
	metrics.DecrementActiveOperations()
}

// OpenArchive lists every entry of the archive at path.
func (s *Service) OpenArchive(path string) ([]archive.Entry, error) {
	start := s.begin("list", path)
	defer s.end()

	entries, err := archive.List(path)
	if err == nil {
		metrics.RecordEntries("list", len(entries))
	}
	return entries, s.observe("list", path, start, err, "entries", len(entries))
}

// OpenArchives lists several archives concurrently. The first failure cancels
// the remaining listings and is returned.
func (s *Service) OpenArchives(ctx context.Context, paths []string) (map[string][]archive.Entry, error) {
	var mu sync.Mutex
	results := make(map[string][]archive.Entry, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := s.OpenArchive(p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			mu.Lock()
			results[p] = entries
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BrowseArchive lists the direct children of dir inside the archive.
func (s *Service) BrowseArchive(path, dir string) ([]archive.Entry, error) {
	start := s.begin("browse", path)
	defer s.end()

	entries, err := archive.List(path)
	var children []archive.Entry
	if err == nil {
		children = archive.ListDir(entries, dir)
	}
	return children, s.observe("browse", path, start, err, "dir", dir, "entries", len(children))
}

// ExtractArchive writes every entry of the archive beneath dest.
func (s *Service) ExtractArchive(path, dest string) error {
	start := s.begin("extract", path)
	defer s.end()

	n, err := archive.ExtractAll(path, dest)
	metrics.RecordEntries("extract", n)
	return s.observe("extract", path, start, err, "dest", dest, "files", n)
}

// CreateZipArgs holds the arguments to CreateZipArchive. Despite the name,
// the output format follows OutputPath's extension.
type CreateZipArgs struct {
	OutputPath          string   `json:"outputPath"`
	InputPaths          []string `json:"inputPaths"`
	CompressionMode     string   `json:"compressionMode,omitempty"`
	ParallelCompression bool     `json:"parallelCompression,omitempty"`
	TempDir             string   `json:"tempDir,omitempty"`
}

// CreateZipArchive creates a new archive from the input paths.
func (s *Service) CreateZipArchive(args CreateZipArgs) error {
	start := s.begin("create", args.OutputPath)
	defer s.end()

	opts := s.create
	if args.CompressionMode != "" {
		opts.CompressionMode = args.CompressionMode
	}
	if args.ParallelCompression {
		opts.ParallelCompression = true
	}
	if args.TempDir != "" {
		opts.TempDir = args.TempDir
	}
	s.logger.Debug("creation hints have no effect",
		"compression_mode", opts.CompressionMode,
		"parallel_compression", opts.ParallelCompression)

	err := archive.Create(args.OutputPath, args.InputPaths, opts)
	return s.observe("create", args.OutputPath, start, err, "inputs", len(args.InputPaths))
}

// AddFilesToZip adds files and directories to an existing archive, creating
// it if needed.
func (s *Service) AddFilesToZip(zipPath string, files []string) error {
	start := s.begin("add", zipPath)
	defer s.end()

	err := archive.Append(zipPath, files)
	return s.observe("add", zipPath, start, err, "inputs", len(files))
}

// RemoveFilesFromZip removes the named entries from an archive and returns
// how many were dropped. Names that match nothing are not an error.
func (s *Service) RemoveFilesFromZip(zipPath string, entryNames []string) (int, error) {
	start := s.begin("remove", zipPath)
	defer s.end()

	n, err := archive.Remove(zipPath, entryNames)
	if err == nil {
		metrics.RecordEntries("remove", n)
	}
	return n, s.observe("remove", zipPath, start, err, "requested", len(entryNames), "removed", n)
}

// CopyFile copies a file, keeping its permission bits.
func (s *Service) CopyFile(src, dest string) error {
	start := s.begin("copy", src)
	defer s.end()

	n, err := archive.CopyFile(src, dest)
	metrics.RecordBytes("copy", n)
	return s.observe("copy", src, start, err, "dest", dest, "bytes", n)
}

// GetFileSize returns the size of a file in bytes.
func (s *Service) GetFileSize(path string) (int64, error) {
	size, err := archive.FileSize(path)
	if err != nil {
		s.logger.Debug("stat failed", "path", path, "error", err)
	}
	return size, err
}

// PreviewArchiveEntry returns a bounded preview of one archive entry.
func (s *Service) PreviewArchiveEntry(archivePath, entryPath string) (*archive.PreviewResult, error) {
	start := s.begin("preview", archivePath)
	defer s.end()

	res, err := archive.Preview(archivePath, entryPath, s.limits)
	if err != nil {
		return nil, s.observe("preview", archivePath, start, err, "entry", entryPath)
	}
	metrics.RecordPreview(string(res.Kind), res.Truncated)
	metrics.RecordBytes("preview", int64(len(res.Data))+int64(textLen(res.Text)))
	return res, s.observe("preview", archivePath, start, nil,
		"entry", entryPath, "kind", res.Kind, "truncated", res.Truncated)
}

func textLen(s *string) int {
	if s == nil {
		return 0
	}
	return len(*s)
}

// ExtractEntryToTemp writes one entry to tempDir, or to the configured temp
// directory when tempDir is empty, and returns the file's path.
func (s *Service) ExtractEntryToTemp(archivePath, entryPath, tempDir string) (string, error) {
	start := s.begin("extract_entry", archivePath)
	defer s.end()

	if tempDir == "" {
		tempDir = s.tempDir
	}
	out, err := archive.ExtractEntryToTemp(archivePath, entryPath, tempDir)
	return out, s.observe("extract_entry", archivePath, start, err, "entry", entryPath, "output", out)
}

// ExportResult describes an uploaded archive.
type ExportResult struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// ExportArchive uploads the file at path to a blob bucket. An empty bucketURL
// uses the configured export URL; an empty key uses the file's base name.
// An existing object at key is only replaced when overwrite is set.
func (s *Service) ExportArchive(ctx context.Context, path, bucketURL, key string, overwrite bool) (*ExportResult, error) {
	start := s.begin("export", path)
	defer s.end()

	res, err := s.export(ctx, path, bucketURL, key, overwrite)
	if err != nil {
		if !errors.Is(err, ErrExportExists) {
			metrics.RecordStorageError("export")
		}
		return nil, s.observe("export", path, start, err, "bucket", bucketURL)
	}
	metrics.RecordBytes("export", res.Size)
	metrics.RecordStorageOperation("export", time.Since(start))
	return res, s.observe("export", path, start, nil, "bucket", res.Bucket, "key", res.Key, "size", res.Size)
}

func (s *Service) export(ctx context.Context, path, bucketURL, key string, overwrite bool) (*ExportResult, error) {
	if bucketURL == "" {
		bucketURL = s.exportURL
	}
	if bucketURL == "" {
		return nil, ErrNoExportTarget
	}
	if key == "" {
		key = storage.ExportKey("", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	bucket, err := s.openBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = bucket.Close() }()

	if !overwrite {
		exists, err := bucket.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", key, err)
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", key, ErrExportExists)
		}
	}

	size, hash, err := bucket.Store(ctx, key, f)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}
	return &ExportResult{Bucket: bucketURL, Key: key, Size: size, SHA256: hash}, nil
}
