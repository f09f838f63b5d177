package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/wayrou/Capsule/internal/archive"
	"github.com/wayrou/Capsule/internal/capsule"
	"github.com/wayrou/Capsule/internal/config"
	"github.com/wayrou/Capsule/internal/server"
)

func runList(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("list", "[flags] ARCHIVE...", &common)
	asJSON := fs.Bool("json", false, "Output as JSON")
	paths, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}

	if len(paths) == 1 {
		entries, err := svc.OpenArchive(paths[0])
		if err != nil {
			return err
		}
		if *asJSON {
			return outputJSON(stdout, entries)
		}
		outputEntries(stdout, entries)
		return nil
	}

	results, err := svc.OpenArchives(context.Background(), paths)
	if err != nil {
		return err
	}
	if *asJSON {
		return outputJSON(stdout, results)
	}
	sort.Strings(paths)
	for i, p := range paths {
		if i > 0 {
			_, _ = fmt.Fprintln(stdout)
		}
		_, _ = fmt.Fprintf(stdout, "%s:\n", p)
		outputEntries(stdout, results[p])
	}
	return nil
}

func runBrowse(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("browse", "[flags] ARCHIVE [DIR]", &common)
	asJSON := fs.Bool("json", false, "Output as JSON")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	dir := ""
	if len(rest) > 1 {
		dir = rest[1]
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}

	entries, err := svc.BrowseArchive(rest[0], dir)
	if err != nil {
		return err
	}
	if *asJSON {
		return outputJSON(stdout, entries)
	}
	outputEntries(stdout, entries)
	return nil
}

func runExtract(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("extract", "[flags] ARCHIVE DEST", &common)
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	return svc.ExtractArchive(rest[0], rest[1])
}

func runCreate(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("create", "[flags] OUTPUT INPUT...", &common)
	mode := fs.String("compression", "", "Compression hint: fast, normal, best")
	parallel := fs.Bool("parallel", false, "Request parallel compression")
	tempDir := fs.String("temp-dir", "", "Scratch directory hint")
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	return svc.CreateZipArchive(capsule.CreateZipArgs{
		OutputPath:          rest[0],
		InputPaths:          rest[1:],
		CompressionMode:     *mode,
		ParallelCompression: *parallel,
		TempDir:             *tempDir,
	})
}

func runAdd(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("add", "[flags] ARCHIVE FILE...", &common)
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	return svc.AddFilesToZip(rest[0], rest[1:])
}

func runRemove(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("remove", "[flags] ARCHIVE NAME...", &common)
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	n, err := svc.RemoveFilesFromZip(rest[0], rest[1:])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "removed %d of %d entries\n", n, len(rest)-1)
	return nil
}

func runPreview(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("preview", "[flags] ARCHIVE ENTRY", &common)
	asJSON := fs.Bool("json", false, "Output as JSON")
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}

	res, err := svc.PreviewArchiveEntry(rest[0], rest[1])
	if err != nil {
		return err
	}
	if *asJSON {
		return outputJSON(stdout, res)
	}

	if res.Kind == archive.PreviewText && res.Text != nil {
		_, _ = fmt.Fprintln(stdout, *res.Text)
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "binary entry: %s, %s", res.MIME, formatSize(res.Size))
	if res.SniffedMIME != "" && res.SniffedMIME != res.MIME {
		_, _ = fmt.Fprintf(stdout, " (content looks like %s)", res.SniffedMIME)
	}
	_, _ = fmt.Fprintln(stdout)
	if res.Truncated {
		_, _ = fmt.Fprintf(stdout, "preview holds the first %s\n", formatSize(int64(len(res.Data))))
	}
	return nil
}

func runExtractEntry(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("extract-entry", "[flags] ARCHIVE ENTRY", &common)
	tempDir := fs.String("temp-dir", "", "Output directory (defaults to the configured temp dir)")
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	out, err := svc.ExtractEntryToTemp(rest[0], rest[1], *tempDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, out)
	return nil
}

func runCopy(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("copy", "[flags] SRC DEST", &common)
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	return svc.CopyFile(rest[0], rest[1])
}

type sizeOutput struct {
	Path      string `json:"path"`
	Size      int64  `json:"size_bytes"`
	SizeHuman string `json:"size"`
}

func runSize(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("size", "[flags] PATH", &common)
	asJSON := fs.Bool("json", false, "Output as JSON")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	size, err := svc.GetFileSize(rest[0])
	if err != nil {
		return err
	}
	if *asJSON {
		return outputJSON(stdout, sizeOutput{Path: rest[0], Size: size, SizeHuman: formatSize(size)})
	}
	_, _ = fmt.Fprintf(stdout, "%d (%s)\n", size, formatSize(size))
	return nil
}

func runExport(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("export", "[flags] ARCHIVE", &common)
	bucket := fs.String("bucket", "", "Bucket URL (file:///path, s3://bucket); defaults to export.url")
	key := fs.String("key", "", "Object key (defaults to the archive's file name)")
	overwrite := fs.Bool("overwrite", false, "Replace an existing object at the key")
	asJSON := fs.Bool("json", false, "Output as JSON")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	_, _, svc, err := common.setup(nil)
	if err != nil {
		return err
	}
	res, err := svc.ExportArchive(context.Background(), rest[0], *bucket, *key, *overwrite)
	if err != nil {
		return err
	}
	if *asJSON {
		return outputJSON(stdout, res)
	}
	_, _ = fmt.Fprintf(stdout, "uploaded %s to %s (%s, sha256 %s)\n", res.Key, res.Bucket, formatSize(res.Size), res.SHA256)
	return nil
}

func runServe(args []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("serve", "[flags]", &common)
	listen := fs.String("listen", "", "Address to listen on (default \"127.0.0.1:7878\")")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	cfg, logger, svc, err := common.setup(func(cfg *config.Config) {
		if *listen != "" {
			cfg.Listen = *listen
		}
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func outputEntries(w io.Writer, entries []archive.Entry) {
	for _, e := range entries {
		modified := "-"
		if e.Modified != nil {
			modified = e.Modified.Format("2006-01-02 15:04")
		}
		size := formatSize(e.Size)
		if e.IsDir() {
			size = "-"
		}
		_, _ = fmt.Fprintf(w, "%-4s %10s  %-16s  %s\n", e.Kind, size, modified, e.Path)
	}
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
