// Command capsule lists, extracts, creates and edits ZIP and TAR archives.
//
// Usage:
//
//	capsule <command> [flags] args...
//
// Commands:
//
//	list           List every entry of one or more archives
//	browse         List the children of one directory inside an archive
//	extract        Extract an archive into a directory
//	create         Create an archive from files and directories
//	add            Add files and directories to an archive
//	remove         Remove entries from an archive
//	preview        Show a bounded preview of one entry (ZIP only)
//	extract-entry  Extract one entry to a temp directory (ZIP only)
//	copy           Copy a file
//	size           Print a file's size
//	export         Upload an archive to a blob bucket
//	serve          Start the HTTP API
//
// Common Flags:
//
//	-config string
//	      Path to configuration file (YAML or JSON)
//	-log-level string
//	      Log level: debug, info, warn, error (default "info")
//	-log-format string
//	      Log format: text, json (default "text")
//
// Global Flags:
//
//	-version
//	      Print version and exit
//
// Environment Variables:
//
//	CAPSULE_LISTEN                       - Listen address for serve
//	CAPSULE_TEMP_DIR                     - Directory for extract-entry output
//	CAPSULE_CREATE_COMPRESSION_MODE      - Compression hint for create
//	CAPSULE_CREATE_PARALLEL_COMPRESSION  - Parallel compression hint for create
//	CAPSULE_PREVIEW_MAX_READ_SIZE        - Bytes read per preview
//	CAPSULE_PREVIEW_MAX_TEXT_SIZE        - Text preview cap
//	CAPSULE_PREVIEW_MAX_BINARY_SIZE      - Binary preview cap
//	CAPSULE_EXPORT_URL                   - Default export bucket URL
//	CAPSULE_LOG_LEVEL                    - Log level
//	CAPSULE_LOG_FORMAT                   - Log format
//
// Example:
//
//	# Show what is inside a release bundle
//	capsule list release.tar.gz
//
//	# Pack a directory and upload it
//	capsule create backup.zip ./project
//	capsule export -bucket s3://my-backups backup.zip
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/wayrou/Capsule/internal/capsule"
	"github.com/wayrou/Capsule/internal/config"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Commit is set at build time.
	Commit = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

var commands = []command{
	{"list", "List every entry of one or more archives", runList},
	{"browse", "List the children of one directory inside an archive", runBrowse},
	{"extract", "Extract an archive into a directory", runExtract},
	{"create", "Create an archive from files and directories", runCreate},
	{"add", "Add files and directories to an archive", runAdd},
	{"remove", "Remove entries from an archive", runRemove},
	{"preview", "Show a bounded preview of one entry (ZIP only)", runPreview},
	{"extract-entry", "Extract one entry to a temp directory (ZIP only)", runExtractEntry},
	{"copy", "Copy a file", runCopy},
	{"size", "Print a file's size", runSize},
	{"export", "Upload an archive to a blob bucket", runExport},
	{"serve", "Start the HTTP API", runServe},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "-version", "--version", "version":
		_, _ = fmt.Fprintf(stdout, "capsule %s (%s)\n", Version, Commit)
		return 0
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return 0
	}

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(args[1:], stdout)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			return 2
		default:
			fmt.Fprintf(os.Stderr, "capsule %s: %v\n", c.name, err)
			return 1
		}
	}

	fmt.Fprintf(os.Stderr, "capsule: unknown command %q\n\n", args[0])
	printUsage(os.Stderr)
	return 2
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "capsule - ZIP and TAR archive toolkit\n\nUsage: capsule <command> [flags] args...\n\nCommands:\n")
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintf(w, `
Run 'capsule <command> -help' for more information on a command.

Global Flags:
  -version   Print version and exit
  -help      Show this help message
`)
}

// errUsage reports bad arguments after the command's usage was printed.
var errUsage = errors.New("usage")

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newFlagSet(name, usage string, common *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&common.configPath, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&common.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&common.logFormat, "log-format", "", "Log format: text, json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: capsule %s %s\n\nFlags:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses flags and checks that at least want positional arguments
// remain.
func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < want {
		fs.Usage()
		return nil, errUsage
	}
	return fs.Args(), nil
}

// setup loads configuration (file, then environment, then flags) and builds
// the logger and service. apply may override further config fields from
// command flags.
func (c *commonFlags) setup(apply func(*config.Config)) (*config.Config, *slog.Logger, *capsule.Service, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.LoadFromEnv()

	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if apply != nil {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	svc, err := capsule.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, svc, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
