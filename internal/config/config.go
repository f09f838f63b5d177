// Package config provides configuration loading and validation for capsule.
//
// Configuration can be provided via:
//   - Command line flags (highest priority)
//   - Environment variables (CAPSULE_ prefix)
//   - Configuration file (YAML or JSON)
//
// Preview limits are human-readable sizes:
//
//	preview:
//	  max_read_size: "10MB"
//	  max_text_size: "500KB"
//	  max_binary_size: "64KB"
//
// Export Configuration:
//
// Archives can be uploaded to any gocloud.dev/blob bucket:
//
//	export:
//	  url: "file:///var/backups/archives"
//
// or
//
//	export:
//	  url: "s3://bucket?endpoint=http://localhost:9000"
//
// For S3, configure credentials via AWS environment variables:
//
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for capsule.
type Config struct {
	// Listen is the address the HTTP API listens on. It defaults to loopback
	// because every endpoint acts on the local filesystem.
	Listen string `json:"listen" yaml:"listen"`

	// TempDir is where single entries are extracted for opening.
	// Empty means the system temp directory.
	TempDir string `json:"temp_dir" yaml:"temp_dir"`

	// Create holds defaults for new archives.
	Create CreateConfig `json:"create" yaml:"create"`

	// Preview bounds entry previews.
	Preview PreviewConfig `json:"preview" yaml:"preview"`

	// Export configures the default upload bucket.
	Export ExportConfig `json:"export" yaml:"export"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log"`
}

// CreateConfig holds archive creation hints. Both are recorded and passed
// through but do not change the output.
type CreateConfig struct {
	CompressionMode     string `json:"compression_mode" yaml:"compression_mode"`
	ParallelCompression bool   `json:"parallel_compression" yaml:"parallel_compression"`
}

// PreviewConfig bounds how much of an entry a preview reads and returns.
type PreviewConfig struct {
	// MaxReadSize caps the bytes read from an entry (e.g., "10MB").
	MaxReadSize string `json:"max_read_size" yaml:"max_read_size"`

	// MaxTextSize caps returned text before the truncation notice.
	MaxTextSize string `json:"max_text_size" yaml:"max_text_size"`

	// MaxBinarySize caps the returned binary payload.
	MaxBinarySize string `json:"max_binary_size" yaml:"max_binary_size"`
}

// ExportConfig configures archive export.
type ExportConfig struct {
	// URL is the bucket URL, e.g. file:///path or s3://bucket.
	// Empty disables export unless a URL is passed per call.
	URL string `json:"url" yaml:"url"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:7878",
		Create: CreateConfig{
			CompressionMode: "normal",
		},
		Preview: PreviewConfig{
			MaxReadSize:   "10MB",
			MaxTextSize:   "500KB",
			MaxBinarySize: "64KB",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a file (YAML or JSON).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		// Try YAML first, then JSON
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config (tried YAML and JSON): %w", err)
			}
		}
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to a Config.
// Environment variables use the CAPSULE_ prefix:
//   - CAPSULE_LISTEN
//   - CAPSULE_TEMP_DIR
//   - CAPSULE_CREATE_COMPRESSION_MODE
//   - CAPSULE_CREATE_PARALLEL_COMPRESSION
//   - CAPSULE_PREVIEW_MAX_READ_SIZE
//   - CAPSULE_PREVIEW_MAX_TEXT_SIZE
//   - CAPSULE_PREVIEW_MAX_BINARY_SIZE
//   - CAPSULE_EXPORT_URL
//   - CAPSULE_LOG_LEVEL
//   - CAPSULE_LOG_FORMAT
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("CAPSULE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CAPSULE_TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv("CAPSULE_CREATE_COMPRESSION_MODE"); v != "" {
		c.Create.CompressionMode = v
	}
	if v := os.Getenv("CAPSULE_CREATE_PARALLEL_COMPRESSION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Create.ParallelCompression = b
		}
	}
	if v := os.Getenv("CAPSULE_PREVIEW_MAX_READ_SIZE"); v != "" {
		c.Preview.MaxReadSize = v
	}
	if v := os.Getenv("CAPSULE_PREVIEW_MAX_TEXT_SIZE"); v != "" {
		c.Preview.MaxTextSize = v
	}
	if v := os.Getenv("CAPSULE_PREVIEW_MAX_BINARY_SIZE"); v != "" {
		c.Preview.MaxBinarySize = v
	}
	if v := os.Getenv("CAPSULE_EXPORT_URL"); v != "" {
		c.Export.URL = v
	}
	if v := os.Getenv("CAPSULE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CAPSULE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	// Validate log level
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// OK
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.Log.Level)
	}

	// Validate log format
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
		// OK
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}

	sizes := []struct {
		name  string
		value string
	}{
		{"preview.max_read_size", c.Preview.MaxReadSize},
		{"preview.max_text_size", c.Preview.MaxTextSize},
		{"preview.max_binary_size", c.Preview.MaxBinarySize},
	}
	for _, s := range sizes {
		n, err := ParseSize(s.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", s.name, err)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be greater than zero", s.name)
		}
	}

	if c.Export.URL != "" && !strings.Contains(c.Export.URL, "://") {
		return fmt.Errorf("invalid export.url %q (must be a bucket URL such as file:///path or s3://bucket)", c.Export.URL)
	}

	return nil
}

// ParseSize parses a human-readable size string (e.g., "10MB", "500KB").
// Returns the size in bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	// Check suffixes in order of length (longest first) to avoid partial matches
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"T", 1024 * 1024 * 1024 * 1024},
		{"G", 1024 * 1024 * 1024},
		{"M", 1024 * 1024},
		{"K", 1024},
		{"B", 1},
	}

	for _, s2 := range suffixes {
		if strings.HasSuffix(s, s2.suffix) {
			numStr := strings.TrimSuffix(s, s2.suffix)
			num, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(num * float64(s2.mult)), nil
		}
	}

	// Try parsing as plain number (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return num, nil
}
