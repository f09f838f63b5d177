package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen != "127.0.0.1:7878" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, "127.0.0.1:7878")
	}
	if cfg.Preview.MaxReadSize != "10MB" {
		t.Errorf("Preview.MaxReadSize = %q, want 10MB", cfg.Preview.MaxReadSize)
	}
	if cfg.Export.URL != "" {
		t.Error("Export.URL should be empty by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty listen",
			modify:  func(c *Config) { c.Listen = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid read size",
			modify:  func(c *Config) { c.Preview.MaxReadSize = "invalid" },
			wantErr: true,
		},
		{
			name:    "zero text size",
			modify:  func(c *Config) { c.Preview.MaxTextSize = "0" },
			wantErr: true,
		},
		{
			name:    "empty binary size",
			modify:  func(c *Config) { c.Preview.MaxBinarySize = "" },
			wantErr: true,
		},
		{
			name:    "valid custom sizes",
			modify:  func(c *Config) { c.Preview.MaxReadSize = "1GB"; c.Preview.MaxTextSize = "2M" },
			wantErr: false,
		},
		{
			name:    "export url without scheme",
			modify:  func(c *Config) { c.Export.URL = "/var/backups" },
			wantErr: true,
		},
		{
			name:    "valid export url",
			modify:  func(c *Config) { c.Export.URL = "file:///var/backups" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"100", 100, false},
		{"1KB", 1024, false},
		{"1K", 1024, false},
		{"500kb", 500 * 1024, false},
		{"1MB", 1024 * 1024, false},
		{"1M", 1024 * 1024, false},
		{"10MB", 10 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"1.5GB", int64(1.5 * 1024 * 1024 * 1024), false},
		{"1TB", 1024 * 1024 * 1024 * 1024, false},
		{"invalid", 0, true},
		{"10XB", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
listen: "127.0.0.1:9000"
temp_dir: "/tmp/capsule"
create:
  compression_mode: "fast"
  parallel_compression: true
preview:
  max_read_size: "2MB"
export:
  url: "file:///data/exports"
log:
  level: "debug"
  format: "json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, "127.0.0.1:9000")
	}
	if cfg.TempDir != "/tmp/capsule" {
		t.Errorf("TempDir = %q, want %q", cfg.TempDir, "/tmp/capsule")
	}
	if cfg.Create.CompressionMode != "fast" || !cfg.Create.ParallelCompression {
		t.Errorf("Create = %+v", cfg.Create)
	}
	if cfg.Preview.MaxReadSize != "2MB" {
		t.Errorf("Preview.MaxReadSize = %q, want %q", cfg.Preview.MaxReadSize, "2MB")
	}
	// Unset keys keep their defaults.
	if cfg.Preview.MaxTextSize != "500KB" {
		t.Errorf("Preview.MaxTextSize = %q, want %q", cfg.Preview.MaxTextSize, "500KB")
	}
	if cfg.Export.URL != "file:///data/exports" {
		t.Errorf("Export.URL = %q", cfg.Export.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"listen": "127.0.0.1:4000",
		"preview": {"max_binary_size": "128KB"}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:4000" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, "127.0.0.1:4000")
	}
	if cfg.Preview.MaxBinarySize != "128KB" {
		t.Errorf("Preview.MaxBinarySize = %q, want %q", cfg.Preview.MaxBinarySize, "128KB")
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg := Default()

	t.Setenv("CAPSULE_LISTEN", "127.0.0.1:9999")
	t.Setenv("CAPSULE_TEMP_DIR", "/env/tmp")
	t.Setenv("CAPSULE_CREATE_PARALLEL_COMPRESSION", "true")
	t.Setenv("CAPSULE_PREVIEW_MAX_TEXT_SIZE", "1MB")
	t.Setenv("CAPSULE_EXPORT_URL", "s3://bucket")
	t.Setenv("CAPSULE_LOG_LEVEL", "debug")

	cfg.LoadFromEnv()

	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, "127.0.0.1:9999")
	}
	if cfg.TempDir != "/env/tmp" {
		t.Errorf("TempDir = %q, want %q", cfg.TempDir, "/env/tmp")
	}
	if !cfg.Create.ParallelCompression {
		t.Error("Create.ParallelCompression should be true")
	}
	if cfg.Preview.MaxTextSize != "1MB" {
		t.Errorf("Preview.MaxTextSize = %q, want %q", cfg.Preview.MaxTextSize, "1MB")
	}
	if cfg.Export.URL != "s3://bucket" {
		t.Errorf("Export.URL = %q, want %q", cfg.Export.URL, "s3://bucket")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}
