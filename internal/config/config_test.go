// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML and JSONC files, env overrides and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nainya/drafter/pkg/version"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if !cfg.Storage.Fsync {
		t.Error("Expected fsync enabled by default")
	}
	if cfg.StoreOptions().NoSync {
		t.Error("Expected NoSync false by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GRPCPort != Default().GRPCPort {
		t.Errorf("Expected default port, got %d", cfg.GRPCPort)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "drafter.yaml", `
data_dir: /var/lib/drafter
grpc_port: 7000
log:
  level: debug
storage:
  compression: zstd
  fsync: false
export:
  dir: /srv/exports
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/var/lib/drafter" || cfg.GRPCPort != 7000 {
		t.Errorf("Unexpected values %+v", cfg)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("Expected unset metrics_port to keep default, got %d", cfg.MetricsPort)
	}
	opts := cfg.StoreOptions()
	if opts.Compression != version.CompressionZstd || !opts.NoSync {
		t.Errorf("Unexpected store options %+v", opts)
	}
	if cfg.LoggerConfig().Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.LoggerConfig().Level)
	}
}

func TestLoadJSONC(t *testing.T) {
	path := writeConfig(t, "drafter.jsonc", `{
  // local development
  "data_dir": "/tmp/drafts",
  "tracing": {"enabled": true, "sample_ratio": 1.0,},
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/tmp/drafts" || !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 1.0 {
		t.Errorf("Unexpected values %+v", cfg)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "grpc_port: [not a number")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DRAFTER_DATA_DIR", "/env/data")
	t.Setenv("DRAFTER_GRPC_PORT", "6000")
	t.Setenv("DRAFTER_STORAGE_FSYNC", "false")
	t.Setenv("DRAFTER_LOG_LEVEL", "warn")

	path := writeConfig(t, "drafter.yaml", "data_dir: /file/data\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/env/data" {
		t.Errorf("Expected env to win over file, got %s", cfg.DataDir)
	}
	if cfg.GRPCPort != 6000 || cfg.Storage.Fsync || cfg.Log.Level != "warn" {
		t.Errorf("Unexpected values %+v", cfg)
	}
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("DRAFTER_METRICS_PORT", "lots")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "DRAFTER_METRICS_PORT") {
		t.Fatalf("Expected DRAFTER_METRICS_PORT error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data_dir"},
		{"empty export dir", func(c *Config) { c.Export.Dir = "" }, "export.dir"},
		{"bad port", func(c *Config) { c.GRPCPort = 70000 }, "grpc_port"},
		{"same ports", func(c *Config) { c.MetricsPort = c.GRPCPort }, "must differ"},
		{"bad compression", func(c *Config) { c.Storage.Compression = "lz4" }, "compression"},
		{"negative min bytes", func(c *Config) { c.Storage.CompressMinBytes = -1 }, "compress_min_bytes"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
