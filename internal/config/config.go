// ABOUTME: Configuration loading for the drafter daemon
// ABOUTME: Defaults, a YAML or JSONC file, then DRAFTER_* environment overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/nainya/drafter/internal/logger"
	"github.com/nainya/drafter/pkg/version"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "DRAFTER_"

// Config is the daemon configuration
type Config struct {
	// DataDir is the root of the version store
	DataDir string `yaml:"data_dir"`

	GRPCPort    int `yaml:"grpc_port"`
	MetricsPort int `yaml:"metrics_port"`

	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Export  ExportConfig  `yaml:"export"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// StorageConfig tunes how versions are written
type StorageConfig struct {
	// Compression is "none" or "zstd"
	Compression string `yaml:"compression"`

	// CompressMinBytes is the smallest content that is compressed
	CompressMinBytes int `yaml:"compress_min_bytes"`

	// Fsync flushes records, pointers and directories before acknowledging.
	// Disabling it trades durability for speed.
	Fsync bool `yaml:"fsync"`
}

// ExportConfig configures where saved drafts go
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// TracingConfig configures OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		DataDir:     "./data/drafts",
		GRPCPort:    50051,
		MetricsPort: 9090,
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Compression:      string(version.CompressionNone),
			CompressMinBytes: 4096,
			Fsync:            true,
		},
		Export: ExportConfig{
			Dir: "./data/exports",
		},
		Tracing: TracingConfig{
			SampleRatio: 0.1,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is valid YAML once comments and trailing commas are gone
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays DRAFTER_* variables
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	boolean := func(name string, dst *bool) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("STORAGE_COMPRESSION", &c.Storage.Compression)
	str("EXPORT_DIR", &c.Export.Dir)
	str("TRACING_ENDPOINT", &c.Tracing.Endpoint)

	return errors.Join(
		integer("GRPC_PORT", &c.GRPCPort),
		integer("METRICS_PORT", &c.MetricsPort),
		integer("STORAGE_COMPRESS_MIN_BYTES", &c.Storage.CompressMinBytes),
		boolean("LOG_PRETTY", &c.Log.Pretty),
		boolean("STORAGE_FSYNC", &c.Storage.Fsync),
		boolean("TRACING_ENABLED", &c.Tracing.Enabled),
		boolean("TRACING_INSECURE", &c.Tracing.Insecure),
	)
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if strings.TrimSpace(c.Export.Dir) == "" {
		errs = append(errs, errors.New("export.dir is required"))
	}
	if !validPort(c.GRPCPort) {
		errs = append(errs, fmt.Errorf("grpc_port %d out of range", c.GRPCPort))
	}
	if !validPort(c.MetricsPort) {
		errs = append(errs, fmt.Errorf("metrics_port %d out of range", c.MetricsPort))
	}
	if c.GRPCPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("grpc_port and metrics_port must differ, both are %d", c.GRPCPort))
	}
	if _, err := version.ParseCompression(c.Storage.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.CompressMinBytes < 0 {
		errs = append(errs, fmt.Errorf("storage.compress_min_bytes must not be negative"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %v must be within [0, 1]", c.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}

// StoreOptions converts the storage section for version.Open
func (c *Config) StoreOptions() version.Options {
	compression, _ := version.ParseCompression(c.Storage.Compression)
	return version.Options{
		Compression:      compression,
		CompressMinBytes: c.Storage.CompressMinBytes,
		NoSync:           !c.Storage.Fsync,
	}
}

// LoggerConfig converts the log section for logger.NewLogger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
	}
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}
