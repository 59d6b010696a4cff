// Package bootconfig loads the container's own startup configuration
// (executor kind/limits, circuit breaker thresholds, log level/format) from
// a YAML or TOML file, with environment variable expansion, the way the
// teacher's internal/config package loads cc-relay's configuration.
package bootconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Format is a supported configuration file format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// UnsupportedFormatError is returned when the config file's extension is
// neither .yaml/.yml nor .toml.
type UnsupportedFormatError struct {
	Extension string
	Path      string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("bootconfig: unsupported format %q for file %s (supported: .yaml, .yml, .toml)", e.Extension, e.Path)
}

// ExecutorKind selects which Executor decorator stack the container builds.
type ExecutorKind string

// Supported executor kinds.
const (
	ExecutorParallel       ExecutorKind = "parallel"
	ExecutorRateLimited    ExecutorKind = "rate_limited"
	ExecutorCircuitBreaker ExecutorKind = "circuit_breaking"
)

// Config is the container's own bootstrap configuration. It is distinct
// from a hosted service's own configuration, which remains the host's
// concern.
type Config struct {
	Executor ExecutorConfig `yaml:"executor" toml:"executor"`
	Breaker  BreakerConfig  `yaml:"breaker" toml:"breaker"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Admin    AdminConfig    `yaml:"admin" toml:"admin"`
}

// ExecutorConfig configures the executor stack.
type ExecutorConfig struct {
	Kind          ExecutorKind `yaml:"kind" toml:"kind"`
	RatePerSecond float64      `yaml:"rate_per_second" toml:"rate_per_second"`
	Burst         int          `yaml:"burst" toml:"burst"`
}

// BreakerConfig configures the per-service circuit breaker, when the
// executor stack includes one.
type BreakerConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold" toml:"failure_threshold"`
	HalfOpenProbes   uint32 `yaml:"half_open_probes" toml:"half_open_probes"`
}

// LoggingConfig configures the ambient logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`   // json, console, pretty
	Output string `yaml:"output" toml:"output"`   // stdout, stderr, or a file path
	Pretty bool   `yaml:"pretty" toml:"pretty"`   // force console formatting regardless of Format
}

// ParseLevel converts Level to a zerolog.Level, defaulting to Info on an
// empty or unrecognized value.
func (l LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// AdminConfig configures the admin HTTP surface.
type AdminConfig struct {
	Listen  string `yaml:"listen" toml:"listen"`
	Enabled bool   `yaml:"enabled" toml:"enabled"`
}

// detectFormat determines the config format from the file extension.
func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &UnsupportedFormatError{Extension: filepath.Ext(path), Path: path}
	}
}

// Load reads and parses a bootconfig file, detecting format from its
// extension and expanding ${VAR}-style environment variables before
// parsing.
func Load(path string) (*Config, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: open %s: %w", path, err)
	}
	defer file.Close()

	return loadFromReader(file, format)
}

// LoadFromReader parses bootconfig content from r in the given format,
// expanding environment variables first.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	return loadFromReader(r, format)
}

func loadFromReader(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: read: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("bootconfig: parse yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("bootconfig: parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("bootconfig: unknown format %s", format)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Executor.Kind == "" {
		cfg.Executor.Kind = ExecutorParallel
	}
	if cfg.Executor.Burst <= 0 {
		cfg.Executor.Burst = 1
	}
}
