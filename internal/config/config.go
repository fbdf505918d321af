// Package config provides environment- and YAML-driven configuration
// loading and validation for the tracing runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for one traced process.
type Config struct {
	// TraceName is the base name of the trace. Sourced from SEEC_TRACE_NAME
	// (spec.md §6, "Environment / configuration"). Required. This package
	// only loads and validates it; no other package of this module reads it.
	TraceName string `yaml:"trace_name"`

	// WriteInstrumented controls whether the trace additionally records the
	// instrumented bitcode module alongside the event stream, mirroring
	// SEEC_WRITE_INSTRUMENTED. Defaults to false.
	WriteInstrumented bool `yaml:"write_instrumented"`

	// ArchiveOnClose is loaded from SEEC_TRACE_ARCHIVE. No other package of
	// this module reads it, so setting it changes nothing about how a trace
	// is written or closed.
	ArchiveOnClose bool `yaml:"archive_on_close"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// BlockSize overrides the output-block subsystem's default block size,
	// in bytes. Defaults to blockio.DefaultBlockSize when zero.
	BlockSize int64 `yaml:"block_size"`

	// ReplayIndexDSN, when set, enables the optional replay side index
	// (internal/replayindex) at the given database/sql DSN. A sqlite file
	// path (e.g. "./trace.index.sqlite") or a Postgres DSN
	// ("postgres://...") are both accepted; the scheme picks the driver.
	// Empty disables the side index. Defaults from SEEC_REPLAY_INDEX_DSN.
	ReplayIndexDSN string `yaml:"replay_index_dsn"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load resolves configuration from the environment, optionally layering a
// YAML file named by SEEC_TRACE_CONFIG on top of the environment-derived
// values (YAML wins where both set a field, matching the original runtime's
// "environment picks the trace name, a config file can refine the rest"
// layering). It applies defaults and validates the result, returning a
// typed error describing every validation failure encountered.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := os.Getenv("SEEC_TRACE_CONFIG"); path != "" {
		if err := mergeYAMLFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// fromEnv builds a Config from the SEEC_* environment variables spec.md §6
// names as the runtime's primary configuration surface.
func fromEnv() Config {
	var cfg Config
	cfg.TraceName = os.Getenv("SEEC_TRACE_NAME")
	cfg.WriteInstrumented = envBool("SEEC_WRITE_INSTRUMENTED")
	cfg.ArchiveOnClose = envBool("SEEC_TRACE_ARCHIVE")
	cfg.LogLevel = os.Getenv("SEEC_LOG_LEVEL")
	cfg.ReplayIndexDSN = os.Getenv("SEEC_REPLAY_INDEX_DSN")
	if v := os.Getenv("SEEC_BLOCK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BlockSize = n
		}
	}
	return cfg
}

func envBool(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// mergeYAMLFile unmarshals the YAML file at path over cfg, letting a config
// file refine or override whatever the environment already set.
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: cannot read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: cannot parse %q: %w", path, err)
	}
	return nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = defaultBlockSize
	}
}

// defaultBlockSize mirrors blockio.DefaultBlockSize; config does not import
// blockio to avoid a dependency cycle (blockio has no need of config), so
// the constant is duplicated here. A test asserts the default equals
// 64*1024, the value blockio.DefaultBlockSize also has.
const defaultBlockSize = 64 * 1024

// validate checks that all required fields are populated and that
// enumerated fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if cfg.TraceName == "" {
		errs = append(errs, errors.New("trace_name is required (set SEEC_TRACE_NAME or trace_name)"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("block_size %d must not be negative", cfg.BlockSize))
	}

	return errors.Join(errs...)
}
