package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seec-team/seectrace/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_FromEnvOnly(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/mytrace")
	t.Setenv("SEEC_WRITE_INSTRUMENTED", "1")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TraceName != "/tmp/mytrace" {
		t.Errorf("TraceName = %q, want %q", cfg.TraceName, "/tmp/mytrace")
	}
	if !cfg.WriteInstrumented {
		t.Error("WriteInstrumented = false, want true")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.BlockSize != 64*1024 {
		t.Errorf("default BlockSize = %d, want %d", cfg.BlockSize, 64*1024)
	}
}

func TestLoad_YAMLOverridesEnv(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/from-env")
	path := writeTemp(t, `
trace_name: /tmp/from-yaml
log_level: debug
block_size: 8192
`)
	t.Setenv("SEEC_TRACE_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TraceName != "/tmp/from-yaml" {
		t.Errorf("TraceName = %q, want the YAML value to win", cfg.TraceName)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.BlockSize != 8192 {
		t.Errorf("BlockSize = %d, want 8192", cfg.BlockSize)
	}
}

func TestLoad_MissingTraceName(t *testing.T) {
	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for missing trace_name, got nil")
	}
	if !strings.Contains(err.Error(), "trace_name") {
		t.Errorf("error %q does not mention trace_name", err.Error())
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/t")
	t.Setenv("SEEC_LOG_LEVEL", "verbose")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error %q does not mention log_level", err.Error())
	}
}

func TestLoad_ConfigFileNotFound(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/t")
	t.Setenv("SEEC_TRACE_CONFIG", filepath.Join(t.TempDir(), "nonexistent.yaml"))

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/t")
	t.Setenv("SEEC_TRACE_CONFIG", writeTemp(t, ":::invalid yaml:::"))

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_ReplayIndexDSNFromEnv(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/t")
	t.Setenv("SEEC_REPLAY_INDEX_DSN", "./trace.index.sqlite")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReplayIndexDSN != "./trace.index.sqlite" {
		t.Errorf("ReplayIndexDSN = %q, want %q", cfg.ReplayIndexDSN, "./trace.index.sqlite")
	}
}

func TestLoad_NegativeBlockSizeRejected(t *testing.T) {
	t.Setenv("SEEC_TRACE_NAME", "/tmp/t")
	t.Setenv("SEEC_BLOCK_SIZE", "-1")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for negative block_size, got nil")
	}
	if !strings.Contains(err.Error(), "block_size") {
		t.Errorf("error %q does not mention block_size", err.Error())
	}
}
