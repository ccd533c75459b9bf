package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

// clearEnv blanks every variable applyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TESTGAP_PROVIDER", "TESTGAP_MODEL", "TESTGAP_CONCURRENCY", "TESTGAP_HISTORY_DB",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Generation.Threshold != 0.5 {
		t.Errorf("expected Threshold=0.5, got %v", cfg.Generation.Threshold)
	}
	if cfg.Generation.Concurrency != 4 {
		t.Errorf("expected Concurrency=4, got %d", cfg.Generation.Concurrency)
	}
	if cfg.Generation.Profile != "general" {
		t.Errorf("expected Profile=general, got %s", cfg.Generation.Profile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "offline" {
		t.Errorf("expected Provider=offline without keys, got %q", cfg.LLM.Provider)
	}
	if cfg.Output.Format != "terminal" {
		t.Errorf("expected Format=terminal, got %q", cfg.Output.Format)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "testgap.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.Generation.Framework = "unittest"
	cfg.Generation.Limit = 3
	cfg.Scan.Ignore = []string{"vendor", "fixtures"}
	cfg.Coverage.Report = "coverage.json"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != "openai" || loaded.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm = %+v", loaded.LLM)
	}
	if loaded.Generation.Framework != "unittest" || loaded.Generation.Limit != 3 {
		t.Errorf("generation = %+v", loaded.Generation)
	}
	if len(loaded.Scan.Ignore) != 2 || loaded.Coverage.Report != "coverage.json" {
		t.Errorf("scan/coverage = %+v / %+v", loaded.Scan, loaded.Coverage)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "testgap.yaml")
	if err := os.WriteFile(path, []byte("generation:\n  threshold: 0.8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.Threshold != 0.8 {
		t.Errorf("Threshold = %v, want 0.8", cfg.Generation.Threshold)
	}
	if cfg.Generation.Concurrency != 4 || cfg.LLM.Timeout != "60s" {
		t.Errorf("defaults lost: %+v %+v", cfg.Generation, cfg.LLM)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testgap.yaml")
	if err := os.WriteFile(path, []byte("generation: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TESTGAP_MODEL", "gpt-4o")
	t.Setenv("TESTGAP_CONCURRENCY", "9")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected Provider=openai, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected Model=gpt-4o, got %q", cfg.LLM.Model)
	}
	if cfg.Generation.Concurrency != 9 {
		t.Errorf("expected Concurrency=9, got %d", cfg.Generation.Concurrency)
	}

	// An explicit provider is not replaced by key detection.
	cfg = DefaultConfig()
	cfg.LLM.Provider = "google"
	cfg.applyEnvOverrides()
	if cfg.LLM.Provider != "google" {
		t.Errorf("explicit provider overridden: %q", cfg.LLM.Provider)
	}

	t.Setenv("TESTGAP_PROVIDER", "offline")
	cfg.applyEnvOverrides()
	if cfg.LLM.Provider != "offline" {
		t.Errorf("TESTGAP_PROVIDER ignored: %q", cfg.LLM.Provider)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.LLM.Provider = "bogus" }},
		{"timeout", func(c *Config) { c.LLM.Timeout = "soon" }},
		{"threshold", func(c *Config) { c.Generation.Threshold = 1.5 }},
		{"concurrency", func(c *Config) { c.Generation.Concurrency = 0 }},
		{"limit", func(c *Config) { c.Generation.Limit = -1 }},
		{"profile", func(c *Config) { c.Generation.Profile = "nope" }},
		{"fail_on", func(c *Config) { c.Generation.FailOn = "ALIGNED" }},
		{"format", func(c *Config) { c.Output.Format = "html" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestGetLLMTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "5s"
	if got := cfg.GetLLMTimeout(); got != 5*time.Second {
		t.Errorf("GetLLMTimeout = %v", got)
	}
	cfg.LLM.Timeout = "garbage"
	if got := cfg.GetLLMTimeout(); got != 60*time.Second {
		t.Errorf("GetLLMTimeout(garbage) = %v, want 60s", got)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := LoggingConfig{Level: "info", Format: "json"}.NewLogger(true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose logger should enable debug")
	}
}
