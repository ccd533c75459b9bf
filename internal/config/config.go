// Package config loads testgap settings from YAML with environment
// overrides. CLI flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/dshills/testgap/internal/coverage"
	"github.com/dshills/testgap/internal/profile"
	"github.com/dshills/testgap/internal/scan"
	"github.com/dshills/testgap/internal/verdict"
)

// DefaultPath is the config file looked up in the analyzed repository.
const DefaultPath = ".testgap.yaml"

// Config holds all testgap configuration.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Scan       ScanConfig       `yaml:"scan"`
	Coverage   CoverageConfig   `yaml:"coverage"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig configures the content provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // anthropic, openai, google, offline; empty picks from API keys
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// GenerationConfig controls which gaps get tests and how.
type GenerationConfig struct {
	Framework    string  `yaml:"framework"` // empty: detected, then language default
	Threshold    float64 `yaml:"threshold"`
	Limit        int     `yaml:"limit"` // max prioritized files; 0 = all
	Concurrency  int     `yaml:"concurrency"`
	Profile      string  `yaml:"profile"`
	RemoteReview bool    `yaml:"remote_review"`
	SkipPrivate  bool    `yaml:"skip_private"`
	FailOn       string  `yaml:"fail_on"` // verdict at or above which the CLI exits 2
}

// ScanConfig controls the repository walk.
type ScanConfig struct {
	Ignore      []string `yaml:"ignore"`
	MaxFileSize int64    `yaml:"max_file_size"`
	Workers     int      `yaml:"workers"`
	NoGitignore bool     `yaml:"no_gitignore"`
}

// CoverageConfig locates the coverage report.
type CoverageConfig struct {
	Report     string `yaml:"report"`      // path relative to the repository root
	ModulePath string `yaml:"module_path"` // Go module path; read from go.mod when empty
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Dir     string `yaml:"dir"`    // where generated tests are written; empty = do not write
	Format  string `yaml:"format"` // json, markdown, terminal
	History string `yaml:"history"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens:   2048,
			Temperature: 0.2,
			Timeout:     "60s",
		},
		Generation: GenerationConfig{
			Threshold:   coverage.DefaultThreshold,
			Concurrency: 4,
			Profile:     profile.Default,
			SkipPrivate: true,
		},
		Scan: ScanConfig{
			MaxFileSize: scan.DefaultMaxFileSize,
		},
		Output: OutputConfig{
			Format:  "terminal",
			History: ".testgap/history.db",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. An unset
// provider is chosen from the first API key present, else offline.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("TESTGAP_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if c.LLM.Provider == "" {
		switch {
		case os.Getenv("ANTHROPIC_API_KEY") != "":
			c.LLM.Provider = "anthropic"
		case os.Getenv("OPENAI_API_KEY") != "":
			c.LLM.Provider = "openai"
		case os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "":
			c.LLM.Provider = "google"
		default:
			c.LLM.Provider = "offline"
		}
	}
	if m := os.Getenv("TESTGAP_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if v := os.Getenv("TESTGAP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Generation.Concurrency = n
		}
	}
	if v := os.Getenv("TESTGAP_HISTORY_DB"); v != "" {
		c.Output.History = v
	}
}

// GetLLMTimeout returns the per-call provider timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// ValidProviders lists the accepted provider names, aliases included.
var ValidProviders = []string{"anthropic", "claude", "openai", "google", "gemini", "offline", "none"}

// ValidFormats lists the accepted output formats.
var ValidFormats = []string{"json", "markdown", "terminal"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.Provider != "" && !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("config: invalid llm provider %q (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Timeout != "" {
		if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
			return fmt.Errorf("config: invalid llm timeout %q: %w", c.LLM.Timeout, err)
		}
	}
	if c.Generation.Threshold < 0 || c.Generation.Threshold > 1 {
		return fmt.Errorf("config: threshold %v out of range [0, 1]", c.Generation.Threshold)
	}
	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1, got %d", c.Generation.Concurrency)
	}
	if c.Generation.Limit < 0 {
		return fmt.Errorf("config: limit must not be negative, got %d", c.Generation.Limit)
	}
	if _, err := profile.Load(c.Generation.Profile); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Generation.FailOn != "" {
		if _, err := verdict.ParseVerdict(c.Generation.FailOn); err != nil {
			return fmt.Errorf("config: fail_on: %w", err)
		}
	}
	if !contains(ValidFormats, c.Output.Format) {
		return fmt.Errorf("config: invalid output format %q (valid: %v)", c.Output.Format, ValidFormats)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging level: %w", err)
	}
	return nil
}

// NewLogger builds the process logger. verbose forces debug level.
func (c LoggingConfig) NewLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Format == "text" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.WarnLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("config: build logger: %w", err)
	}
	return logger, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
