// Package config loads and validates mnemos configuration from
// .mnemos/config.yaml, with defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemos configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Scanner configuration
	Scanner ScannerConfig `yaml:"scanner"`

	// Decision thresholds
	Decision DecisionConfig `yaml:"decision"`

	// External generator
	Generator GeneratorConfig `yaml:"generator"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ScannerConfig configures the rate-limited background scanner.
type ScannerConfig struct {
	// Roots to walk, relative to the workspace unless absolute.
	WatchPaths []string `yaml:"watch_paths"`

	// Token bucket capacity: files processed per minute.
	RatePerMinute float64 `yaml:"rate_per_minute"`

	// Tick interval in milliseconds.
	IntervalMs int `yaml:"interval_ms"`

	// Deep mode enables multi-pass analysis, full-file reads, and the
	// richer extension set.
	DeepMode bool `yaml:"deep_mode"`

	// Watch mode marks files dirty via fsnotify between ticks.
	WatchMode bool `yaml:"watch_mode"`

	// Maximum bytes read from a single file in shallow mode.
	MaxReadBytes int `yaml:"max_read_bytes"`
}

// DecisionConfig holds the decision engine thresholds. The defaults are
// deliberately conservative: auto-merge feeds future prompts and is
// irreversible by default, so over-quarantining beats over-merging.
type DecisionConfig struct {
	MergeScoreMax        float64 `yaml:"merge_score_max"`
	MergeConfMin         float64 `yaml:"merge_conf_min"`
	HardRejectScore      float64 `yaml:"hard_reject_score"`
	SuspicionScore       float64 `yaml:"suspicion_score"`
	SemanticDupThreshold float64 `yaml:"semantic_dup_threshold"`
}

// GeneratorConfig configures the external text generator.
type GeneratorConfig struct {
	Provider string `yaml:"provider"` // "ollama", "genai", or "none"
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "local" (deterministic) or "ollama"
	Dimensions int    `yaml:"dimensions"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mnemos",
		Version: "0.3.0",

		Scanner: ScannerConfig{
			WatchPaths:    []string{"."},
			RatePerMinute: 6,
			IntervalMs:    5000,
			DeepMode:      false,
			WatchMode:     false,
			MaxReadBytes:  64 * 1024,
		},

		Decision: DecisionConfig{
			MergeScoreMax:        10,
			MergeConfMin:         0.9,
			HardRejectScore:      30,
			SuspicionScore:       5,
			SemanticDupThreshold: 0.9,
		},

		Generator: GeneratorConfig{
			Provider: "ollama",
			Endpoint: "http://localhost:11434",
			Model:    "qwen2.5-coder",
			Timeout:  "120s", // Local inference can be slow
		},

		Embedding: EmbeddingConfig{
			Provider:   "local",
			Dimensions: 128,
			Endpoint:   "http://localhost:11434",
			Model:      "embeddinggemma",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults if
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks threshold sanity.
func (c *Config) Validate() error {
	d := c.Decision
	if d.MergeConfMin < 0 || d.MergeConfMin > 1 {
		return fmt.Errorf("merge_conf_min must be in [0,1], got %v", d.MergeConfMin)
	}
	if d.SemanticDupThreshold <= 0 || d.SemanticDupThreshold > 1 {
		return fmt.Errorf("semantic_dup_threshold must be in (0,1], got %v", d.SemanticDupThreshold)
	}
	if d.HardRejectScore < d.MergeScoreMax {
		return fmt.Errorf("hard_reject_score (%v) must not be below merge_score_max (%v)",
			d.HardRejectScore, d.MergeScoreMax)
	}
	if c.Scanner.RatePerMinute <= 0 {
		return fmt.Errorf("rate_per_minute must be positive, got %v", c.Scanner.RatePerMinute)
	}
	if c.Scanner.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", c.Scanner.IntervalMs)
	}
	return nil
}

// GeneratorTimeout parses the generator timeout, defaulting to 120s.
func (c *Config) GeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// applyEnvOverrides applies MNEMOS_* environment variables on top of the
// loaded configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MNEMOS_RATE_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Scanner.RatePerMinute = f
		}
	}
	if v := os.Getenv("MNEMOS_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scanner.IntervalMs = n
		}
	}
	if v := os.Getenv("MNEMOS_DEEP_MODE"); v != "" {
		c.Scanner.DeepMode = v == "1" || v == "true"
	}
	if v := os.Getenv("MNEMOS_GENERATOR_ENDPOINT"); v != "" {
		c.Generator.Endpoint = v
	}
	if v := os.Getenv("MNEMOS_GENERATOR_MODEL"); v != "" {
		c.Generator.Model = v
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generator.APIKey = key
		if c.Generator.Provider == "" {
			c.Generator.Provider = "genai"
		}
	}
	if v := os.Getenv("MNEMOS_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
		if c.Logging.Level == "" {
			c.Logging.Level = "debug"
		}
	}
}
