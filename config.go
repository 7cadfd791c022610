// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/woozymasta/pathrules"
	"gopkg.in/yaml.v3"
)

// Config is the file-based configuration of the engine and its CLI.
type Config struct {
	// Plugins carries plugin options by key (keys, variants).
	Plugins map[string]string `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	// Detect configures format detection.
	Detect DetectConfig `json:"detect" yaml:"detect"`
	// NameEncoding is the code page of entry names.
	NameEncoding string `json:"name_encoding,omitempty" yaml:"name_encoding,omitempty"`
	// Logging configures the CLI logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	// Extract configures extraction.
	Extract ExtractConfig `json:"extract" yaml:"extract"`
	// Limits are the parse sanity ceilings.
	Limits Limits `json:"limits" yaml:"limits"`
	// CacheSize is the number of decoded resources cached per archive.
	CacheSize int `json:"cache_size" yaml:"cache_size"`
	// Mmap memory maps archive files.
	Mmap bool `json:"mmap,omitempty" yaml:"mmap,omitempty"`
}

// DetectConfig configures format detection.
type DetectConfig struct {
	// Format forces one plugin id and skips detection.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// Floor is the acceptance floor a score must exceed.
	Floor int `json:"floor" yaml:"floor"`
}

// ExtractConfig configures extraction.
type ExtractConfig struct {
	// FileMode is the output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Include lists path patterns to extract; empty means all.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	// Exclude lists path patterns to skip.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// Workers is the number of decode workers per archive.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
	// Concurrency is the number of archives processed at once.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// RawNames disables output path sanitization.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
	// ContinueOnError keeps extracting after a resource fails.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`
	// Digest records a content digest per extracted resource.
	Digest bool `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Limits:    DefaultLimits(),
		CacheSize: DefaultCacheEntries,
		Detect: DetectConfig{
			Floor: DefaultAcceptanceFloor,
		},
		Extract: ExtractConfig{
			FileMode:        ExtractFileModeAuto,
			ContinueOnError: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a YAML config; missing fields keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath) //nolint:gosec // caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.Limits.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes cfg as YAML with owner-only permissions.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if _, err := ParseNameEncoding(c.NameEncoding); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.Extract.FileMode {
	case "", ExtractFileModeAuto, ExtractFileModeOverwriteSmart, ExtractFileModeTruncate, ExtractFileModeCreateOnly:
	default:
		return fmt.Errorf("config: unknown extract file mode %q", c.Extract.FileMode)
	}

	return nil
}

// Options converts the configuration to Open options.
func (c *Config) Options() []Option {
	enc, _ := ParseNameEncoding(c.NameEncoding)

	opts := []Option{
		WithLimits(c.Limits),
		WithNameEncoding(enc),
		WithCacheSize(c.CacheSize),
		WithMmap(c.Mmap),
		WithAcceptanceFloor(c.Detect.Floor),
	}
	if c.Detect.Format != "" {
		opts = append(opts, WithFormat(c.Detect.Format))
	}

	for _, key := range slices.Sorted(maps.Keys(c.Plugins)) {
		opts = append(opts, WithPluginOption(key, c.Plugins[key]))
	}

	return opts
}

// ExtractOptions converts the extract section to ExtractOptions.
func (c *Config) ExtractOptions() ExtractOptions {
	rules := make([]pathrules.Rule, 0, len(c.Extract.Include)+len(c.Extract.Exclude))
	for _, pattern := range c.Extract.Include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}

	defaultAction := pathrules.ActionExclude
	if len(c.Extract.Include) == 0 && len(c.Extract.Exclude) > 0 {
		defaultAction = pathrules.ActionInclude
	}
	for _, pattern := range c.Extract.Exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	return ExtractOptions{
		Rules: rules,
		MatcherOptions: pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   defaultAction,
		},
		FileMode:        c.Extract.FileMode,
		MaxWorkers:      c.Extract.Workers,
		RawNames:        c.Extract.RawNames,
		ContinueOnError: c.Extract.ContinueOnError,
		Digest:          c.Extract.Digest,
	}
}

// LogLevel returns the configured slog level; unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLogLevel(c.Logging.Level)
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// parseLogLevel resolves a level name.
func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
