// Package config loads engine configuration from a YAML file and turns it
// into engine options.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tachyondb/tachyon/compressors"
	"github.com/tachyondb/tachyon/engine"
	"github.com/tachyondb/tachyon/segment"
)

// MemtableConfig holds write-buffer configurations.
type MemtableConfig struct {
	// SizeThresholdBytes triggers an automatic flush when a stream's buffer
	// grows past it. Negative disables automatic flushing.
	SizeThresholdBytes int64 `yaml:"size_threshold_bytes"`
}

// SegmentConfig holds flushed-segment configurations.
type SegmentConfig struct {
	BlockCapacity int    `yaml:"block_capacity"`
	Compression   string `yaml:"compression"`
}

// EngineConfig groups all storage configurations.
type EngineConfig struct {
	DataDir  string         `yaml:"data_dir"`
	Memtable MemtableConfig `yaml:"memtable"`
	Segment  SegmentConfig  `yaml:"segment"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DataDir: "./data",
			Memtable: MemtableConfig{
				SizeThresholdBytes: engine.DefaultMemtableThreshold,
			},
			Segment: SegmentConfig{
				BlockCapacity: segment.DefaultBlockCapacity,
				Compression:   "none",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Load reads and validates a YAML configuration file, filling omitted
// fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values without touching the filesystem.
func (c *Config) Validate() error {
	if c.Engine.DataDir == "" {
		return fmt.Errorf("engine.data_dir must not be empty")
	}
	if c.Engine.Segment.BlockCapacity < 0 {
		return fmt.Errorf("engine.segment.block_capacity must not be negative")
	}
	if _, err := compressors.Parse(c.Engine.Segment.Compression); err != nil {
		return fmt.Errorf("engine.segment.compression: %w", err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr", "none":
	case "file":
		if c.Logging.File == "" {
			return fmt.Errorf("logging.file must be set when logging.output is \"file\"")
		}
	default:
		return fmt.Errorf("logging.output: unknown output %q", c.Logging.Output)
	}
	return nil
}

// EngineOptions converts the configuration into engine options. The caller
// still owns the data directory path.
func (c *Config) EngineOptions() (engine.Options, error) {
	comp, err := compressors.Parse(c.Engine.Segment.Compression)
	if err != nil {
		return engine.Options{}, err
	}
	logger, err := c.BuildLogger()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Logger:            logger,
		Compression:       comp,
		MemtableThreshold: c.Engine.Memtable.SizeThresholdBytes,
		BlockCapacity:     c.Engine.Segment.BlockCapacity,
	}, nil
}

// BuildLogger constructs the slog logger the configuration describes.
func (c *Config) BuildLogger() (*slog.Logger, error) {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer
	switch c.Logging.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "none":
		out = io.Discard
	case "file":
		f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("config: open log file: %w", err)
		}
		out = f
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}
