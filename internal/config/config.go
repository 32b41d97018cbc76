package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "h2o.yml"

// DefaultOutput is the log file written when no output is configured.
const DefaultOutput = "h2o.out"

// RedisConfig enables mirroring the run log to Redis.
type RedisConfig struct {
	URL string `yaml:"url"`           // redis://host:port/db
	Run string `yaml:"run,omitempty"` // Namespace for the run's keys; generated when empty
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // trace, debug, info, warn, error, off
}

// File represents the optional h2o.yml configuration.
type File struct {
	Version string       `yaml:"version"`
	Output  string       `yaml:"output,omitempty"`
	Seed    *uint64      `yaml:"seed,omitempty"` // Fixed seed for delay draws; random when omitted
	Redis   *RedisConfig `yaml:"redis,omitempty"`
	Log     *LogConfig   `yaml:"log,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *File {
	return &File{
		Version: "1.0",
		Output:  DefaultOutput,
		Log:     &LogConfig{Level: "warn"},
	}
}

// Validate performs strict validation and fills in defaults.
func (c *File) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Output == "" {
		c.Output = DefaultOutput
	}

	if c.Redis != nil && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when the redis section is present")
	}

	if c.Log == nil {
		c.Log = &LogConfig{Level: "warn"}
	} else if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("invalid log.level: %s (must be trace, debug, info, warn, error or off)", c.Log.Level)
	}

	return nil
}

// Load reads and validates the config file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config File
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise.
// A file that exists but cannot be parsed is still an error.
func LoadOrDefault(path string) (*File, error) {
	config, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}
