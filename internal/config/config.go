// Package config loads and saves the pwsafe CLI configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/pwsafe/pkg/crypto"
	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/passgen"
)

// Config represents the CLI configuration
type Config struct {
	// File is the password database opened when --file is not given.
	File string `yaml:"file"`
	// FormatVersion is the version of newly created databases (1, 2 or 3).
	FormatVersion int `yaml:"format_version"`
	// Iterations is the V3 key-stretch iteration count for new databases.
	Iterations uint32    `yaml:"iterations"`
	Logging    Logging   `yaml:"logging"`
	Generator  Generator `yaml:"generator"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Generator holds the default password policy.
type Generator struct {
	Length     int    `yaml:"length"`
	Lowercase  bool   `yaml:"lowercase"`
	Uppercase  bool   `yaml:"uppercase"`
	Digits     bool   `yaml:"digits"`
	Symbols    bool   `yaml:"symbols"`
	EasyVision bool   `yaml:"easy_vision"`
	Exclude    string `yaml:"exclude"`
}

// Policy converts the generator settings into a password policy.
func (g Generator) Policy() passgen.Policy {
	return passgen.Policy{
		Length:     g.Length,
		Lowercase:  g.Lowercase,
		Uppercase:  g.Uppercase,
		Digits:     g.Digits,
		Symbols:    g.Symbols,
		EasyVision: g.EasyVision,
		Exclude:    g.Exclude,
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	p := passgen.DefaultPolicy()
	return &Config{
		File:          defaultDatabasePath(),
		FormatVersion: int(field.V3),
		Iterations:    crypto.MinStretchIterations,
		Logging: Logging{
			Level: "warn",
		},
		Generator: Generator{
			Length:    p.Length,
			Lowercase: p.Lowercase,
			Uppercase: p.Uppercase,
			Digits:    p.Digits,
			Symbols:   p.Symbols,
		},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !field.Version(c.FormatVersion).Valid() {
		return fmt.Errorf("config: format_version must be 1, 2 or 3, got %d", c.FormatVersion)
	}
	if c.Iterations < crypto.MinStretchIterations {
		return fmt.Errorf("config: iterations must be at least %d, got %d", crypto.MinStretchIterations, c.Iterations)
	}
	if err := c.Generator.Policy().Validate(); err != nil {
		return fmt.Errorf("config: generator: %w", err)
	}
	return nil
}

// Load reads the configuration at path. A missing file yields the defaults;
// keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the user
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration to path with secure permissions.
func Save(config *Config, path string) error {
	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultPath returns ~/.config/pwsafe/config.yaml, or a relative fallback
// when the home directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pwsafe.yaml"
	}
	return filepath.Join(dir, "pwsafe", "config.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pwsafe.psafe3"
	}
	return filepath.Join(home, "pwsafe.psafe3")
}
