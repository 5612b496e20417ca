package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound reports a missing config file. LoadConfig still returns a
// usable default config alongside it.
var ErrNotFound = errors.New("config file not found")

// LoadConfig reads and parses the config file at path, applying defaults
// for anything unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// SaveConfig writes the config to the specified path
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Shell == "" {
		if sh := os.Getenv("SHELL"); sh != "" {
			cfg.Shell = sh
		} else {
			cfg.Shell = "/bin/sh"
		}
	}
	if cfg.Sessions <= 0 {
		cfg.Sessions = 4
	}
	if cfg.Timing.FrameIntervalMs <= 0 {
		cfg.Timing.FrameIntervalMs = 33
	}
	if cfg.Timing.CwdPollIntervalMs <= 0 {
		cfg.Timing.CwdPollIntervalMs = 1000
	}
	if cfg.Buffers.ReadChunkBytes <= 0 {
		cfg.Buffers.ReadChunkBytes = 4096
	}
	if cfg.Buffers.WriteShrinkBytes <= 0 {
		cfg.Buffers.WriteShrinkBytes = 64 * 1024
	}
	if cfg.Buffers.NotifyMaxLineBytes <= 0 {
		cfg.Buffers.NotifyMaxLineBytes = 4096
	}
}
