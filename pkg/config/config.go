package config

import "time"

// Config holds host-level settings loaded from config.yaml.
type Config struct {
	Shell    string   `yaml:"shell"`    // shell binary for new sessions (default: $SHELL, then /bin/sh)
	Sessions int      `yaml:"sessions"` // number of session slots (default: 4)
	Timing   Timing   `yaml:"timing"`
	Buffers  Buffers  `yaml:"buffers"`
	Behavior Behavior `yaml:"behavior"`
}

type Timing struct {
	FrameIntervalMs   int `yaml:"frame_interval_ms"`    // frame tick period (default: 33)
	CwdPollIntervalMs int `yaml:"cwd_poll_interval_ms"` // min gap between cwd lookups (default: 1000)
}

type Buffers struct {
	ReadChunkBytes     int `yaml:"read_chunk_bytes"`      // PTY read scratch size (default: 4096)
	WriteShrinkBytes   int `yaml:"write_shrink_bytes"`    // pending-write cap before shrink (default: 65536)
	NotifyMaxLineBytes int `yaml:"notify_max_line_bytes"` // hard cap per notification line (default: 4096)
}

type Behavior struct {
	SpawnAllAtStart bool `yaml:"spawn_all_at_start"` // eager-spawn every slot instead of just the first
}

// FrameInterval returns the frame tick period as a duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Timing.FrameIntervalMs) * time.Millisecond
}

// CwdPollInterval returns the minimum gap between cwd lookups.
func (c *Config) CwdPollInterval() time.Duration {
	return time.Duration(c.Timing.CwdPollIntervalMs) * time.Millisecond
}
