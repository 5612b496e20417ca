// Package paths provides centralized path resolution for Archon's config,
// state, and runtime files.
//
// Layout (XDG-style):
//
//	Config:  ~/.config/archon/config.yaml     (override: ARCHON_CONFIG_DIR)
//	State:   ~/.local/state/archon/           (override: ARCHON_STATE_DIR)
//	Runtime: /tmp/archon-*                    (override: ARCHON_RUNTIME_DIR)
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	configDirOnce   sync.Once
	configDirCached string

	stateDirOnce   sync.Once
	stateDirCached string
)

// ConfigDir resolves the config directory.
// Priority: ARCHON_CONFIG_DIR env > ~/.config/archon/
func ConfigDir() string {
	configDirOnce.Do(func() {
		if env := os.Getenv("ARCHON_CONFIG_DIR"); env != "" {
			configDirCached = env
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				configDirCached = "."
			} else {
				configDirCached = filepath.Join(home, ".config", "archon")
			}
		}
	})
	return configDirCached
}

// StateDir resolves the state directory.
// Priority: ARCHON_STATE_DIR env > ~/.local/state/archon/
func StateDir() string {
	stateDirOnce.Do(func() {
		if env := os.Getenv("ARCHON_STATE_DIR"); env != "" {
			stateDirCached = env
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				stateDirCached = "."
			} else {
				stateDirCached = filepath.Join(home, ".local", "state", "archon")
			}
		}
	})
	return stateDirCached
}

// RuntimeDir resolves the runtime directory for sockets and logs.
// Priority: ARCHON_RUNTIME_DIR env > /tmp
func RuntimeDir() string {
	if env := os.Getenv("ARCHON_RUNTIME_DIR"); env != "" {
		return env
	}
	return "/tmp"
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// NotifySocketPath returns the notification socket path for a host process.
// Keyed by pid so concurrent hosts never collide.
func NotifySocketPath(pid int) string {
	return filepath.Join(RuntimeDir(), fmt.Sprintf("archon-notify-%d.sock", pid))
}

// CrashLogPath returns the crash log path for a host process.
func CrashLogPath(pid int) string {
	return filepath.Join(RuntimeDir(), fmt.Sprintf("archon-%d-crash.log", pid))
}

// EventLogPath returns the event log path for a host process.
func EventLogPath(pid int) string {
	return filepath.Join(RuntimeDir(), fmt.Sprintf("archon-%d-events.log", pid))
}

// EnsureConfigDir creates the config directory if it doesn't exist and returns its path.
func EnsureConfigDir() (string, error) {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureStateDir creates the state directory if it doesn't exist and returns its path.
func EnsureStateDir() (string, error) {
	dir := StateDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return dir, nil
}

// ResetForTest clears cached values so tests can re-run resolution logic.
// Only use in tests.
func ResetForTest() {
	configDirOnce = sync.Once{}
	configDirCached = ""
	stateDirOnce = sync.Once{}
	stateDirCached = ""
}
