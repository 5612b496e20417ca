package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Missing(t *testing.T) {
	t.Setenv("SHELL", "/bin/bash")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config for missing file")
	}
	if cfg.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want $SHELL fallback", cfg.Shell)
	}
	if cfg.Sessions != 4 {
		t.Errorf("Sessions = %d, want 4", cfg.Sessions)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("shell: /bin/zsh\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Shell != "/bin/zsh" {
		t.Errorf("Shell = %q, want /bin/zsh", cfg.Shell)
	}
	if cfg.Timing.FrameIntervalMs != 33 {
		t.Errorf("FrameIntervalMs = %d, want 33", cfg.Timing.FrameIntervalMs)
	}
	if cfg.Timing.CwdPollIntervalMs != 1000 {
		t.Errorf("CwdPollIntervalMs = %d, want 1000", cfg.Timing.CwdPollIntervalMs)
	}
	if cfg.Buffers.WriteShrinkBytes != 64*1024 {
		t.Errorf("WriteShrinkBytes = %d, want 65536", cfg.Buffers.WriteShrinkBytes)
	}
}

func TestLoadConfig_BadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("shell: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := &Config{Shell: "/bin/sh", Sessions: 9}
	in.Timing.FrameIntervalMs = 16

	if err := SaveConfig(path, in); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	out, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if out.Sessions != 9 || out.Timing.FrameIntervalMs != 16 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
