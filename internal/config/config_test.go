package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfig_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadServerConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := defaultServerConfig()
	if cfg != want {
		t.Fatalf("expected defaults %+v, got %+v", want, cfg)
	}
}

func TestLoadServerConfig_OverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"plainTelnetPort": 4000, "sshEnabled": true}`), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cfg, err := LoadServerConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PlainTelnetPort != 4000 {
		t.Fatalf("expected overridden PlainTelnetPort 4000, got %d", cfg.PlainTelnetPort)
	}
	if !cfg.SSHEnabled {
		t.Fatal("expected overridden SSHEnabled true")
	}
	if cfg.PlainTelnetHost != defaultServerConfig().PlainTelnetHost {
		t.Fatalf("expected untouched field to keep its default, got %q", cfg.PlainTelnetHost)
	}
}

func TestSaveServerConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultServerConfig()
	cfg.PlainTelnetPort = 9999

	if err := SaveServerConfig(dir, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := LoadServerConfig(dir)
	if err != nil {
		t.Fatalf("load after save failed: %v", err)
	}
	if got.PlainTelnetPort != 9999 {
		t.Fatalf("expected round-tripped PlainTelnetPort 9999, got %d", got.PlainTelnetPort)
	}
}
