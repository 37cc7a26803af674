// Package config loads the demo embedder's JSON configuration, following
// the defaults-then-overlay pattern used throughout the example pack:
// start from a struct literal of defaults, then unmarshal the file on top
// of it so a config.json only needs to mention the fields it overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// ServerConfig configures every listener cmd/ringwired brings up plus its
// copyover behavior. It deliberately carries only fields telnetcore's
// demo embedder needs — not a general-purpose application config.
type ServerConfig struct {
	PlainTelnetHost    string `json:"plainTelnetHost"`
	PlainTelnetPort    int    `json:"plainTelnetPort"`
	PlainTelnetEnabled bool   `json:"plainTelnetEnabled"`

	TLSHost    string `json:"tlsHost"`
	TLSPort    int    `json:"tlsPort"`
	TLSEnabled bool   `json:"tlsEnabled"`
	TLSCert    string `json:"tlsCertFile"`
	TLSKey     string `json:"tlsKeyFile"`

	WebSocketHost    string `json:"webSocketHost"`
	WebSocketPort    int    `json:"webSocketPort"`
	WebSocketEnabled bool   `json:"webSocketEnabled"`
	WebSocketPath    string `json:"webSocketPath"`

	SSHHost             string `json:"sshHost"`
	SSHPort             int    `json:"sshPort"`
	SSHEnabled          bool   `json:"sshEnabled"`
	SSHHostKeyPath      string `json:"sshHostKeyPath"`
	LegacySSHAlgorithms bool   `json:"legacySSHAlgorithms"`

	// KeepaliveSchedule is a robfig/cron expression controlling how often
	// every live connection is sent IAC NOP. Empty disables the sweep.
	KeepaliveSchedule string `json:"keepaliveSchedule"`

	// CopyoverDocPath is where a Copyover document is written before
	// exec and read back by the successor process on startup.
	CopyoverDocPath string `json:"copyoverDocPath"`

	DebugLogging bool `json:"debugLogging"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		PlainTelnetHost:    "0.0.0.0",
		PlainTelnetPort:    2323,
		PlainTelnetEnabled: true,

		TLSHost:    "0.0.0.0",
		TLSPort:    2324,
		TLSEnabled: false,

		WebSocketHost:    "0.0.0.0",
		WebSocketPort:    2325,
		WebSocketEnabled: false,
		WebSocketPath:    "/telnet",

		SSHHost:             "0.0.0.0",
		SSHPort:             2222,
		SSHEnabled:          false,
		SSHHostKeyPath:      "ringwired_host_key",
		LegacySSHAlgorithms: false,

		KeepaliveSchedule: "@every 60s",
		CopyoverDocPath:   "ringwired.copyover.json",
	}
}

// LoadServerConfig loads config.json from configPath, overlaying it onto
// defaultServerConfig. A missing file is not an error: the defaults are
// returned as-is, matching the reference implementation's "run with sane
// defaults if unconfigured" behavior.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	filePath := filepath.Join(configPath, "config.json")
	cfg := defaultServerConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: config.json not found at %s, using default settings", filePath)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaultServerConfig(), fmt.Errorf("parse config JSON from %s: %w", filePath, err)
	}

	log.Printf("INFO: loaded server configuration from %s", filePath)
	return cfg, nil
}

// SaveServerConfig writes cfg to config.json under configPath, pretty
// printed for human editing.
func SaveServerConfig(configPath string, cfg ServerConfig) error {
	filePath := filepath.Join(configPath, "config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal server config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", filePath, err)
	}
	return nil
}
