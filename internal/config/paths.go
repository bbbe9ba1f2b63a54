// Package config provides Slingdial configuration loading and the
// per-language speech profile table.
package config

import (
	"os"
	"path/filepath"
)

// SlingdialPath returns the root directory for Slingdial data.
// It uses $SLINGDIAL_PATH if set, otherwise defaults to ~/.slingdial.
func SlingdialPath() string {
	if v := os.Getenv("SLINGDIAL_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".slingdial")
	}
	return filepath.Join(home, ".slingdial")
}

// ConfigPath returns the path to the Slingdial config file.
func ConfigPath() string {
	return filepath.Join(SlingdialPath(), "config.jsonc")
}

// DotenvPath returns the path to the Slingdial .env file.
func DotenvPath() string {
	return filepath.Join(SlingdialPath(), ".env")
}

// CallsPath returns the directory holding persisted call sessions.
func CallsPath() string {
	return filepath.Join(SlingdialPath(), "calls")
}

// CallLogPath returns the directory holding per-call event logs.
func CallLogPath() string {
	return filepath.Join(SlingdialPath(), "call-logs")
}

// HeartbeatPath returns the path to the server heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(SlingdialPath(), "heartbeat.json")
}
