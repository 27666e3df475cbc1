// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg locates the accounts service's XDG configuration directory.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "holomush-accounts"

// ConfigFileName is the file looked up when no --config flag is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for the accounts service.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the path of config.yaml in ConfigDir if that
// file exists, or the empty string.
func DefaultConfigFile() string {
	path := filepath.Join(ConfigDir(), ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
