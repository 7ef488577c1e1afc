//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "parley")
	}
	return "parley-data"
}

func apiKeyHint() string {
	return " or macOS Keychain (service: parley, account: generation_api_key)"
}
