package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const appName = "cmdai"

// legacyDir is the per-user directory of earlier releases.
const legacyDir = ".cmdai-terminal"

// GetConfigDir returns the platform-specific configuration directory
// Linux: ~/.config/cmdai
// macOS: ~/Library/Application Support/cmdai
// Windows: %LOCALAPPDATA%\cmdai
func GetConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// GetDefaultDataDir returns the platform-specific default data directory
// Linux: ~/.local/share/cmdai
func GetDefaultDataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultConfigPath is where the config is saved when none was loaded.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.toml")
}

// CandidatePaths lists the config files tried in order when no path is given.
func CandidatePaths() []string {
	return []string{
		"config.yaml",
		"config.yml",
		"config.toml",
		filepath.Join(xdg.Home, legacyDir, "config.yaml"),
		DefaultConfigPath(),
	}
}

// FindConfigFile returns the first existing candidate, or DefaultConfigPath.
func FindConfigFile() string {
	for _, p := range CandidatePaths() {
		if FileExists(p) {
			return p
		}
	}
	return DefaultConfigPath()
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" {
		path = xdg.Home
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(xdg.Home, path[2:])
	}

	path = os.ExpandEnv(path)

	return filepath.Clean(path)
}

// EnsureDir creates a directory if it doesn't exist (0700 - user-only access)
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func joinPath(elem ...string) string {
	return filepath.Join(elem...)
}
