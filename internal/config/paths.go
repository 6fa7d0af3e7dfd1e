package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// LocalDir is the per-project state directory.
const LocalDir = ".probewing"

// GetGlobalConfigDir returns the path to the global configuration directory (~/.probewing).
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, LocalDir), nil
}

// GetMemoryBasePath returns the path to the memory directory.
// Resolution order (first match wins):
// 1. Explicit config via "memory.path" (Viper/env/flag)
// 2. Local project directory: .probewing/memory (if exists)
// 3. XDG_DATA_HOME/probewing/memory (if XDG_DATA_HOME is set)
// 4. Global fallback: ~/.probewing/memory
func GetMemoryBasePath() string {
	if path := viper.GetString("memory.path"); path != "" {
		return path
	}

	localMemory := filepath.Join(LocalDir, "memory")
	if info, err := os.Stat(localMemory); err == nil && info.IsDir() {
		return localMemory
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "probewing", "memory")
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "./memory"
	}
	return filepath.Join(dir, "memory")
}

// GetStateDir returns the directory crash logs are written under: the local
// .probewing directory when present, else the global one.
func GetStateDir() string {
	if info, err := os.Stat(LocalDir); err == nil && info.IsDir() {
		return LocalDir
	}
	if dir, err := GetGlobalConfigDir(); err == nil {
		return dir
	}
	return LocalDir
}
