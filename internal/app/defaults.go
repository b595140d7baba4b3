package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides for the default locations.
const (
	ConfigPathEnv = "DARKDROP_CONFIG_PATH"
	HomeEnv       = "DARKDROP_HOME"
)

// Defaults are the locations used before any config file has been read.
type Defaults struct {
	ConfigPath string // ~/.config/darkdrop.toml
	BaseDir    string // ~/.local/share/darkdrop
	LogDir     string // <BaseDir>/log
}

// GetDefaults resolves the default locations. ConfigPathEnv and HomeEnv take
// precedence over the home directory layout.
func GetDefaults() (Defaults, error) {
	configPath, err := envOrHome(ConfigPathEnv, ".config", "darkdrop.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome(HomeEnv, ".local", "share", "darkdrop")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

func envOrHome(env string, elem ...string) (string, error) {
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory (set %s): %w", env, err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}
