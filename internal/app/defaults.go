package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Defaults holds the application default paths.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// envPaths are the environment overrides for Defaults.
type envPaths struct {
	ConfigPath string `env:"FLOWSCAN_CONFIG_PATH"`
	Home       string `env:"FLOWSCAN_HOME"`
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FLOWSCAN_CONFIG_PATH: config file location (default: ~/.config/flowscan.toml)
//   - FLOWSCAN_HOME: base directory for flowscan data (default: ~/.local/share/flowscan)
func GetDefaults() (*Defaults, error) {
	var paths envPaths
	if err := env.Parse(&paths); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if paths.ConfigPath == "" || paths.Home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if paths.ConfigPath == "" {
			paths.ConfigPath = filepath.Join(homeDir, ".config", "flowscan.toml")
		}
		if paths.Home == "" {
			paths.Home = filepath.Join(homeDir, ".local", "share", "flowscan")
		}
	}

	return &Defaults{
		ConfigPath: paths.ConfigPath,
		BaseDir:    paths.Home,
		LogDir:     filepath.Join(paths.Home, "log"),
	}, nil
}
