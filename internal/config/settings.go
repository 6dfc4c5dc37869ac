package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Settings is the scan configuration observers can view and change between scans.
// It is handed to the scan process as a toml file.
type Settings struct {
	Sources    []string          `toml:"sources" json:"sources"`
	Categories []string          `toml:"categories" json:"categories"`
	MaxFlows   int               `toml:"max_flows" json:"maxFlows"`
	Options    map[string]string `toml:"options" json:"options"`
}

// LoadSettings reads settings from path. A missing file yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("reading settings from %s: %w", path, err)
	}
	return &s, nil
}

// SaveSettings writes settings to path, replacing the previous file atomically.
func SaveSettings(path string, s *Settings) error {
	if s.MaxFlows < 0 {
		return fmt.Errorf("max_flows must not be negative, got %d", s.MaxFlows)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}
