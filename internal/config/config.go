package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for flowscan.
type Config struct {
	LogDir       string         `toml:"log_dir"`
	LogLevel     string         `toml:"log_level,omitempty"` // debug, info (default), warn, error
	SettingsPath string         `toml:"settings_path"`
	Database     DatabaseConfig `toml:"database"`
	Server       ServerConfig   `toml:"server"`
	Scanner      ScannerConfig  `toml:"scanner"`
}

// Database types accepted in DatabaseConfig.Type.
const (
	DatabaseSQL   = "sql"
	DatabaseMongo = "mongo"
)

// DatabaseConfig represents configuration for the result store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type           string        `toml:"type"` // "sql" or "mongo"
	DatabaseName   string        `toml:"database_name"`
	ConnectTimeout time.Duration `toml:"connect_timeout,omitempty"` // default 10s

	// SQL-specific fields (only used when Type == "sql")
	Driver   string `toml:"driver,omitempty"` // "mysql" (default) or "sqlite"
	Host     string `toml:"host,omitempty"`   // host:port for mysql, directory or ":memory:" for sqlite
	User     string `toml:"user,omitempty"`
	Password string `toml:"password,omitempty"`
	Atomic   bool   `toml:"atomic,omitempty"` // wrap each flow and its reviews in one transaction

	// Mongo-specific fields (only used when Type == "mongo")
	URI     string         `toml:"uri,omitempty"`
	Options map[string]any `toml:"options,omitempty"` // merged into the URI query
}

// ServerConfig holds the telemetry server settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// ScannerConfig describes the external scan process.
type ScannerConfig struct {
	Command     string        `toml:"command"`
	Args        []string      `toml:"args,omitempty"`
	ResultsPath string        `toml:"results_path"`
	StopGrace   time.Duration `toml:"stop_grace,omitempty"` // time between interrupt and kill; default 10s
}

// DefaultAddr is the telemetry server listen address used by NewConfig.
const DefaultAddr = "127.0.0.1:8642"

// NewConfig creates a new Config rooted at baseDir with a local sqlite store.
func NewConfig(baseDir string) *Config {
	return &Config{
		LogDir:       filepath.Join(baseDir, "log"),
		SettingsPath: filepath.Join(baseDir, "settings.toml"),
		Database: DatabaseConfig{
			Type:         DatabaseSQL,
			Driver:       "sqlite",
			Host:         filepath.Join(baseDir, "db"),
			DatabaseName: "flowscan",
		},
		Server: ServerConfig{Addr: DefaultAddr},
		Scanner: ScannerConfig{
			ResultsPath: filepath.Join(baseDir, "results.json"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
