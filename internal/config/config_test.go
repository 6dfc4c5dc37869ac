package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		LogDir:       "/home/user/.local/share/flowscan/log",
		SettingsPath: "/home/user/.local/share/flowscan/settings.toml",
		Database: DatabaseConfig{
			Type:         DatabaseSQL,
			Driver:       "mysql",
			Host:         "db.internal:3306",
			User:         "scanner",
			Password:     "s3cret",
			DatabaseName: "reports",
			Atomic:       true,
		},
		Server: ServerConfig{Addr: "0.0.0.0:9000"},
		Scanner: ScannerConfig{
			Command:     "/usr/local/bin/flow-crawler",
			Args:        []string{"--fast"},
			ResultsPath: "/tmp/results.json",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.SettingsPath != original.SettingsPath {
		t.Errorf("SettingsPath = %q, want %q", got.SettingsPath, original.SettingsPath)
	}
	if got.Database.Type != DatabaseSQL {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, DatabaseSQL)
	}
	if got.Database.Host != "db.internal:3306" {
		t.Errorf("Database.Host = %q, want %q", got.Database.Host, "db.internal:3306")
	}
	if got.Database.Password != "s3cret" {
		t.Errorf("Database.Password = %q, want %q", got.Database.Password, "s3cret")
	}
	if !got.Database.Atomic {
		t.Error("Database.Atomic = false, want true")
	}
	if got.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q, want %q", got.Server.Addr, "0.0.0.0:9000")
	}
	if got.Scanner.Command != original.Scanner.Command {
		t.Errorf("Scanner.Command = %q, want %q", got.Scanner.Command, original.Scanner.Command)
	}
	if len(got.Scanner.Args) != 1 || got.Scanner.Args[0] != "--fast" {
		t.Errorf("Scanner.Args = %v, want [--fast]", got.Scanner.Args)
	}
}

func TestManager_Read_MongoOptions(t *testing.T) {
	input := `
[database]
type = "mongo"
uri = "mongodb://localhost:27017"
database_name = "flows"
connect_timeout = "3s"

[database.options]
maxPoolSize = 20
retryWrites = true
appName = "flowscan"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Database.Type != DatabaseMongo {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, DatabaseMongo)
	}
	if cfg.Database.ConnectTimeout.Seconds() != 3 {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.Database.ConnectTimeout)
	}
	if len(cfg.Database.Options) != 3 {
		t.Fatalf("len(Options) = %d, want 3", len(cfg.Database.Options))
	}
	if cfg.Database.Options["appName"] != "flowscan" {
		t.Errorf("Options[appName] = %v, want flowscan", cfg.Database.Options["appName"])
	}
	if cfg.Database.Options["retryWrites"] != true {
		t.Errorf("Options[retryWrites] = %v, want true", cfg.Database.Options["retryWrites"])
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/flowscan")

	if cfg.LogDir != "/data/flowscan/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/flowscan/log")
	}
	if cfg.SettingsPath != "/data/flowscan/settings.toml" {
		t.Errorf("SettingsPath = %q, want %q", cfg.SettingsPath, "/data/flowscan/settings.toml")
	}
	if cfg.Database.Type != DatabaseSQL || cfg.Database.Driver != "sqlite" {
		t.Errorf("Database = %+v, want sql/sqlite", cfg.Database)
	}
	if cfg.Database.Host != "/data/flowscan/db" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "/data/flowscan/db")
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowscan.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowscan.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, NewConfig(dir)); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flowscan.toml")
		cfg := NewConfig(dir)
		cfg.Database.DatabaseName = "read-test"

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.DatabaseName != "read-test" {
			t.Errorf("DatabaseName = %q, want %q", got.Database.DatabaseName, "read-test")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/flowscan.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
