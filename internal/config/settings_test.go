package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettings_MissingFile(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "settings.toml"))
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s == nil {
		t.Fatal("LoadSettings() returned nil")
	}
	if len(s.Sources) != 0 || s.MaxFlows != 0 {
		t.Errorf("LoadSettings() = %+v, want empty settings", s)
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	want := &Settings{
		Sources:    []string{"https://flows.example.org"},
		Categories: []string{"automation", "iot"},
		MaxFlows:   250,
		Options:    map[string]string{"depth": "2"},
	}

	if err := SaveSettings(path, want); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0] != want.Sources[0] {
		t.Errorf("Sources = %v, want %v", got.Sources, want.Sources)
	}
	if len(got.Categories) != 2 {
		t.Errorf("Categories = %v, want %v", got.Categories, want.Categories)
	}
	if got.MaxFlows != 250 {
		t.Errorf("MaxFlows = %d, want 250", got.MaxFlows)
	}
	if got.Options["depth"] != "2" {
		t.Errorf("Options[depth] = %q, want %q", got.Options["depth"], "2")
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestSaveSettings_RejectsNegativeMaxFlows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := SaveSettings(path, &Settings{MaxFlows: -1}); err == nil {
		t.Fatal("SaveSettings() expected error for negative max_flows")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("settings file should not be written on validation failure")
	}
}

func TestLoadSettings_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("max_flows = \"many\""), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("LoadSettings() expected error for invalid file")
	}
}
