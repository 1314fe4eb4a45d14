package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Other string `yaml:"other"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("KEYSCAN_TEST_NAME", "studio")
	path := writeFile(t, "name: ${KEYSCAN_TEST_NAME}\n")

	cfg := sample{Port: 8080, Other: "kept"}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "studio" || cfg.Port != 8080 || cfg.Other != "kept" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Load(writeFile(t, ""), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 1 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Error("missing file should fail")
	}
	if err := Load(writeFile(t, "nmae: typo\n"), &cfg); err == nil {
		t.Error("unknown key should fail")
	}
	err := Load(writeFile(t, "port: 0\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("validation err = %v", err)
	}
}
