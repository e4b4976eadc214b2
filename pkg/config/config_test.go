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
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_KeepsDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("CASEHUB_TEST_TOKEN", "s3cret")
	path := writeConfig(t, "name: hub\ntoken: ${CASEHUB_TEST_TOKEN}\n")

	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "hub" || cfg.Port != 8080 || cfg.Token != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, "nmae: typo\n")
	cfg := sample{Port: 1}
	if err := Load(path, &cfg); err == nil {
		t.Fatal("unknown field should fail")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg := sample{Port: 1}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("empty file should keep defaults: %v", err)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeConfig(t, "port: 0\n")
	cfg := sample{Port: 1}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := sample{Port: 9000}
	if err := LoadOptional(missing, &cfg); err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d", cfg.Port)
	}

	bad := sample{}
	if err := LoadOptional(missing, &bad); err == nil {
		t.Fatal("invalid defaults should still be reported")
	}
}
