package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Extractor.Dimension != 128 {
		t.Errorf("Extractor.Dimension = %d, want 128", cfg.Extractor.Dimension)
	}
	if cfg.Extractor.Timeout != 30*time.Second {
		t.Errorf("Extractor.Timeout = %v, want 30s", cfg.Extractor.Timeout)
	}
	if cfg.Extractor.Mode != "remote" {
		t.Errorf("Extractor.Mode = %q, want remote", cfg.Extractor.Mode)
	}
	if cfg.Matching.Threshold != 0.5 {
		t.Errorf("Matching.Threshold = %v, want 0.5", cfg.Matching.Threshold)
	}
	if cfg.Ingest.MaxImages != 4 {
		t.Errorf("Ingest.MaxImages = %d, want 4", cfg.Ingest.MaxImages)
	}
	if cfg.Ingest.MaxImageBytes != 5*1024*1024 {
		t.Errorf("Ingest.MaxImageBytes = %d, want 5MiB", cfg.Ingest.MaxImageBytes)
	}
	if cfg.Session.Lifetime != 7*24*time.Hour {
		t.Errorf("Session.Lifetime = %v, want 168h", cfg.Session.Lifetime)
	}
	if cfg.Session.CookieName != "facegate_session" {
		t.Errorf("Session.CookieName = %q", cfg.Session.CookieName)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_YAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9001
extractor:
  mode: local
  dimension: 512
  timeout: 10s
matching:
  threshold: 0.35
session:
  secret: topsecret
  lifetime: 24h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Extractor.Mode != "local" {
		t.Errorf("Extractor.Mode = %q, want local", cfg.Extractor.Mode)
	}
	if cfg.Extractor.Dimension != 512 {
		t.Errorf("Extractor.Dimension = %d, want 512", cfg.Extractor.Dimension)
	}
	if cfg.Matching.Threshold != 0.35 {
		t.Errorf("Matching.Threshold = %v, want 0.35", cfg.Matching.Threshold)
	}
	if cfg.Session.Lifetime != 24*time.Hour {
		t.Errorf("Session.Lifetime = %v, want 24h", cfg.Session.Lifetime)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9001\n")

	t.Setenv("FG_SERVER_PORT", "7070")
	t.Setenv("FG_SESSION_SECRET", "from-env")
	t.Setenv("FG_MATCH_THRESHOLD", "0.6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Session.Secret != "from-env" {
		t.Errorf("Session.Secret = %q, want from-env", cfg.Session.Secret)
	}
	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("Matching.Threshold = %v, want 0.6", cfg.Matching.Threshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for missing file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "facegate", User: "fg", Password: "pw"}
	want := "postgres://fg:pw@db:5433/facegate?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
