package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.AllowedOrigin != "*" {
		t.Errorf("AllowedOrigin = %q", cfg.Server.AllowedOrigin)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d", cfg.Upstream.TimeoutSeconds)
	}
	if got := cfg.Upstream.Timeout(); got != 60*time.Second {
		t.Errorf("Timeout() = %v", got)
	}
	if cfg.VertexAI.ProjectID != "" {
		t.Errorf("ProjectID = %q, want unset by default", cfg.VertexAI.ProjectID)
	}
	if cfg.VertexAI.Location != "us-central1" {
		t.Errorf("Location = %q", cfg.VertexAI.Location)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUILL_RELAY_SERVER_PORT", "9090")
	t.Setenv("QUILL_RELAY_VERTEXAI_PROJECT_ID", "my-project")
	t.Setenv("QUILL_RELAY_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want env override", cfg.Server.Port)
	}
	if cfg.VertexAI.ProjectID != "my-project" {
		t.Errorf("ProjectID = %q, want env override", cfg.VertexAI.ProjectID)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want env override", cfg.Logging.Level)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"server:",
		"  port: 3000",
		"  allowed_origin: https://app.example.test",
		"upstream:",
		"  timeout_seconds: 15",
		"vertexai:",
		"  project_id: file-project",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Server.AllowedOrigin != "https://app.example.test" {
		t.Errorf("AllowedOrigin = %q", cfg.Server.AllowedOrigin)
	}
	if cfg.Upstream.TimeoutSeconds != 15 {
		t.Errorf("TimeoutSeconds = %d", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.VertexAI.ProjectID != "file-project" {
		t.Errorf("ProjectID = %q", cfg.VertexAI.ProjectID)
	}
	// Untouched sections keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 3000\n"), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("QUILL_RELAY_SERVER_PORT", "4000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Port = %d, want env to beat file", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080, AllowedOrigin: "*"},
			Upstream: UpstreamConfig{TimeoutSeconds: 60},
			VertexAI: VertexAIConfig{Location: "us-central1"},
			Logging:  LoggingConfig{Level: "info"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty origin", func(c *Config) { c.Server.AllowedOrigin = "" }},
		{"zero timeout", func(c *Config) { c.Upstream.TimeoutSeconds = 0 }},
		{"blank location", func(c *Config) { c.VertexAI.Location = "  " }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
