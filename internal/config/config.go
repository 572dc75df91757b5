// Package config loads application configuration from an optional YAML file
// and environment variables using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "QUILL_RELAY"

// Config represents the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	VertexAI VertexAIConfig `mapstructure:"vertexai"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port                   int    `mapstructure:"port"`
	AllowedOrigin          string `mapstructure:"allowed_origin"`
	ReadTimeoutSeconds     int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// UpstreamConfig controls the outbound HTTP client.
type UpstreamConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout returns the outbound client timeout as a duration.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// VertexAIConfig holds the server-side project and location the Vertex AI
// predict endpoint requires. ProjectID has no default; Vertex requests fail
// until it is set.
type VertexAIConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Location  string `mapstructure:"location"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given YAML file (optional) and from
// QUILL_RELAY_* environment variables, applies defaults and validates the
// result. Environment variables take priority over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 45)
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("upstream.timeout_seconds", 60)

	// Empty default registers the key so env-only overrides are picked up.
	v.SetDefault("vertexai.project_id", "")
	v.SetDefault("vertexai.location", "us-central1")

	v.SetDefault("logging.level", "info")
}

// Validate performs sanity checks on the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.AllowedOrigin == "" {
		return fmt.Errorf("server.allowed_origin must not be empty")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be positive, got %d", c.Upstream.TimeoutSeconds)
	}
	if strings.TrimSpace(c.VertexAI.Location) == "" {
		return fmt.Errorf("vertexai.location must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
