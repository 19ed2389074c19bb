package web

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Data     DataConfig     `json:"data"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port        int    `json:"port"`
	Host        string `json:"host"`
	AllowOrigin string `json:"allow_origin"`
}

// DataConfig locates the written pivot tables and quality reports
type DataConfig struct {
	Dir string `json:"dir"`
}

// DatabaseConfig enables the series endpoint backed by published counts
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	APIKey string `json:"api_key"`
}

// LoadConfig loads configuration from a JSON file over the defaults and
// applies WEB_* environment overrides. An empty filename skips the file.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read web config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode web config: %w", err)
		}
	}

	cfg.Server.Host = config.GetEnv("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = config.GetEnvInt("WEB_PORT", cfg.Server.Port)
	cfg.Auth.APIKey = config.GetEnv("WEB_API_KEY", cfg.Auth.APIKey)
	cfg.Database.Enabled = config.GetEnvBool("WEB_DATABASE_ENABLED", cfg.Database.Enabled)

	return cfg, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			AllowOrigin: "*",
		},
		Data: DataConfig{Dir: "data"},
	}
}
