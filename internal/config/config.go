package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/logging"
	"github.com/scandash/scandash/internal/orchestrator"
)

// Config represents the complete service configuration
type Config struct {
	// API server configuration
	API APIConfig `yaml:"api" json:"api"`

	// Database configuration
	Database db.Config `yaml:"database" json:"database"`

	// Scan engine configuration
	Engine engine.Config `yaml:"engine" json:"engine"`

	// Reconciliation loop configuration
	Reconcile orchestrator.ReconcileConfig `yaml:"reconcile" json:"reconcile"`

	// Auth token entries
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Read/write timeouts for the HTTP server
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Maximum request body size in bytes
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`

	// Rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Enable rate limiting
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Requests per second per client
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`

	// Burst size
	BurstSize int `yaml:"burst_size" json:"burst_size"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	// Require a bearer token on mutating endpoints
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Static token entries; tokens are stored as bcrypt hashes
	Tokens []auth.TokenEntry `yaml:"tokens" json:"tokens"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		API: APIConfig{
			ListenAddr:      "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestSize:  1024 * 1024, // 1MB
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Database:  db.DefaultConfig(),
		Engine:    engine.DefaultConfig(),
		Reconcile: orchestrator.DefaultReconcileConfig(),
		Auth: AuthConfig{
			Enabled: true,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file, starting from defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("API listen address is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine base URL is required")
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine request timeout must be positive")
	}

	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if c.Reconcile.PollTimeout <= 0 {
		return fmt.Errorf("reconcile poll timeout must be positive")
	}
	if c.Reconcile.PollTimeout >= c.Reconcile.Interval {
		return fmt.Errorf("reconcile poll timeout must be shorter than the interval")
	}

	if c.Auth.Enabled {
		for i := range c.Auth.Tokens {
			t := &c.Auth.Tokens[i]
			if t.SubjectID == "" {
				return fmt.Errorf("auth token %d: subject_id is required", i)
			}
			if t.Lookup == "" || t.Hash == "" {
				return fmt.Errorf("auth token %d: lookup and hash are required", i)
			}
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetAPIAddress returns the full API listen address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// IsAuthEnabled returns true if bearer authentication is required
func (c *Config) IsAuthEnabled() bool {
	return c.Auth.Enabled
}
