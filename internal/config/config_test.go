package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/logging"
)

// validConfig returns a default config completed with the required
// credentials so Validate passes.
func validConfig() *Config {
	cfg := Default()
	cfg.Database.Database = "scandash"
	cfg.Database.Username = "scandash"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.API.ListenAddr)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, logging.LevelInfo, cfg.Logging.Level)
	assert.Positive(t, cfg.Reconcile.Interval)
	assert.Positive(t, cfg.Reconcile.PollTimeout)
	assert.Less(t, cfg.Reconcile.PollTimeout, cfg.Reconcile.Interval)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.Port, cfg.API.Port)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  listen_addr: 0.0.0.0
  port: 9090
database:
  host: db.internal
  database: scans
  username: svc
engine:
  base_url: http://zap:8090
  api_key: secret
reconcile:
  interval: 1m
  poll_timeout: 15s
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.GetAPIAddress())
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "http://zap:8090", cfg.Engine.BaseURL)
	assert.Equal(t, "secret", cfg.Engine.APIKey)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 15*time.Second, cfg.Reconcile.PollTimeout)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.Equal(t, logging.FormatJSON, cfg.Logging.Format)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "port",
		},
		{
			name:    "missing listen addr",
			mutate:  func(c *Config) { c.API.ListenAddr = "" },
			wantErr: "listen address",
		},
		{
			name:    "missing database name",
			mutate:  func(c *Config) { c.Database.Database = "" },
			wantErr: "database name",
		},
		{
			name:    "missing engine url",
			mutate:  func(c *Config) { c.Engine.BaseURL = "" },
			wantErr: "engine base URL",
		},
		{
			name:    "poll timeout not shorter than interval",
			mutate:  func(c *Config) { c.Reconcile.PollTimeout = c.Reconcile.Interval },
			wantErr: "poll timeout",
		},
		{
			name: "token entry missing hash",
			mutate: func(c *Config) {
				c.Auth.Tokens = []auth.TokenEntry{{SubjectID: "alice", Lookup: "abc"}}
			},
			wantErr: "lookup and hash",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := validConfig()
	cfg.API.Port = 9191
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, loaded.API.Port)
	assert.Equal(t, cfg.Database.Host, loaded.Database.Host)
}
