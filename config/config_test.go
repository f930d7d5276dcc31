package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		API:     APIConfig{BaseURL: "https://api.example.com"},
		Storage: StorageConfig{Driver: DriverSQLite, Path: "/path/to/kidchat.db"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing base URL",
			modify:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "base URL without scheme",
			modify:  func(c *Config) { c.API.BaseURL = "api.example.com" },
			wantErr: true,
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.API.TimeoutSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "sqlite without path",
			modify:  func(c *Config) { c.Storage.Path = "" },
			wantErr: true,
		},
		{
			name:    "redis without address",
			modify:  func(c *Config) { c.Storage = StorageConfig{Driver: DriverRedis} },
			wantErr: true,
		},
		{
			name:    "redis with address",
			modify:  func(c *Config) { c.Storage = StorageConfig{Driver: DriverRedis, RedisAddr: "localhost:6379"} },
			wantErr: false,
		},
		{
			name:    "memory needs nothing",
			modify:  func(c *Config) { c.Storage = StorageConfig{Driver: DriverMemory} },
			wantErr: false,
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Storage.Driver = "leveldb" },
			wantErr: true,
		},
		{
			name:    "negative ttl",
			modify:  func(c *Config) { c.Session.TTLHours = -5 },
			wantErr: true,
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	c := Config{
		API:     APIConfig{BaseURL: "http://localhost:8000"},
		Storage: StorageConfig{Path: "./kidchat.db"},
	}
	require.NoError(t, c.Validate())

	assert.Equal(t, DriverSQLite, c.Storage.Driver)
	assert.Equal(t, 30*time.Second, c.API.Timeout())
	assert.Equal(t, 15*24*time.Hour, c.Session.TTL())
	assert.Equal(t, "json", c.Logging.Format)
	assert.Equal(t, "info", c.Logging.Level)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	validJSON := `{
		"api": {
			"base_url": "https://api.example.com",
			"timeout_seconds": 10
		},
		"storage": {
			"driver": "redis",
			"redis_addr": "localhost:6379",
			"redis_db": 2,
			"redis_prefix": "tablet1:"
		},
		"session": {
			"ttl_hours": 48,
			"strict_token": true
		},
		"audio": {
			"track": "music/theme.mp3"
		},
		"logging": {
			"format": "text",
			"level": "debug"
		}
	}`

	err := os.WriteFile(configPath, []byte(validJSON), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", config.API.BaseURL)
	assert.Equal(t, 10*time.Second, config.API.Timeout())
	assert.Equal(t, DriverRedis, config.Storage.Driver)
	assert.Equal(t, 2, config.Storage.RedisDB)
	assert.Equal(t, "tablet1:", config.Storage.RedisPrefix)
	assert.Equal(t, 48*time.Hour, config.Session.TTL())
	assert.Equal(t, 150*time.Millisecond, config.Session.StartupDelay())
	assert.True(t, config.Session.StrictToken)
	assert.Equal(t, "music/theme.mp3", config.Audio.Track)
	assert.Equal(t, "text", config.Logging.Format)

	// Explicit zero delay is kept
	zeroPath := filepath.Join(tmpDir, "zero.json")
	err = os.WriteFile(zeroPath, []byte(`{"api":{"base_url":"http://x"},"storage":{"driver":"memory"},"session":{"startup_delay_ms":0}}`), 0644)
	require.NoError(t, err)
	config, err = Load(zeroPath)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), config.Session.StartupDelay())

	_, err = Load("/nonexistent/config.json")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	invalidPath := filepath.Join(tmpDir, "invalid.json")
	err = os.WriteFile(invalidPath, []byte("invalid json"), 0644)
	require.NoError(t, err)

	_, err = Load(invalidPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KIDCHAT_API_URL", "http://10.0.0.2:8000")
	t.Setenv("KIDCHAT_API_TIMEOUT", "5")
	t.Setenv("KIDCHAT_STORAGE_DRIVER", "memory")
	t.Setenv("KIDCHAT_STARTUP_DELAY_MS", "0")
	t.Setenv("KIDCHAT_STRICT_TOKEN", "true")
	t.Setenv("KIDCHAT_LOG_LEVEL", "debug")

	config, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:8000", config.API.BaseURL)
	assert.Equal(t, 5*time.Second, config.API.Timeout())
	assert.Equal(t, DriverMemory, config.Storage.Driver)
	assert.Equal(t, time.Duration(0), config.Session.StartupDelay())
	assert.True(t, config.Session.StrictToken)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 15*24*time.Hour, config.Session.TTL())
}

func TestLoadFromEnv_MissingURL(t *testing.T) {
	t.Setenv("KIDCHAT_API_URL", "")

	_, err := LoadFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStubConfig(t *testing.T) {
	def := DefaultStubConfig()
	require.NoError(t, def.Validate())
	assert.Len(t, def.Children, 2)

	tests := []struct {
		name   string
		modify func(c *StubConfig)
	}{
		{"bad port", func(c *StubConfig) { c.Server.Port = 0 }},
		{"no levels", func(c *StubConfig) { c.Game.TotalLevels = 0 }},
		{"no otp", func(c *StubConfig) { c.Game.OTP = "" }},
		{"duplicate child", func(c *StubConfig) { c.Children = append(c.Children, c.Children[0]) }},
		{"unknown parent", func(c *StubConfig) { c.Children[0].ParentID = 77 }},
		{"parent without email", func(c *StubConfig) { c.Parents[0].Email = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultStubConfig()
			tt.modify(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadStubConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stub.json")
	err := os.WriteFile(path, []byte(`{
		"server": {"port": 8001},
		"game": {"total_levels": 5, "otp": "000111"},
		"parents": [{"id": 1, "email": "p@example.com", "password": "pw"}],
		"children": [{"id": 2, "parent_id": 1, "username": "ana", "password": "pw"}]
	}`), 0644)
	require.NoError(t, err)

	cfg, err := LoadStubConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5, cfg.Game.TotalLevels)

	_, err = LoadStubConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}
