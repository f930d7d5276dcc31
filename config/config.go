package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config represents the application configuration
type Config struct {
	API     APIConfig     `json:"api"`
	Storage StorageConfig `json:"storage"`
	Session SessionConfig `json:"session"`
	Audio   AudioConfig   `json:"audio"`
	Logging LoggingConfig `json:"logging"`
}

// APIConfig contains backend connection settings
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig selects and configures the device key-value store
type StorageConfig struct {
	Driver        string `json:"driver"` // "sqlite", "redis" or "memory"
	Path          string `json:"path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RedisPrefix   string `json:"redis_prefix"`
}

// SessionConfig contains login session settings
type SessionConfig struct {
	TTLHours       int  `json:"ttl_hours"`
	StartupDelayMs int  `json:"startup_delay_ms"`
	StrictToken    bool `json:"strict_token"`
}

// AudioConfig contains background music settings
type AudioConfig struct {
	Track string `json:"track"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// Timeout returns the API timeout as a duration
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TTL returns the session lifetime as a duration
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// StartupDelay returns the pre-read delay as a duration
func (c SessionConfig) StartupDelay() time.Duration {
	return time.Duration(c.StartupDelayMs) * time.Millisecond
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: API base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: API base URL must be an http(s) URL", ErrInvalidConfig)
	}
	if c.API.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: API timeout cannot be negative", ErrInvalidConfig)
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 30 // default
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite // default
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage path is required for sqlite", ErrInvalidConfig)
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: redis address is required for redis storage", ErrInvalidConfig)
		}
		if c.Storage.RedisDB < 0 {
			return fmt.Errorf("%w: redis db cannot be negative", ErrInvalidConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Session.TTLHours < 0 || c.Session.StartupDelayMs < 0 {
		return fmt.Errorf("%w: session durations cannot be negative", ErrInvalidConfig)
	}
	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = 15 * 24 // default
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = "json"
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format must be json or text", ErrInvalidConfig)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Startup delay defaults on only when the key is absent
	config := Config{Session: SessionConfig{StartupDelayMs: 150}}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		API: APIConfig{
			BaseURL:        getEnv("KIDCHAT_API_URL", ""),
			TimeoutSeconds: getEnvInt("KIDCHAT_API_TIMEOUT", 30),
		},
		Storage: StorageConfig{
			Driver:        getEnv("KIDCHAT_STORAGE_DRIVER", DriverSQLite),
			Path:          getEnv("KIDCHAT_STORAGE_PATH", "./kidchat.db"),
			RedisAddr:     getEnv("KIDCHAT_REDIS_ADDR", ""),
			RedisPassword: getEnv("KIDCHAT_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("KIDCHAT_REDIS_DB", 0),
			RedisPrefix:   getEnv("KIDCHAT_REDIS_PREFIX", ""),
		},
		Session: SessionConfig{
			TTLHours:       getEnvInt("KIDCHAT_SESSION_TTL_HOURS", 15*24),
			StartupDelayMs: getEnvInt("KIDCHAT_STARTUP_DELAY_MS", 150),
			StrictToken:    getEnvBool("KIDCHAT_STRICT_TOKEN", false),
		},
		Audio: AudioConfig{
			Track: getEnv("KIDCHAT_AUDIO_TRACK", ""),
		},
		Logging: LoggingConfig{
			Format: getEnv("KIDCHAT_LOG_FORMAT", "json"),
			Level:  getEnv("KIDCHAT_LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
