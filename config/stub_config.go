package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StubConfig configures the development backend used for demos and
// integration tests
type StubConfig struct {
	Server   StubServerConfig `json:"server"`
	Game     StubGameConfig   `json:"game"`
	Parents  []StubParent     `json:"parents"`
	Children []StubChild      `json:"children"`
}

// StubServerConfig contains HTTP server settings for the stub backend
type StubServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StubGameConfig contains level rules shared by every game
type StubGameConfig struct {
	TotalLevels int `json:"total_levels"`
	// OTP is the fixed recovery code accepted by /verify-forgot-password
	OTP string `json:"otp"`
}

// StubParent is a seeded parent account
type StubParent struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Password string `json:"password"`
}

// StubChild is a seeded child account
type StubChild struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	Password string `json:"password"`
	Blocked  bool   `json:"blocked"`
}

// DefaultStubConfig returns a small seeded family
func DefaultStubConfig() *StubConfig {
	return &StubConfig{
		Server: StubServerConfig{Host: "127.0.0.1", Port: 8000},
		Game:   StubGameConfig{TotalLevels: 10, OTP: "123456"},
		Parents: []StubParent{
			{ID: 9, Email: "parent@example.com", Username: "parent", Fullname: "Parent", Password: "parent-pass"},
		},
		Children: []StubChild{
			{ID: 5, ParentID: 9, Username: "kim", Fullname: "Kim", Password: "kim-pass"},
			{ID: 6, ParentID: 9, Username: "lee", Fullname: "Lee", Password: "lee-pass", Blocked: true},
		},
	}
}

// LoadStubConfig loads stub backend configuration from a file
func LoadStubConfig(path string) (*StubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg StubConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *StubConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Game.TotalLevels <= 0 {
		return fmt.Errorf("%w: game.total_levels must be positive", ErrInvalidConfig)
	}

	if c.Game.OTP == "" {
		return fmt.Errorf("%w: game.otp is required", ErrInvalidConfig)
	}

	parents := make(map[int64]bool, len(c.Parents))
	for _, p := range c.Parents {
		if p.ID <= 0 || p.Email == "" || p.Password == "" {
			return fmt.Errorf("%w: parent needs id, email and password", ErrInvalidConfig)
		}
		if parents[p.ID] {
			return fmt.Errorf("%w: duplicate parent id %d", ErrInvalidConfig, p.ID)
		}
		parents[p.ID] = true
	}

	children := make(map[int64]bool, len(c.Children))
	usernames := make(map[string]bool, len(c.Children))
	for _, ch := range c.Children {
		if ch.ID <= 0 || ch.Username == "" || ch.Password == "" {
			return fmt.Errorf("%w: child needs id, username and password", ErrInvalidConfig)
		}
		if children[ch.ID] {
			return fmt.Errorf("%w: duplicate child id %d", ErrInvalidConfig, ch.ID)
		}
		name := strings.ToLower(ch.Username)
		if usernames[name] {
			return fmt.Errorf("%w: duplicate child username %q", ErrInvalidConfig, ch.Username)
		}
		if ch.ParentID != 0 && !parents[ch.ParentID] {
			return fmt.Errorf("%w: child %d references unknown parent %d", ErrInvalidConfig, ch.ID, ch.ParentID)
		}
		children[ch.ID] = true
		usernames[name] = true
	}

	// Set default host if not specified
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	return nil
}
