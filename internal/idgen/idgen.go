package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixRequest     = "req_"
	PrefixGameSession = "game_"
)

// NewRequest generates a request correlation ID with req_ prefix
func NewRequest() string {
	return PrefixRequest + uuid.New().String()
}

// NewGameSession generates a game session ID with game_ prefix.
// Only the development backend issues these; the device never invents one.
func NewGameSession() string {
	return PrefixGameSession + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
