package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SessionTTL is how long a login stays valid on the device
const SessionTTL = 15 * 24 * time.Hour

// Role identifies which kind of account owns the session
type Role string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
)

// GameVariant identifies one of the mini-games
type GameVariant string

const (
	VariantFruits   GameVariant = "fruits"
	VariantMystery  GameVariant = "mystery"
	VariantSpelling GameVariant = "spelling"
)

// Route is the landing screen chosen at app start
type Route string

const (
	RouteLogin           Route = "login"
	RouteChildHome       Route = "child_home"
	RouteParentDashboard Route = "parent_dashboard"
)

// Session represents the persisted authenticated identity on the device
type Session struct {
	AccessToken string
	LoginTime   time.Time
	Role        Role
	ChildID     int64 // zero when the parent has no children
	ParentID    int64
	Profile     json.RawMessage // child profile or parent profile with children
}

// GameSession is the server-issued handle for one play attempt
type GameSession struct {
	SessionID string
	ChildID   int64
	Variant   GameVariant
	Snapshot  json.RawMessage // full body returned at selection time
}

// ProgressSnapshot is the server's view of a child's progress in one game.
// It is fetched per request and never stored.
type ProgressSnapshot struct {
	Username        string      `json:"username"`
	CurrentLevel    int         `json:"current_level"`
	NextUnlockLevel int         `json:"next_level"`
	TotalLevels     int         `json:"total_levels"`
	PointsPerLevel  map[int]int `json:"points_per_level"`
}

// Validation errors
var (
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidVariant = errors.New("invalid game variant")
	ErrInvalidChildID = errors.New("invalid child ID")
	ErrInvalidLevel   = errors.New("level must be positive")
	ErrNoSession      = errors.New("no valid session")
	ErrNoGameSession  = errors.New("no game session")
)

// ParseRole converts a stored or user-supplied string to a Role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleChild, RoleParent:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Route returns the landing screen for the role
func (r Role) Route() Route {
	switch r {
	case RoleChild:
		return RouteChildHome
	case RoleParent:
		return RouteParentDashboard
	default:
		return RouteLogin
	}
}

// ParseGameVariant converts a string to a GameVariant
func ParseGameVariant(s string) (GameVariant, error) {
	switch GameVariant(s) {
	case VariantFruits, VariantMystery, VariantSpelling:
		return GameVariant(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVariant, s)
	}
}

// Validate validates a GameVariant
func (v GameVariant) Validate() error {
	_, err := ParseGameVariant(string(v))
	return err
}

// IsValid reports whether the session may be used at now.
// The TTL bound is strict: a session exactly ttl old is expired.
func (s *Session) IsValid(now time.Time, ttl time.Duration) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	if s.Role != RoleChild && s.Role != RoleParent {
		return false
	}
	return IsWithinTTL(s.LoginTime.UnixMilli(), now, ttl)
}

// IsWithinTTL reports whether a login at loginMillis (ms epoch) is still inside ttl at now
func IsWithinTTL(loginMillis int64, now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-loginMillis < ttl.Milliseconds()
}

// OwnedBy reports whether the game session belongs to childID
func (g *GameSession) OwnedBy(childID int64) bool {
	return g != nil && g.ChildID == childID
}
