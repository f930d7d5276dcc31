// Package state holds the accounts and level progress of the development
// backend.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"kidchat/config"
	"kidchat/internal/core"
	"kidchat/internal/idgen"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrUserNotFound       = errors.New("user not found")
	ErrChildNotFound      = errors.New("child not found")
	ErrLevelNotFound      = errors.New("level not found")
	ErrInvalidOTP         = errors.New("invalid or expired otp")
	ErrWrongPassword      = errors.New("old password is incorrect")
)

// LevelLockedError is returned for a level above the highest unlocked one
type LevelLockedError struct {
	Level int
}

func (e *LevelLockedError) Error() string {
	return fmt.Sprintf("level %d locked", e.Level)
}

type parent struct {
	id       int64
	email    string
	username string
	fullname string
	hash     []byte
}

type child struct {
	id       int64
	parentID int64
	username string
	fullname string
	hash     []byte
	blocked  bool
}

type progressKey struct {
	childID int64
	variant core.GameVariant
}

type progress struct {
	current  int
	unlocked int
	points   map[int]int
}

// Account is the identity behind an issued token
type Account struct {
	Role core.Role
	ID   int64
}

// ChildInfo is the public part of a child account
type ChildInfo struct {
	ID       int64
	ParentID int64
	Username string
	Fullname string
}

// ParentInfo is the public part of a parent account
type ParentInfo struct {
	ID       int64
	Email    string
	Username string
	Fullname string
	Children []ChildInfo
}

// GameStart describes an accepted level selection
type GameStart struct {
	SessionID   string
	ChildID     int64
	Variant     core.GameVariant
	Level       int
	TotalLevels int
}

// Backend is an in-memory learning backend. Passwords are kept as bcrypt
// hashes; plain passwords from the config are hashed at construction.
type Backend struct {
	totalLevels int
	otp         string
	cost        int

	mu       sync.Mutex
	parents  map[int64]*parent
	children map[int64]*child
	tokens   map[string]Account
	progress map[progressKey]*progress
	// pending password resets by lowercased username or email
	resets map[string]bool
}

// NewBackend seeds a backend from cfg. cost is the bcrypt cost; zero means
// bcrypt.DefaultCost.
func NewBackend(cfg *config.StubConfig, cost int) (*Backend, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b := &Backend{
		totalLevels: cfg.Game.TotalLevels,
		otp:         cfg.Game.OTP,
		cost:        cost,
		parents:     make(map[int64]*parent),
		children:    make(map[int64]*child),
		tokens:      make(map[string]Account),
		progress:    make(map[progressKey]*progress),
		resets:      make(map[string]bool),
	}

	for _, p := range cfg.Parents {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for parent %d: %w", p.ID, err)
		}
		b.parents[p.ID] = &parent{
			id:       p.ID,
			email:    p.Email,
			username: p.Username,
			fullname: p.Fullname,
			hash:     hash,
		}
	}
	for _, c := range cfg.Children {
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for child %d: %w", c.ID, err)
		}
		b.children[c.ID] = &child{
			id:       c.ID,
			parentID: c.ParentID,
			username: c.Username,
			fullname: c.Fullname,
			hash:     hash,
			blocked:  c.Blocked,
		}
	}

	return b, nil
}

// ChildLogin verifies a child's password and issues a token
func (b *Backend) ChildLogin(username, password string) (string, ChildInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.childByUsername(username)
	if c == nil || bcrypt.CompareHashAndPassword(c.hash, []byte(password)) != nil {
		return "", ChildInfo{}, ErrInvalidCredentials
	}
	if c.blocked {
		return "", ChildInfo{}, ErrAccountBlocked
	}

	token := idgen.New()
	b.tokens[token] = Account{Role: core.RoleChild, ID: c.id}
	return token, c.info(), nil
}

// ParentLogin verifies a parent's password and issues a token
func (b *Backend) ParentLogin(email, password string) (string, ParentInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.parentByEmail(email)
	if p == nil || bcrypt.CompareHashAndPassword(p.hash, []byte(password)) != nil {
		return "", ParentInfo{}, ErrInvalidCredentials
	}

	token := idgen.New()
	b.tokens[token] = Account{Role: core.RoleParent, ID: p.id}
	return token, b.parentInfo(p), nil
}

// Authenticate resolves a bearer token
func (b *Backend) Authenticate(token string) (Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.tokens[token]
	return acc, ok
}

// CanAccessChild reports whether acc may act for childID
func (b *Backend) CanAccessChild(acc Account, childID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.children[childID]
	if !ok {
		return false
	}
	switch acc.Role {
	case core.RoleChild:
		return acc.ID == childID
	case core.RoleParent:
		return c.parentID == acc.ID
	}
	return false
}

// SetBlocked blocks or unblocks a child account
func (b *Backend) SetBlocked(childID int64, blocked bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.children[childID]
	if !ok {
		return ErrChildNotFound
	}
	c.blocked = blocked
	return nil
}

// SelectLevel starts level if the child has unlocked it
func (b *Backend) SelectLevel(childID int64, variant core.GameVariant, level int) (*GameStart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.children[childID]; !ok {
		return nil, ErrChildNotFound
	}
	if level < 1 || level > b.totalLevels {
		return nil, ErrLevelNotFound
	}
	p := b.progressFor(childID, variant)
	if level > p.unlocked {
		return nil, &LevelLockedError{Level: level}
	}
	p.current = level
	return b.start(childID, variant, level), nil
}

// StartDefault starts the level the child last played
func (b *Backend) StartDefault(childID int64, variant core.GameVariant) (*GameStart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.children[childID]; !ok {
		return nil, ErrChildNotFound
	}
	p := b.progressFor(childID, variant)
	return b.start(childID, variant, p.current), nil
}

// CompleteLevel records points for level and unlocks the next one
func (b *Backend) CompleteLevel(childID int64, variant core.GameVariant, level, points int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.children[childID]; !ok {
		return ErrChildNotFound
	}
	if level < 1 || level > b.totalLevels {
		return ErrLevelNotFound
	}
	p := b.progressFor(childID, variant)
	if level > p.unlocked {
		return &LevelLockedError{Level: level}
	}
	if points > p.points[level] {
		p.points[level] = points
	}
	if level == p.unlocked && p.unlocked < b.totalLevels {
		p.unlocked++
	}
	return nil
}

// Progress returns the child's progress in variant
func (b *Backend) Progress(childID int64, variant core.GameVariant) (*core.ProgressSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.children[childID]
	if !ok {
		return nil, ErrChildNotFound
	}
	p := b.progressFor(childID, variant)
	points := make(map[int]int, len(p.points))
	for lvl, pts := range p.points {
		points[lvl] = pts
	}
	return &core.ProgressSnapshot{
		Username:        c.username,
		CurrentLevel:    p.current,
		NextUnlockLevel: p.unlocked,
		TotalLevels:     b.totalLevels,
		PointsPerLevel:  points,
	}, nil
}

// RequestChildReset starts password recovery for a child username
func (b *Backend) RequestChildReset(username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.childByUsername(username) == nil {
		return ErrUserNotFound
	}
	b.resets[resetKey(username)] = true
	return nil
}

// RequestParentReset starts password recovery for a parent email
func (b *Backend) RequestParentReset(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.parentByEmail(email) == nil {
		return ErrUserNotFound
	}
	b.resets[resetKey(email)] = true
	return nil
}

// VerifyReset sets a new password when otp matches a pending reset.
// Exactly one of username and email is expected.
func (b *Backend) VerifyReset(username, email, otp, newPassword string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	identifier := username
	if identifier == "" {
		identifier = email
	}
	if !b.resets[resetKey(identifier)] || otp != b.otp {
		return ErrInvalidOTP
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), b.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if username != "" {
		c := b.childByUsername(username)
		if c == nil {
			return ErrUserNotFound
		}
		c.hash = hash
	} else {
		p := b.parentByEmail(email)
		if p == nil {
			return ErrUserNotFound
		}
		p.hash = hash
	}
	delete(b.resets, resetKey(identifier))
	return nil
}

// ChangeParentPassword replaces a parent's password after checking the old one
func (b *Backend) ChangeParentPassword(parentID int64, oldPassword, newPassword string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.parents[parentID]
	if !ok {
		return ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword(p.hash, []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), b.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	p.hash = hash
	return nil
}

// Stats counts the backend's records
type Stats struct {
	Parents     int
	Children    int
	Tokens      int
	TotalLevels int
}

// Stats returns current record counts
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Parents:     len(b.parents),
		Children:    len(b.children),
		Tokens:      len(b.tokens),
		TotalLevels: b.totalLevels,
	}
}

// start issues a game session; callers hold mu
func (b *Backend) start(childID int64, variant core.GameVariant, level int) *GameStart {
	return &GameStart{
		SessionID:   idgen.NewGameSession(),
		ChildID:     childID,
		Variant:     variant,
		Level:       level,
		TotalLevels: b.totalLevels,
	}
}

// progressFor returns the progress record, creating it at level 1; callers
// hold mu
func (b *Backend) progressFor(childID int64, variant core.GameVariant) *progress {
	key := progressKey{childID: childID, variant: variant}
	p, ok := b.progress[key]
	if !ok {
		p = &progress{current: 1, unlocked: 1, points: make(map[int]int)}
		b.progress[key] = p
	}
	return p
}

func (b *Backend) childByUsername(username string) *child {
	for _, c := range b.children {
		if strings.EqualFold(c.username, username) {
			return c
		}
	}
	return nil
}

func (b *Backend) parentByEmail(email string) *parent {
	for _, p := range b.parents {
		if strings.EqualFold(p.email, email) {
			return p
		}
	}
	return nil
}

// parentInfo lists the parent's children ordered by id; callers hold mu
func (b *Backend) parentInfo(p *parent) ParentInfo {
	info := ParentInfo{
		ID:       p.id,
		Email:    p.email,
		Username: p.username,
		Fullname: p.fullname,
	}
	for _, c := range b.children {
		if c.parentID == p.id {
			info.Children = append(info.Children, c.info())
		}
	}
	sort.Slice(info.Children, func(i, j int) bool {
		return info.Children[i].ID < info.Children[j].ID
	})
	return info
}

func (c *child) info() ChildInfo {
	return ChildInfo{
		ID:       c.id,
		ParentID: c.parentID,
		Username: c.username,
		Fullname: c.fullname,
	}
}

func resetKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
