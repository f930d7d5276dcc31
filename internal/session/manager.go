// Package session owns the authenticated identity persisted on the device:
// writing it at login, validating it at app start and clearing it on expiry
// or logout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"kidchat/internal/client"
	"kidchat/internal/core"
	"kidchat/internal/storage"
)

// DefaultStartupDelay is waited before the first session read so a login
// write issued just before navigation has landed
const DefaultStartupDelay = 150 * time.Millisecond

var (
	ErrMissingToken    = errors.New("login response has no access token")
	ErrMissingIdentity = errors.New("login response has no account id")
	ErrNotParent       = errors.New("operation requires a parent session")
	ErrUnknownChild    = errors.New("child does not belong to this parent")
)

// Authenticator is the subset of the backend API used for accounts
type Authenticator interface {
	ChildLogin(ctx context.Context, username, password string) (*client.LoginResponse, error)
	ParentLogin(ctx context.Context, email, password string) (*client.LoginResponse, error)
	ForgotPasswordChild(ctx context.Context, username string) (*client.MessageResponse, error)
	ForgotPasswordParent(ctx context.Context, email string) (*client.MessageResponse, error)
	VerifyForgotPassword(ctx context.Context, req client.VerifyForgotPasswordRequest) (*client.MessageResponse, error)
	ChangeParentPassword(ctx context.Context, req client.ChangeParentPasswordRequest) (*client.MessageResponse, error)
}

// Options tunes session validation
type Options struct {
	TTL          time.Duration
	StartupDelay time.Duration
	// StrictToken rejects logins without an access token instead of
	// synthesizing token_<ms>
	StrictToken bool
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		TTL:          core.SessionTTL,
		StartupDelay: DefaultStartupDelay,
	}
}

// Manager manages the persisted authentication session
type Manager struct {
	store  storage.Store
	auth   Authenticator
	clock  core.Clock
	opts   Options
	logger *slog.Logger
}

// NewManager creates a new session manager. auth may be nil when only the
// storage-side operations are used.
func NewManager(store storage.Store, auth Authenticator, clock core.Clock, opts Options, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = core.RealClock{}
	}
	if opts.TTL <= 0 {
		opts.TTL = core.SessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		auth:   auth,
		clock:  clock,
		opts:   opts,
		logger: logger.With("component", "session-manager"),
	}
}

// childProfile is the userData JSON written for child logins
type childProfile struct {
	ChildID  int64  `json:"child_id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// parentProfile is the parentData JSON written for parent logins
type parentProfile struct {
	ParentID int64                 `json:"parent_id"`
	Username string                `json:"username"`
	Fullname string                `json:"fullname"`
	Children []client.ChildSummary `json:"children"`
}

// CheckAuthStatus decides the landing screen at app start. Any invalid,
// expired or unreadable session is cleared and routes to login.
func (m *Manager) CheckAuthStatus(ctx context.Context) core.Route {
	if m.opts.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			m.logger.Warn("auth check cancelled during startup delay", "error", ctx.Err())
			return core.RouteLogin
		case <-time.After(m.opts.StartupDelay):
		}
	}

	session, err := m.readSession(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrNoSession) {
			m.logger.Error("failed to read session, treating as logged out", "error", err)
		} else {
			m.logger.Debug("no valid session", "reason", err)
		}
		m.ClearSession(ctx)
		return core.RouteLogin
	}

	m.logger.Info("valid session found",
		"role", session.Role,
		"age", m.clock.Now().Sub(session.LoginTime).Round(time.Second),
	)
	return session.Role.Route()
}

// Login persists a successful login response as the current session,
// replacing any previous one in full.
func (m *Manager) Login(ctx context.Context, role core.Role, resp *client.LoginResponse) error {
	if _, err := core.ParseRole(string(role)); err != nil {
		return err
	}
	if resp == nil {
		return ErrMissingIdentity
	}

	now := m.clock.Now()
	token := resp.AccessToken
	if token == "" {
		if m.opts.StrictToken {
			return ErrMissingToken
		}
		token = "token_" + strconv.FormatInt(now.UnixMilli(), 10)
		m.logger.Warn("login response had no access token, using synthesized token")
	}

	pairs := storage.Pairs(
		storage.KeyAccessToken, token,
		storage.KeyLoginTime, strconv.FormatInt(now.UnixMilli(), 10),
		storage.KeyUserType, string(role),
	)

	switch role {
	case core.RoleChild:
		if resp.ChildID == nil {
			return fmt.Errorf("%w: child_id", ErrMissingIdentity)
		}
		profile, err := json.Marshal(childProfile{
			ChildID:  *resp.ChildID,
			Username: resp.Username,
			Fullname: resp.Fullname,
			ParentID: resp.ParentID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal child profile: %w", err)
		}
		pairs = append(pairs,
			storage.KV{Key: storage.KeyChildID, Value: formatID(*resp.ChildID)},
			storage.KV{Key: storage.KeyUserData, Value: string(profile)},
		)
		if resp.ParentID != nil {
			pairs = append(pairs, storage.KV{Key: storage.KeyParentID, Value: formatID(*resp.ParentID)})
		}

	case core.RoleParent:
		if resp.ParentID == nil {
			return fmt.Errorf("%w: parent_id", ErrMissingIdentity)
		}
		children := resp.Children
		if children == nil {
			children = []client.ChildSummary{}
		}
		profile, err := json.Marshal(parentProfile{
			ParentID: *resp.ParentID,
			Username: resp.Username,
			Fullname: resp.Fullname,
			Children: children,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal parent profile: %w", err)
		}
		pairs = append(pairs,
			storage.KV{Key: storage.KeyParentID, Value: formatID(*resp.ParentID)},
			storage.KV{Key: storage.KeyParentData, Value: string(profile)},
		)
		if len(children) > 0 {
			pairs = append(pairs, storage.KV{Key: storage.KeyChildID, Value: formatID(children[0].ChildID)})
		}
	}

	if err := m.store.MultiSet(ctx, pairs); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	// Keys of the previous session not rewritten above. Validity only
	// depends on token, time and role, which the MultiSet replaced together.
	if stale := staleKeys(pairs); len(stale) > 0 {
		if err := m.store.MultiRemove(ctx, stale); err != nil {
			return fmt.Errorf("failed to remove previous session keys: %w", err)
		}
	}

	m.logger.Info("session stored", "role", role)
	return nil
}

// LoginWithCredentials authenticates against the backend and stores the
// session. A blocked account yields an error matching client.ErrAccountBlocked.
func (m *Manager) LoginWithCredentials(ctx context.Context, role core.Role, identifier, password string) (core.Route, error) {
	var (
		resp *client.LoginResponse
		err  error
	)
	switch role {
	case core.RoleChild:
		resp, err = m.requireAuth().ChildLogin(ctx, identifier, password)
	case core.RoleParent:
		resp, err = m.requireAuth().ParentLogin(ctx, identifier, password)
	default:
		return core.RouteLogin, fmt.Errorf("%w: %q", core.ErrInvalidRole, role)
	}
	if err != nil {
		if errors.Is(err, client.ErrAccountBlocked) {
			m.logger.Warn("login rejected: account blocked", "role", role)
		}
		return core.RouteLogin, err
	}

	if err := m.Login(ctx, role, resp); err != nil {
		return core.RouteLogin, err
	}
	return role.Route(), nil
}

// ClearSession removes every session-scoped key and the game session that
// belonged to it. It is idempotent and never fails; errors are logged.
func (m *Manager) ClearSession(ctx context.Context) {
	keys := make([]string, 0, len(storage.SessionKeys)+len(storage.GameSessionKeys))
	keys = append(keys, storage.SessionKeys...)
	keys = append(keys, storage.GameSessionKeys...)

	if err := m.store.MultiRemove(ctx, keys); err != nil {
		m.logger.Error("failed to clear session", "error", err)
	}
}

// Logout ends the current session
func (m *Manager) Logout(ctx context.Context) {
	m.ClearSession(ctx)
	m.logger.Info("logged out")
}

// Current returns the stored session if it is valid
func (m *Manager) Current(ctx context.Context) (*core.Session, error) {
	return m.readSession(ctx)
}

// AccessToken returns the token of a valid session, or ""
func (m *Manager) AccessToken(ctx context.Context) string {
	session, err := m.readSession(ctx)
	if err != nil {
		return ""
	}
	return session.AccessToken
}

// SetActiveChild switches which of a parent's children the app acts for
func (m *Manager) SetActiveChild(ctx context.Context, childID int64) error {
	session, err := m.readSession(ctx)
	if err != nil {
		return err
	}
	if session.Role != core.RoleParent {
		return ErrNotParent
	}

	var profile parentProfile
	if err := json.Unmarshal(session.Profile, &profile); err != nil {
		return fmt.Errorf("failed to parse parent profile: %w", err)
	}
	for _, c := range profile.Children {
		if c.ChildID == childID {
			return m.store.Set(ctx, storage.KeyChildID, formatID(childID))
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownChild, childID)
}

// readSession loads and validates the stored session. It returns
// core.ErrNoSession (possibly wrapped) when the session is absent or invalid.
func (m *Manager) readSession(ctx context.Context) (*core.Session, error) {
	token, _, err := m.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return nil, err
	}
	loginTime, _, err := m.store.Get(ctx, storage.KeyLoginTime)
	if err != nil {
		return nil, err
	}
	userType, _, err := m.store.Get(ctx, storage.KeyUserType)
	if err != nil {
		return nil, err
	}

	if token == "" || userType == "" {
		return nil, fmt.Errorf("%w: token or role missing", core.ErrNoSession)
	}
	role, err := core.ParseRole(userType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNoSession, err)
	}
	loginMillis, err := strconv.ParseInt(loginTime, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparsable login time %q", core.ErrNoSession, loginTime)
	}

	session := &core.Session{
		AccessToken: token,
		LoginTime:   time.UnixMilli(loginMillis),
		Role:        role,
	}
	if !session.IsValid(m.clock.Now(), m.opts.TTL) {
		return nil, fmt.Errorf("%w: expired", core.ErrNoSession)
	}

	session.ChildID, err = m.readID(ctx, storage.KeyChildID)
	if err != nil {
		return nil, err
	}
	session.ParentID, err = m.readID(ctx, storage.KeyParentID)
	if err != nil {
		return nil, err
	}

	profileKey := storage.KeyUserData
	if role == core.RoleParent {
		profileKey = storage.KeyParentData
	}
	profile, ok, err := m.store.Get(ctx, profileKey)
	if err != nil {
		return nil, err
	}
	if ok {
		session.Profile = json.RawMessage(profile)
	}

	return session, nil
}

// readID reads an optional integer id key; absent means zero
func (m *Manager) readID(ctx context.Context, key string) (int64, error) {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok || v == "" {
		return 0, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparsable %s %q", core.ErrNoSession, key, v)
	}
	return id, nil
}

// staleKeys returns the session keys not present in pairs
func staleKeys(pairs []storage.KV) []string {
	written := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		written[p.Key] = true
	}
	var stale []string
	for _, k := range storage.SessionKeys {
		if !written[k] {
			stale = append(stale, k)
		}
	}
	return stale
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
