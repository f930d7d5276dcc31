// Package progression mediates level selection with the backend, which alone
// decides which levels are unlocked, and records the resulting game session.
package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"kidchat/internal/client"
	"kidchat/internal/core"
	"kidchat/internal/storage"
)

// API is the subset of the backend client used for games
type API interface {
	SelectLevel(ctx context.Context, variant core.GameVariant, childID int64, level int) (json.RawMessage, error)
	StartGame(ctx context.Context, variant core.GameVariant, childID int64) (json.RawMessage, error)
	Progress(ctx context.Context, variant core.GameVariant, childID int64) (*core.ProgressSnapshot, error)
}

// GateInterface defines the interface for level selection
type GateInterface interface {
	SelectLevel(ctx context.Context, childID int64, variant core.GameVariant, level int) (*core.GameSession, error)
	StartDefault(ctx context.Context, childID int64, variant core.GameVariant) (*core.GameSession, error)
	FetchProgress(ctx context.Context, childID int64, variant core.GameVariant) (*core.ProgressSnapshot, error)
	Current(ctx context.Context, childID int64) (*core.GameSession, error)
}

type pair struct {
	childID int64
	variant core.GameVariant
}

// Gate issues level selections and persists the accepted game session
type Gate struct {
	api    API
	store  storage.Store
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[pair]bool
	// generation numbers selections in issue order; persisted is the
	// generation of the stored game session. A result older than the stored
	// one is discarded, so a newer selection that fails supersedes nothing.
	generation uint64
	persisted  uint64
}

// NewGate creates a new progression gate
func NewGate(api API, store storage.Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		api:      api,
		store:    store,
		logger:   logger.With("component", "progression-gate"),
		inFlight: make(map[pair]bool),
	}
}

// SelectLevel asks the backend to start level. A locked level returns a
// *LevelLockedError and leaves the stored game session untouched.
// ErrSuperseded means the backend accepted the level but a selection issued
// later was stored first; the stored game session is the later one.
func (g *Gate) SelectLevel(ctx context.Context, childID int64, variant core.GameVariant, level int) (*core.GameSession, error) {
	if level < 1 {
		return nil, core.ErrInvalidLevel
	}
	return g.selectWith(ctx, childID, variant, func(ctx context.Context) (json.RawMessage, error) {
		return g.api.SelectLevel(ctx, variant, childID, level)
	})
}

// StartDefault continues at the level the backend picks for the child
func (g *Gate) StartDefault(ctx context.Context, childID int64, variant core.GameVariant) (*core.GameSession, error) {
	return g.selectWith(ctx, childID, variant, func(ctx context.Context) (json.RawMessage, error) {
		return g.api.StartGame(ctx, variant, childID)
	})
}

// FetchProgress returns the server's progress for the child. It never
// touches the stored game session.
func (g *Gate) FetchProgress(ctx context.Context, childID int64, variant core.GameVariant) (*core.ProgressSnapshot, error) {
	if err := validate(childID, variant); err != nil {
		return nil, err
	}
	snap, err := g.api.Progress(ctx, variant, childID)
	if err != nil {
		return nil, classify(err)
	}
	return snap, nil
}

// Current returns the stored game session if it belongs to childID
func (g *Gate) Current(ctx context.Context, childID int64) (*core.GameSession, error) {
	sessionID, ok, err := g.store.Get(ctx, storage.KeyGameSessionID)
	if err != nil {
		return nil, err
	}
	if !ok || sessionID == "" {
		return nil, core.ErrNoGameSession
	}
	data, _, err := g.store.Get(ctx, storage.KeyCurrentGameData)
	if err != nil {
		return nil, err
	}
	owner, _, err := g.store.Get(ctx, storage.KeyGameChildID)
	if err != nil {
		return nil, err
	}
	variant, _, err := g.store.Get(ctx, storage.KeyGameVariant)
	if err != nil {
		return nil, err
	}

	ownerID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		g.logger.Warn("stored game session has invalid child id", "value", owner)
		return nil, core.ErrNoGameSession
	}
	gs := &core.GameSession{
		SessionID: sessionID,
		ChildID:   ownerID,
		Variant:   core.GameVariant(variant),
	}
	if data != "" {
		gs.Snapshot = json.RawMessage(data)
	}
	if !gs.OwnedBy(childID) {
		return nil, core.ErrNoGameSession
	}
	return gs, nil
}

func (g *Gate) selectWith(ctx context.Context, childID int64, variant core.GameVariant, call func(context.Context) (json.RawMessage, error)) (*core.GameSession, error) {
	if err := validate(childID, variant); err != nil {
		return nil, err
	}

	key := pair{childID: childID, variant: variant}
	g.mu.Lock()
	if g.inFlight[key] {
		g.mu.Unlock()
		return nil, ErrSelectionInFlight
	}
	g.inFlight[key] = true
	g.generation++
	gen := g.generation
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inFlight, key)
		g.mu.Unlock()
	}()

	raw, err := call(ctx)
	if err != nil {
		return nil, classify(err)
	}

	sessionID, err := parseSessionID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	gs := &core.GameSession{
		SessionID: sessionID,
		ChildID:   childID,
		Variant:   variant,
		Snapshot:  raw,
	}

	// Checked and persisted under the lock so a stale response can never
	// overwrite a newer one
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen < g.persisted {
		g.logger.Info("discarding superseded selection",
			"child_id", childID,
			"variant", variant,
			"session_id", sessionID,
		)
		return nil, ErrSuperseded
	}

	err = g.store.MultiSet(ctx, storage.Pairs(
		storage.KeyGameSessionID, sessionID,
		storage.KeyCurrentGameData, string(raw),
		storage.KeyGameChildID, strconv.FormatInt(childID, 10),
		storage.KeyGameVariant, string(variant),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to persist game session: %w", err)
	}
	g.persisted = gen

	return gs, nil
}

func validate(childID int64, variant core.GameVariant) error {
	if childID <= 0 {
		return core.ErrInvalidChildID
	}
	return variant.Validate()
}

// classify maps client errors onto the gate's error kinds
func classify(err error) error {
	var apiErr *client.Error
	if errors.As(err, &apiErr) && apiErr.IsForbidden() {
		return &LevelLockedError{Message: apiErr.Detail}
	}
	if errors.Is(err, core.ErrInvalidVariant) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRequestFailed, err)
}

// parseSessionID reads session_id, which the backends send as a string or
// a number
func parseSessionID(raw json.RawMessage) (string, error) {
	var body struct {
		SessionID json.RawMessage `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}
	if len(body.SessionID) == 0 || string(body.SessionID) == "null" {
		return "", errors.New("response has no session_id")
	}
	var s string
	if err := json.Unmarshal(body.SessionID, &s); err == nil {
		if s == "" {
			return "", errors.New("response has empty session_id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(body.SessionID, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unsupported session_id %s", body.SessionID)
}

// Ensure Gate implements GateInterface
var _ GateInterface = (*Gate)(nil)
