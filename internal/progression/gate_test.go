package progression

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kidchat/internal/client"
	"kidchat/internal/core"
	"kidchat/internal/storage"
	"kidchat/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Mock implementations

// mockAPI answers selections from a function; block, when set, holds each
// selection until closed
type mockAPI struct {
	mu       sync.Mutex
	calls    int
	selectFn func(variant core.GameVariant, childID int64, level int) (json.RawMessage, error)
	block    chan struct{}
	started  chan struct{}
	progress *core.ProgressSnapshot
}

func (m *mockAPI) SelectLevel(ctx context.Context, variant core.GameVariant, childID int64, level int) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls++
	block, started := m.block, m.started
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return m.selectFn(variant, childID, level)
}

func (m *mockAPI) StartGame(ctx context.Context, variant core.GameVariant, childID int64) (json.RawMessage, error) {
	return m.SelectLevel(ctx, variant, childID, 0)
}

func (m *mockAPI) Progress(ctx context.Context, variant core.GameVariant, childID int64) (*core.ProgressSnapshot, error) {
	return m.progress, nil
}

func (m *mockAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingStore struct {
	*memory.Store
}

func (f failingStore) MultiSet(context.Context, []storage.KV) error {
	return errors.New("disk full")
}

func newGateWithServer(t *testing.T, handler http.HandlerFunc) (*Gate, *memory.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := memory.New()
	api := client.New(server.URL, testLogger())
	return NewGate(api, store, testLogger()), store
}

func TestSelectLevel_PersistsGameSession(t *testing.T) {
	gate, store := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/game/select_level/5", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("desired_level"))
		w.Write([]byte(`{"session_id":"abc","unlocked":true}`))
	})
	ctx := context.Background()

	gs, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", gs.SessionID)
	assert.Equal(t, int64(5), gs.ChildID)
	assert.Equal(t, core.VariantFruits, gs.Variant)

	data := store.Snapshot()
	assert.Equal(t, "abc", data[storage.KeyGameSessionID])
	assert.JSONEq(t, `{"session_id":"abc","unlocked":true}`, data[storage.KeyCurrentGameData])
	assert.Equal(t, "5", data[storage.KeyGameChildID])
	assert.Equal(t, "fruits", data[storage.KeyGameVariant])

	cur, err := gate.Current(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, gs.SessionID, cur.SessionID)
	assert.JSONEq(t, string(gs.Snapshot), string(cur.Snapshot))
}

func TestSelectLevel_LockedLeavesPriorSession(t *testing.T) {
	var locked atomic.Bool
	gate, store := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		if locked.Load() {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"detail":"Level 7 locked"}`))
			return
		}
		w.Write([]byte(`{"session_id":"prev","level":2}`))
	})
	ctx := context.Background()

	_, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 2)
	require.NoError(t, err)
	before := store.Snapshot()

	locked.Store(true)
	gs, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 7)
	assert.Nil(t, gs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLevelLocked)
	assert.False(t, errors.Is(err, ErrRequestFailed))

	var lockedErr *LevelLockedError
	require.True(t, errors.As(err, &lockedErr))
	assert.Equal(t, "Level 7 locked", lockedErr.Message)
	assert.Equal(t, "Level 7 locked", err.Error())

	assert.Equal(t, before, store.Snapshot())
}

func TestSelectLevel_OtherFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`},
		{"not found", http.StatusNotFound, `{"detail":"Child not found"}`},
		{"missing session id", http.StatusOK, `{"unlocked":true}`},
		{"null session id", http.StatusOK, `{"session_id":null}`},
		{"not json", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, store := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := gate.SelectLevel(context.Background(), 5, core.VariantSpelling, 1)
			assert.ErrorIs(t, err, ErrRequestFailed)
			assert.False(t, errors.Is(err, ErrLevelLocked))
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestSelectLevel_NetworkFailure(t *testing.T) {
	store := memory.New()
	api := client.New("http://localhost:1", testLogger(), client.WithTimeout(2*time.Second))
	gate := NewGate(api, store, testLogger())

	_, err := gate.StartDefault(context.Background(), 5, core.VariantMystery)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.ErrorIs(t, err, client.ErrNetwork)
	assert.Equal(t, 0, store.Len())
}

func TestSelectLevel_NumericSessionID(t *testing.T) {
	gate, store := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mind-mystery/Select_level", r.URL.Path)
		w.Write([]byte(`{"session_id":42,"questions":[]}`))
	})

	gs, err := gate.SelectLevel(context.Background(), 5, core.VariantMystery, 1)
	require.NoError(t, err)
	assert.Equal(t, "42", gs.SessionID)
	assert.Equal(t, "42", store.Snapshot()[storage.KeyGameSessionID])
}

func TestSelectLevel_Validation(t *testing.T) {
	api := &mockAPI{}
	gate := NewGate(api, memory.New(), testLogger())
	ctx := context.Background()

	_, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 0)
	assert.ErrorIs(t, err, core.ErrInvalidLevel)
	_, err = gate.SelectLevel(ctx, 0, core.VariantFruits, 1)
	assert.ErrorIs(t, err, core.ErrInvalidChildID)
	_, err = gate.StartDefault(ctx, 5, core.GameVariant("chess"))
	assert.ErrorIs(t, err, core.ErrInvalidVariant)
	_, err = gate.FetchProgress(ctx, 5, core.GameVariant("chess"))
	assert.ErrorIs(t, err, core.ErrInvalidVariant)

	assert.Equal(t, 0, api.callCount())
}

func TestStartDefault(t *testing.T) {
	gate, store := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/game/start/spell?child_id=5", r.URL.RequestURI())
		w.Write([]byte(`{"session_id":"s-9","level":4}`))
	})

	gs, err := gate.StartDefault(context.Background(), 5, core.VariantSpelling)
	require.NoError(t, err)
	assert.Equal(t, "s-9", gs.SessionID)
	assert.Equal(t, "spelling", store.Snapshot()[storage.KeyGameVariant])
}

func TestSelectLevel_RejectsWhileInFlight(t *testing.T) {
	api := &mockAPI{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
		selectFn: func(core.GameVariant, int64, int) (json.RawMessage, error) {
			return json.RawMessage(`{"session_id":"first"}`), nil
		},
	}
	store := memory.New()
	gate := NewGate(api, store, testLogger())
	ctx := context.Background()

	type result struct {
		gs  *core.GameSession
		err error
	}
	done := make(chan result, 1)
	go func() {
		gs, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 1)
		done <- result{gs, err}
	}()
	<-api.started

	_, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 2)
	assert.ErrorIs(t, err, ErrSelectionInFlight)
	_, err = gate.StartDefault(ctx, 5, core.VariantFruits)
	assert.ErrorIs(t, err, ErrSelectionInFlight)

	close(api.block)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "first", res.gs.SessionID)
	assert.Equal(t, 1, api.callCount())

	// Idle again
	_, err = gate.SelectLevel(ctx, 5, core.VariantFruits, 2)
	assert.NoError(t, err)
}

func TestSelectLevel_StaleResponseDoesNotClobber(t *testing.T) {
	slow := make(chan struct{})
	var mu sync.Mutex
	first := true
	api := &mockAPI{
		started: make(chan struct{}, 2),
		selectFn: func(variant core.GameVariant, childID int64, level int) (json.RawMessage, error) {
			mu.Lock()
			isFirst := first
			first = false
			mu.Unlock()
			if isFirst {
				<-slow
				return json.RawMessage(`{"session_id":"stale"}`), nil
			}
			return json.RawMessage(`{"session_id":"fresh"}`), nil
		},
	}
	store := memory.New()
	gate := NewGate(api, store, testLogger())
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 1)
		errCh <- err
	}()
	<-api.started

	// Different game for the same child is a different pair, so it is not
	// rejected and becomes the newest selection
	gs, err := gate.SelectLevel(ctx, 5, core.VariantSpelling, 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh", gs.SessionID)

	close(slow)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	data := store.Snapshot()
	assert.Equal(t, "fresh", data[storage.KeyGameSessionID])
	assert.Equal(t, "spelling", data[storage.KeyGameVariant])
}

func TestSelectLevel_FailedNewerSelectionDoesNotSupersede(t *testing.T) {
	slow := make(chan struct{})
	api := &mockAPI{
		started: make(chan struct{}, 2),
		selectFn: func(variant core.GameVariant, childID int64, level int) (json.RawMessage, error) {
			if variant == core.VariantFruits {
				<-slow
				return json.RawMessage(`{"session_id":"accepted"}`), nil
			}
			return nil, &client.Error{StatusCode: http.StatusForbidden, Detail: "Level 4 locked"}
		},
	}
	store := memory.New()
	gate := NewGate(api, store, testLogger())
	ctx := context.Background()

	type result struct {
		gs  *core.GameSession
		err error
	}
	done := make(chan result, 1)
	go func() {
		gs, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 1)
		done <- result{gs, err}
	}()
	<-api.started

	_, err := gate.SelectLevel(ctx, 6, core.VariantSpelling, 4)
	assert.ErrorIs(t, err, ErrLevelLocked)

	close(slow)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "accepted", res.gs.SessionID)

	data := store.Snapshot()
	assert.Equal(t, "accepted", data[storage.KeyGameSessionID])
	assert.Equal(t, "5", data[storage.KeyGameChildID])
}

func TestSelectLevel_PersistFailure(t *testing.T) {
	api := &mockAPI{
		selectFn: func(core.GameVariant, int64, int) (json.RawMessage, error) {
			return json.RawMessage(`{"session_id":"abc"}`), nil
		},
	}
	gate := NewGate(api, failingStore{memory.New()}, testLogger())

	_, err := gate.SelectLevel(context.Background(), 5, core.VariantFruits, 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRequestFailed))
}

func TestFetchProgress_DoesNotMutate(t *testing.T) {
	gate, store := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/game/progress/5":
			w.Write([]byte(`{"username":"kim","current_level":3,"next_level":4,"total_levels":10,"points_per_level":{"1":10,"2":20,"3":5}}`))
		default:
			w.Write([]byte(`{"session_id":"abc"}`))
		}
	})
	ctx := context.Background()

	_, err := gate.SelectLevel(ctx, 5, core.VariantFruits, 3)
	require.NoError(t, err)
	before := store.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := gate.FetchProgress(ctx, 5, core.VariantFruits)
			assert.NoError(t, err)
			if snap != nil {
				assert.Equal(t, 4, snap.NextUnlockLevel)
				assert.Equal(t, 20, snap.PointsPerLevel[2])
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, before, store.Snapshot())
}

func TestFetchProgress_Failure(t *testing.T) {
	gate, _ := newGateWithServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gate.FetchProgress(context.Background(), 5, core.VariantFruits)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestCurrent(t *testing.T) {
	store := memory.New()
	gate := NewGate(&mockAPI{}, store, testLogger())
	ctx := context.Background()

	_, err := gate.Current(ctx, 5)
	assert.ErrorIs(t, err, core.ErrNoGameSession)

	require.NoError(t, store.MultiSet(ctx, storage.Pairs(
		storage.KeyGameSessionID, "abc",
		storage.KeyCurrentGameData, `{"session_id":"abc"}`,
		storage.KeyGameChildID, "5",
		storage.KeyGameVariant, "mystery",
	)))

	gs, err := gate.Current(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, core.VariantMystery, gs.Variant)

	_, err = gate.Current(ctx, 6)
	assert.ErrorIs(t, err, core.ErrNoGameSession, "another child's game is not returned")

	require.NoError(t, store.Set(ctx, storage.KeyGameChildID, "five"))
	_, err = gate.Current(ctx, 5)
	assert.ErrorIs(t, err, core.ErrNoGameSession, "corrupt owner id")
	_, err = gate.Current(ctx, 0)
	assert.ErrorIs(t, err, core.ErrNoGameSession)
}
