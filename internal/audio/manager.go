// Package audio owns the single background music resource shared by every
// screen of the app.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultTrack is played when no track is configured
const DefaultTrack = "assets/music/background.mp3"

const loadKey = "load-"

var errUnloaded = errors.New("audio unloaded while loading")

// Listener receives the new playing state after each transition
type Listener func(playing bool)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Manager controls one looping background track.
// Failures of the audio backend are logged and leave the state unchanged;
// no operation returns an error.
type Manager struct {
	backend Backend
	track   string
	logger  *slog.Logger

	loads singleflight.Group

	mu         sync.Mutex
	handle     Handle
	playing    bool
	userPaused bool
	// epoch changes on Unload so a load that started before it is discarded
	epoch     uint64
	listeners []listenerEntry
	nextID    uint64
}

// NewManager creates a new audio manager for track
func NewManager(backend Backend, track string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if track == "" {
		track = DefaultTrack
	}
	return &Manager{
		backend: backend,
		track:   track,
		logger:  logger.With("component", "audio-manager"),
	}
}

// LoadAndPlay loads the track on first use and starts playback unless the
// user paused it. Repeated calls are no-ops once playing.
func (m *Manager) LoadAndPlay(ctx context.Context) {
	h, err := m.ensureLoaded(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load audio", "error", err)
		return
	}

	m.mu.Lock()
	if m.handle != h || m.playing || m.userPaused {
		m.mu.Unlock()
		return
	}
	if err := h.Play(); err != nil {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "failed to start playback", "error", err)
		return
	}
	m.playing = true
	ls := m.snapshotListeners()
	m.mu.Unlock()

	notify(ls, true)
}

// Pause stops playback and remembers that the user asked for silence
func (m *Manager) Pause(ctx context.Context) {
	m.mu.Lock()
	if !m.playing || m.handle == nil {
		m.mu.Unlock()
		return
	}
	if err := m.handle.Pause(); err != nil {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "failed to pause playback", "error", err)
		return
	}
	m.playing = false
	m.userPaused = true
	ls := m.snapshotListeners()
	m.mu.Unlock()

	notify(ls, false)
}

// Resume starts playback, loading the track if needed, and clears the
// user's pause
func (m *Manager) Resume(ctx context.Context) {
	h, err := m.ensureLoaded(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load audio", "error", err)
		return
	}

	m.mu.Lock()
	if m.playing || m.handle != h {
		m.mu.Unlock()
		return
	}
	if err := h.Play(); err != nil {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "failed to resume playback", "error", err)
		return
	}
	m.playing = true
	m.userPaused = false
	ls := m.snapshotListeners()
	m.mu.Unlock()

	notify(ls, true)
}

// Toggle pauses when playing and resumes otherwise
func (m *Manager) Toggle(ctx context.Context) {
	if m.IsPlaying() {
		m.Pause(ctx)
		return
	}
	m.Resume(ctx)
}

// Unload releases the resource and resets the manager to its initial state.
// A load still in flight is released when it completes.
func (m *Manager) Unload(ctx context.Context) {
	m.mu.Lock()
	h := m.handle
	wasPlaying := m.playing
	m.handle = nil
	m.playing = false
	m.userPaused = false
	m.epoch++
	var ls []Listener
	if wasPlaying {
		ls = m.snapshotListeners()
	}
	m.mu.Unlock()

	if h != nil {
		if err := h.Release(); err != nil {
			m.logger.WarnContext(ctx, "failed to release audio", "error", err)
		}
		m.logger.DebugContext(ctx, "audio unloaded")
	}
	notify(ls, false)
}

// IsPlaying reports the current playing state
func (m *Manager) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// IsLoaded reports whether the resource exists
func (m *Manager) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// AddListener registers fn for playing transitions. The returned function
// removes it; calling it more than once is harmless.
func (m *Manager) AddListener(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ensureLoaded returns the loaded handle, sharing one in-flight load
// between concurrent callers of the same epoch
func (m *Manager) ensureLoaded(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	if h := m.handle; h != nil {
		m.mu.Unlock()
		return h, nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	// A load started before Unload belongs to an older epoch and is never
	// joined. The load outlives any single caller's context.
	loadCtx := context.WithoutCancel(ctx)
	key := loadKey + strconv.FormatUint(epoch, 10)
	ch := m.loads.DoChan(key, func() (interface{}, error) {
		return m.load(loadCtx, epoch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Handle), nil
	}
}

func (m *Manager) load(ctx context.Context, epoch uint64) (Handle, error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil, errUnloaded
	}
	if h := m.handle; h != nil {
		// Loaded between the caller's check and this flight starting
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	h, err := m.backend.Load(ctx, m.track)
	if err != nil {
		return nil, err
	}
	if err := h.SetLooping(true); err != nil {
		m.release(ctx, h)
		return nil, err
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.release(ctx, h)
		return nil, errUnloaded
	}
	m.handle = h
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "audio loaded", "track", m.track)
	return h, nil
}

func (m *Manager) release(ctx context.Context, h Handle) {
	if err := h.Release(); err != nil {
		m.logger.WarnContext(ctx, "failed to release audio", "error", err)
	}
}

// snapshotListeners copies the listener list; callers hold mu
func (m *Manager) snapshotListeners() []Listener {
	ls := make([]Listener, len(m.listeners))
	for i, l := range m.listeners {
		ls[i] = l.fn
	}
	return ls
}

func notify(ls []Listener, playing bool) {
	for _, fn := range ls {
		fn(playing)
	}
}

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide manager, creating one backed by
// LogBackend on first use
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		defaultManager = NewManager(NewLogBackend(nil), DefaultTrack, nil)
	}
	return defaultManager
}

// SetDefault replaces the process-wide manager
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = m
}
