package audio

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Backend abstracts the device audio subsystem.
// This allows testing without sound hardware using mock implementations.
type Backend interface {
	// Load creates a playable resource for track
	Load(ctx context.Context, track string) (Handle, error)
}

// Handle is one loaded playable resource. It is owned by Manager and never
// handed to callers.
type Handle interface {
	Play() error
	Pause() error
	SetLooping(loop bool) error
	// Release frees the resource; the handle is unusable afterwards
	Release() error
}

// LogBackend implements Backend without producing sound.
// It logs every call, which is enough for the CLI and headless kiosks.
type LogBackend struct {
	logger *slog.Logger
	loads  atomic.Int64
}

// NewLogBackend creates a backend that only logs
func NewLogBackend(logger *slog.Logger) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{
		logger: logger.With("component", "audio-log-backend"),
	}
}

// Load logs the load and returns a logging handle
func (b *LogBackend) Load(ctx context.Context, track string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := b.loads.Add(1)
	b.logger.Info("audio resource loaded", "track", track, "load", n)
	return &logHandle{logger: b.logger.With("track", track)}, nil
}

// Loads returns how many resources were created
func (b *LogBackend) Loads() int64 {
	return b.loads.Load()
}

type logHandle struct {
	logger *slog.Logger
}

func (h *logHandle) Play() error {
	h.logger.Info("audio play")
	return nil
}

func (h *logHandle) Pause() error {
	h.logger.Info("audio pause")
	return nil
}

func (h *logHandle) SetLooping(loop bool) error {
	h.logger.Debug("audio looping", "loop", loop)
	return nil
}

func (h *logHandle) Release() error {
	h.logger.Info("audio resource released")
	return nil
}

// Ensure implementations satisfy the interfaces
var (
	_ Backend = (*LogBackend)(nil)
	_ Handle  = (*logHandle)(nil)
)
