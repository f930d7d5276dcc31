// Package app wires the client core from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kidchat/config"
	"kidchat/internal/audio"
	"kidchat/internal/client"
	"kidchat/internal/core"
	"kidchat/internal/logging"
	"kidchat/internal/progression"
	"kidchat/internal/session"
	"kidchat/internal/storage"
	"kidchat/internal/storage/memory"
	"kidchat/internal/storage/redis"
	"kidchat/internal/storage/sqlite"
)

// ErrNoActiveChild is returned when the session acts for no child, such as a
// parent without children
var ErrNoActiveChild = errors.New("session has no active child")

// App holds the wired components
type App struct {
	Logger  *slog.Logger
	Store   storage.Store
	Client  *client.Client
	Session *session.Manager
	Gate    progression.GateInterface
	Audio   *audio.Manager
}

// Option customizes New
type Option func(*options)

type options struct {
	store        storage.Store
	audioBackend audio.Backend
	clock        core.Clock
}

// WithStore uses store instead of opening the configured driver
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithAudioBackend replaces the logging audio backend
func WithAudioBackend(b audio.Backend) Option {
	return func(o *options) { o.audioBackend = b }
}

// WithClock replaces the real clock
func WithClock(c core.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds every component from cfg. The audio manager is also installed
// as audio.Default().
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{clock: core.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	a := &App{Logger: logger, Store: store}

	// The client reads the token through the session manager, which is
	// created right after it
	a.Client = client.New(cfg.API.BaseURL, logger,
		client.WithTimeout(cfg.API.Timeout()),
		client.WithTokenSource(func(ctx context.Context) string {
			return a.Session.AccessToken(ctx)
		}),
	)

	a.Session = session.NewManager(store, a.Client, o.clock, session.Options{
		TTL:          cfg.Session.TTL(),
		StartupDelay: cfg.Session.StartupDelay(),
		StrictToken:  cfg.Session.StrictToken,
	}, logger)

	a.Gate = logging.NewGateLogger(progression.NewGate(a.Client, store, logger), logger)

	backend := o.audioBackend
	if backend == nil {
		backend = audio.NewLogBackend(logger)
	}
	a.Audio = audio.NewManager(backend, cfg.Audio.Track, logger)
	audio.SetDefault(a.Audio)

	return a, nil
}

// OpenStore opens the configured storage driver
func OpenStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return s, nil
	case config.DriverRedis:
		s, err := redis.New(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis storage: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// ActiveChild returns the child the current session acts for
func (a *App) ActiveChild(ctx context.Context) (int64, error) {
	s, err := a.Session.Current(ctx)
	if err != nil {
		return 0, err
	}
	if s.ChildID == 0 {
		return 0, ErrNoActiveChild
	}
	return s.ChildID, nil
}

// Close releases audio and closes the store
func (a *App) Close(ctx context.Context) error {
	a.Audio.Unload(ctx)
	return a.Store.Close()
}
