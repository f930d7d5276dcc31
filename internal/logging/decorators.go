package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kidchat/internal/core"
	"kidchat/internal/progression"
)

// GateLogger wraps a progression gate and logs all method calls
type GateLogger struct {
	gate   progression.GateInterface
	logger *slog.Logger
}

// NewGateLogger creates a new logging decorator for the progression gate
func NewGateLogger(gate progression.GateInterface, logger *slog.Logger) progression.GateInterface {
	return &GateLogger{
		gate:   gate,
		logger: logger.With("interface", "ProgressionGate"),
	}
}

func (l *GateLogger) SelectLevel(ctx context.Context, childID int64, variant core.GameVariant, level int) (*core.GameSession, error) {
	start := time.Now()
	l.logger.Info("SelectLevel called",
		"child_id", childID,
		"variant", variant,
		"level", level)

	gs, err := l.gate.SelectLevel(ctx, childID, variant, level)
	duration := time.Since(start)

	if err != nil {
		l.logFailure("SelectLevel", err,
			"child_id", childID,
			"variant", variant,
			"level", level,
			"duration", duration)
		return nil, err
	}

	l.logger.Info("SelectLevel completed",
		"child_id", childID,
		"variant", variant,
		"level", level,
		"session_id", gs.SessionID,
		"duration", duration)

	return gs, nil
}

func (l *GateLogger) StartDefault(ctx context.Context, childID int64, variant core.GameVariant) (*core.GameSession, error) {
	start := time.Now()
	l.logger.Info("StartDefault called",
		"child_id", childID,
		"variant", variant)

	gs, err := l.gate.StartDefault(ctx, childID, variant)
	duration := time.Since(start)

	if err != nil {
		l.logFailure("StartDefault", err,
			"child_id", childID,
			"variant", variant,
			"duration", duration)
		return nil, err
	}

	l.logger.Info("StartDefault completed",
		"child_id", childID,
		"variant", variant,
		"session_id", gs.SessionID,
		"duration", duration)

	return gs, nil
}

func (l *GateLogger) FetchProgress(ctx context.Context, childID int64, variant core.GameVariant) (*core.ProgressSnapshot, error) {
	start := time.Now()
	l.logger.Debug("FetchProgress called",
		"child_id", childID,
		"variant", variant)

	snap, err := l.gate.FetchProgress(ctx, childID, variant)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("FetchProgress failed",
			"child_id", childID,
			"variant", variant,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Debug("FetchProgress completed",
		"child_id", childID,
		"variant", variant,
		"current_level", snap.CurrentLevel,
		"next_level", snap.NextUnlockLevel,
		"duration", duration)

	return snap, nil
}

func (l *GateLogger) Current(ctx context.Context, childID int64) (*core.GameSession, error) {
	gs, err := l.gate.Current(ctx, childID)
	if err != nil {
		l.logger.Debug("Current returned no game session",
			"child_id", childID,
			"error", err)
		return nil, err
	}
	return gs, nil
}

// logFailure logs expected outcomes such as a locked level below error
func (l *GateLogger) logFailure(method string, err error, args ...any) {
	args = append(args, "error", err)
	switch {
	case errors.Is(err, progression.ErrLevelLocked),
		errors.Is(err, progression.ErrSelectionInFlight),
		errors.Is(err, progression.ErrSuperseded):
		l.logger.Warn(method+" rejected", args...)
	default:
		l.logger.Error(method+" failed", args...)
	}
}

// Ensure GateLogger implements GateInterface
var _ progression.GateInterface = (*GateLogger)(nil)
