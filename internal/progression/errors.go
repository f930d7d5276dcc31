package progression

import (
	"errors"
)

var (
	// ErrLevelLocked is matched by *LevelLockedError
	ErrLevelLocked = errors.New("level locked")
	// ErrRequestFailed wraps network failures and non-403 rejections
	ErrRequestFailed = errors.New("request failed")
	// ErrSelectionInFlight rejects a second selection for the same child and
	// game while the first is pending
	ErrSelectionInFlight = errors.New("level selection already in progress")
	// ErrSuperseded is returned when a newer selection was issued while this
	// one was pending; its result is discarded
	ErrSuperseded = errors.New("level selection superseded")
)

// LevelLockedError carries the server's unlock explanation. Message is
// user-facing and shown verbatim.
type LevelLockedError struct {
	Message string
}

func (e *LevelLockedError) Error() string {
	if e.Message == "" {
		return ErrLevelLocked.Error()
	}
	return e.Message
}

// Is lets errors.Is(err, ErrLevelLocked) match
func (e *LevelLockedError) Is(target error) bool {
	return target == ErrLevelLocked
}
