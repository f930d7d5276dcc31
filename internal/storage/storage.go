package storage

import (
	"context"
	"errors"
)

// Persisted key layout shared with earlier app versions
const (
	KeyAccessToken = "accessToken"
	KeyLoginTime   = "loginTime"
	KeyUserType    = "userType"
	KeyChildID     = "childId"
	KeyParentID    = "parentId"
	KeyUserData    = "userData"
	KeyParentData  = "parentData"

	KeyGameSessionID   = "gameSessionId"
	KeyCurrentGameData = "currentGameData"
	KeyGameChildID     = "gameChildId"
	KeyGameVariant     = "gameVariant"

	KeyResetUsername = "resetUsername"
	KeyResetEmail    = "resetEmail"
)

// SessionKeys are removed together when the authenticated session ends
var SessionKeys = []string{
	KeyAccessToken,
	KeyLoginTime,
	KeyUserType,
	KeyChildID,
	KeyParentID,
	KeyUserData,
	KeyParentData,
}

// GameSessionKeys hold the current GameSession
var GameSessionKeys = []string{
	KeyGameSessionID,
	KeyCurrentGameData,
	KeyGameChildID,
	KeyGameVariant,
}

// ResetKeys carry password-recovery context to the OTP step
var ResetKeys = []string{
	KeyResetUsername,
	KeyResetEmail,
}

var ErrClosed = errors.New("storage is closed")

// KV is a single key/value pair for batched writes
type KV struct {
	Key   string
	Value string
}

// Store defines the device-local persisted key-value store.
// All values are strings; structured data is JSON encoded by the caller.
type Store interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// MultiSet writes all pairs as one unit: readers see all of them or none
	MultiSet(ctx context.Context, pairs []KV) error
	Remove(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys []string) error

	// Lifecycle
	Close() error
}

// Pairs builds a KV slice from alternating key, value arguments
func Pairs(kv ...string) []KV {
	pairs := make([]KV, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, KV{Key: kv[i], Value: kv[i+1]})
	}
	return pairs
}
