// Package redis implements storage.Store on top of Redis, for kiosk and
// development setups where several processes share one device profile.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kidchat/internal/storage"

	goredis "github.com/redis/go-redis/v9"
)

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // prepended to every key, default "kidchat:"
}

// Store implements storage.Store using Redis strings
type Store struct {
	client *goredis.Client
	prefix string
}

// New connects to Redis and verifies the connection with PING
func New(opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return NewWithClient(client, opts.Prefix), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "kidchat:"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get retrieves a value by key
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value without expiry
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

// MultiSet writes all pairs inside MULTI/EXEC
func (s *Store) MultiSet(ctx context.Context, pairs []storage.KV) error {
	if len(pairs) == 0 {
		return nil
	}

	args := make([]any, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, s.key(p.Key), p.Value)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.MSet(ctx, args...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %d keys: %w", len(pairs), err)
	}
	return nil
}

// Remove deletes a key
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// MultiRemove deletes all keys with one DEL
func (s *Store) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	return s.client.Del(ctx, prefixed...).Err()
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// Verify interface compliance.
var _ storage.Store = (*Store)(nil)
