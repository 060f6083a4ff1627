package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	oauthStatePrefix   = "oauth_state:"
	revokedTokenPrefix = "revoked_token:"
)

// StateStore holds single-use OAuth state values
type StateStore interface {
	// Put stores state for ttl; storing an existing state is an error
	Put(ctx context.Context, state string, ttl time.Duration) error
	// Consume deletes state and reports whether it was present
	Consume(ctx context.Context, state string) (bool, error)
}

// TokenRevoker tracks revoked session token IDs
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ErrStateExists is returned when an OAuth state collides with a live one
var ErrStateExists = errors.New("oauth state already exists")

// RedisStateStore keeps OAuth states in Redis
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a Redis backed StateStore
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Put(ctx context.Context, state string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, oauthStatePrefix+state, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	if !ok {
		return ErrStateExists
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	err := s.client.GetDel(ctx, oauthStatePrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return true, nil
}

// RedisTokenRevoker keeps revoked token IDs in Redis until the token would expire
type RedisTokenRevoker struct {
	client *redis.Client
}

// NewRedisTokenRevoker creates a Redis backed TokenRevoker
func NewRedisTokenRevoker(client *redis.Client) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client}
}

func (r *RedisTokenRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedTokenPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedTokenPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// expiringSet is a mutex guarded map of keys to expiry times
type expiringSet struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

func newExpiringSet() *expiringSet {
	return &expiringSet{items: make(map[string]time.Time), now: time.Now}
}

func (s *expiringSet) add(key string, ttl time.Duration, replace bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	if _, ok := s.items[key]; ok && !replace {
		return false
	}
	s.items[key] = now.Add(ttl)
	return true
}

func (s *expiringSet) has(key string, remove bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[key]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		delete(s.items, key)
		return false
	}
	if remove {
		delete(s.items, key)
	}
	return true
}

func (s *expiringSet) sweep(now time.Time) {
	for k, exp := range s.items {
		if !now.Before(exp) {
			delete(s.items, k)
		}
	}
}

// MemoryStateStore is a process-local StateStore for single instance deployments
type MemoryStateStore struct {
	set *expiringSet
}

// NewMemoryStateStore creates an in-memory StateStore
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{set: newExpiringSet()}
}

func (s *MemoryStateStore) Put(_ context.Context, state string, ttl time.Duration) error {
	if !s.set.add(state, ttl, false) {
		return ErrStateExists
	}
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (bool, error) {
	return s.set.has(state, true), nil
}

// MemoryTokenRevoker is a process-local TokenRevoker
type MemoryTokenRevoker struct {
	set *expiringSet
}

// NewMemoryTokenRevoker creates an in-memory TokenRevoker
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{set: newExpiringSet()}
}

func (r *MemoryTokenRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl > 0 {
		r.set.add(jti, ttl, true)
	}
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	return r.set.has(jti, false), nil
}
