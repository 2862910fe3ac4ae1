// Package usercache remembers how players are called so boards can show names instead of ids.
package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTTL keeps a profile for a month after the player was last seen.
const DefaultTTL = 30 * 24 * time.Hour

// Profile is the public identity of a Telegram user.
type Profile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName prefers the @username, then the full name, then the numeric id.
func (p Profile) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
		return name
	}
	return fmt.Sprintf("%d", p.ID)
}

// Cache stores profiles keyed by Telegram id.
type Cache interface {
	Set(ctx context.Context, profile Profile) error
	Get(ctx context.Context, userID int64) (*Profile, error)
	GetMany(ctx context.Context, userIDs []int64) (map[int64]Profile, error)
}

// RedisCache provides Redis-backed caching for user profiles.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache constructs a profile cache backed by the provided Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get fetches a cached profile; nil when unknown.
func (c *RedisCache) Get(ctx context.Context, userID int64) (*Profile, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &profile, nil
}

// GetMany fetches every known profile among userIDs in one round trip.
func (c *RedisCache) GetMany(ctx context.Context, userIDs []int64) (map[int64]Profile, error) {
	out := make(map[int64]Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cacheKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get cached profiles: %w", err)
	}

	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var profile Profile
		if err := json.Unmarshal([]byte(s), &profile); err != nil {
			continue
		}
		out[userIDs[i]] = profile
	}

	return out, nil
}

// Set stores the profile and refreshes its TTL.
func (c *RedisCache) Set(ctx context.Context, profile Profile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(profile.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("candy:profile:%d", userID)
}

// MemoryCache keeps profiles in process; used with the file backend.
type MemoryCache struct {
	mu       sync.RWMutex
	profiles map[int64]Profile
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{profiles: make(map[int64]Profile)}
}

func (c *MemoryCache) Set(_ context.Context, profile Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[profile.ID] = profile
	return nil
}

func (c *MemoryCache) Get(_ context.Context, userID int64) (*Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	profile, ok := c.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (c *MemoryCache) GetMany(_ context.Context, userIDs []int64) (map[int64]Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[int64]Profile, len(userIDs))
	for _, id := range userIDs {
		if profile, ok := c.profiles[id]; ok {
			out[id] = profile
		}
	}
	return out, nil
}
