// Package cache fronts a session store with Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/qualifier/internal/model"
)

// DefaultTTL is how long a cached session lives without being written.
const DefaultTTL = 30 * time.Minute

// Backend is the durable store behind the cache.
type Backend interface {
	LoadSession(ctx context.Context, userID string) (*model.Session, error)
	SaveSession(ctx context.Context, s *model.Session) error
}

// SessionCache is a write-through cache. The backend is the source of truth:
// Redis failures are logged and fall through to it.
type SessionCache struct {
	next   Backend
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache wraps next. A ttl of zero selects DefaultTTL.
func NewSessionCache(next Backend, client *redis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SessionCache{next: next, client: client, ttl: ttl}
}

func sessionKey(userID string) string {
	return "lead:session:" + userID
}

// LoadSession serves from Redis when possible and fills it on a miss.
func (c *SessionCache) LoadSession(ctx context.Context, userID string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(userID)).Bytes()
	switch {
	case err == nil:
		var s model.Session
		if err := json.Unmarshal(data, &s); err == nil {
			return &s, nil
		}
		slog.Warn("dropping undecodable cached session", "user", userID, "error", err)
		c.evict(ctx, userID)
	case !errors.Is(err, redis.Nil):
		slog.Warn("session cache read failed", "user", userID, "error", err)
	}

	s, err := c.next.LoadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, s)
	return s, nil
}

// SaveSession writes to the backend first, then refreshes the cache.
func (c *SessionCache) SaveSession(ctx context.Context, s *model.Session) error {
	if err := c.next.SaveSession(ctx, s); err != nil {
		// The backend may or may not hold the write; never serve a guess.
		c.evict(ctx, s.UserID)
		return err
	}
	c.fill(ctx, s)
	return nil
}

func (c *SessionCache) fill(ctx context.Context, s *model.Session) {
	data, err := json.Marshal(s)
	if err != nil {
		slog.Warn("encode session for cache", "user", s.UserID, "error", err)
		return
	}
	if err := c.client.Set(ctx, sessionKey(s.UserID), data, c.ttl).Err(); err != nil {
		slog.Warn("session cache write failed", "user", s.UserID, "error", err)
		c.evict(ctx, s.UserID)
	}
}

func (c *SessionCache) evict(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		slog.Debug("session cache evict failed", "user", userID, "error", err)
	}
}
