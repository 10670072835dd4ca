package cache

import (
	"sync"
	"time"
)

// TokenCache holds one bearer token until it expires. A margin is subtracted
// from the expiry so a token is never handed out moments before the platform
// rejects it.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	margin    time.Duration
	now       func() time.Time
}

// NewTokenCache creates an empty cache that treats tokens as expired margin
// before their real expiry.
func NewTokenCache(margin time.Duration) *TokenCache {
	return &TokenCache{margin: margin, now: time.Now}
}

// Get returns the cached token if it is still valid.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" || !c.now().Before(c.expiresAt.Add(-c.margin)) {
		return "", false
	}
	return c.token, true
}

// Set stores a token valid for ttl from now.
func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.SetUntil(token, c.now().Add(ttl))
}

// SetUntil stores a token valid until expiresAt.
func (c *TokenCache) SetUntil(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.expiresAt = expiresAt
}

// ExpiresAt returns the stored expiry, or the zero time when empty.
func (c *TokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.expiresAt
}

// Clear removes the cached token.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}
