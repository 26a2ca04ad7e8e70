package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	value    string
	expireAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// LocalCache is the in-process fallback when no Redis is configured.
// The engine only keeps login tokens here, so a mutex-guarded map with
// a periodic sweep is all it needs.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	stop    chan struct{}
}

// NewCache creates a LocalCache and starts its expiry sweep goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go c.sweep(interval)
	return c, nil
}

// Close stops the expiry sweep goroutine.
func (c *LocalCache) Close() {
	close(c.stop)
}

func (c *LocalCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Get returns the value for key, or ErrNotFound.
func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

// Set stores value under key. A ttl of zero means no expiry.
func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Del removes the given keys. Missing keys are ignored.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

// Exists reports whether key holds a live value.
func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return ok && !e.expired(time.Now()), nil
}
