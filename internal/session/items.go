// Package session
// Author: momentics <momentics@gmail.com>
//
// Thread-safe per-session item bag with optional expiration.

package session

import (
	"sync"
	"time"

	"github.com/momentics/hioload-socket/api"
)

type entry struct {
	val    any
	expiry time.Time
}

// Items implements api.ItemBag.
type Items struct {
	mu    sync.RWMutex
	store map[string]entry
}

// Ensure compliance with api.ItemBag interface.
var _ api.ItemBag = (*Items)(nil)

// NewItems creates an empty item bag.
func NewItems() *Items {
	return &Items{store: make(map[string]entry)}
}

// Set stores a value without expiration.
func (c *Items) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{val: value}
}

// SetWithTTL stores a value that disappears after ttl.
func (c *Items) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{val: value, expiry: time.Now().Add(ttl)}
}

// Get retrieves a value and its existence.
func (c *Items) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || (!e.expiry.IsZero() && time.Now().After(e.expiry)) {
		return nil, false
	}
	return e.val, true
}

// Delete removes a key.
func (c *Items) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Keys returns all keys that have not expired.
func (c *Items) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	keys := make([]string, 0, len(c.store))
	for k, e := range c.store {
		if e.expiry.IsZero() || now.Before(e.expiry) {
			keys = append(keys, k)
		}
	}
	return keys
}
