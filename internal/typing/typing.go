// Package typing tracks who is typing in which conversation. Entries
// expire on their own so a client that crashes mid-keystroke does not
// leave a stuck indicator.
package typing

import (
	"context"
	"sync"
	"time"
)

// ExpiryFunc is called for every entry removed by the sweeper, outside
// the cache lock. Explicit stops do not trigger it; the caller already
// knows about those.
type ExpiryFunc func(userID, conversationID string)

type key struct {
	userID         string
	conversationID string
}

type Cache struct {
	mu       sync.Mutex
	entries  map[key]time.Time
	ttl      time.Duration
	sweep    time.Duration
	onExpire ExpiryFunc
	now      func() time.Time
}

func New(ttl, sweep time.Duration, onExpire ExpiryFunc) *Cache {
	return &Cache{
		entries:  make(map[key]time.Time),
		ttl:      ttl,
		sweep:    sweep,
		onExpire: onExpire,
		now:      time.Now,
	}
}

// Start records that a user is typing in a conversation, refreshing the
// expiry if an entry already exists. Returns true when this is a fresh
// start rather than a refresh.
func (c *Cache) Start(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{userID, conversationID}
	_, existed := c.entries[k]
	c.entries[k] = c.now().Add(c.ttl)
	return !existed
}

// Stop removes the entry. Returns true when there was one to remove.
func (c *Cache) Stop(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{userID, conversationID}
	_, existed := c.entries[k]
	delete(c.entries, k)
	return existed
}

// StopAll removes every entry of a user and returns the conversation ids
// they were typing in. Used when the user's last connection drops.
func (c *Cache) StopAll(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var conversationIDs []string
	for k := range c.entries {
		if k.userID == userID {
			conversationIDs = append(conversationIDs, k.conversationID)
			delete(c.entries, k)
		}
	}
	return conversationIDs
}

// Active returns the ids of users with a live entry in a conversation.
func (c *Cache) Active(conversationID string) []string {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var userIDs []string
	for k, expiry := range c.entries {
		if k.conversationID == conversationID && expiry.After(now) {
			userIDs = append(userIDs, k.userID)
		}
	}
	return userIDs
}

// TypingIn returns the ids of conversations a user has a live entry in.
func (c *Cache) TypingIn(userID string) []string {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var conversationIDs []string
	for k, expiry := range c.entries {
		if k.userID == userID && expiry.After(now) {
			conversationIDs = append(conversationIDs, k.conversationID)
		}
	}
	return conversationIDs
}

// Sweep removes expired entries and fires the expiry callback for each.
// Callbacks run after the lock is released.
func (c *Cache) Sweep() {
	now := c.now()
	c.mu.Lock()
	var expired []key
	for k, expiry := range c.entries {
		if !expiry.After(now) {
			expired = append(expired, k)
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.onExpire == nil {
		return
	}
	for _, k := range expired {
		c.onExpire(k.userID, k.conversationID)
	}
}

// Run sweeps periodically until the context is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
