package cache

import (
	"context"
	"sync"
)

// Removal describes one key leaving the cache. Expired is true when the entry
// ran out of TTL and false when it was removed explicitly.
type Removal struct {
	Key     string `json:"key"`
	Expired bool   `json:"expired"`
}

// Notifier receives every removal of a cache. Errors are logged by the cache
// and never reach the caller of the operation that removed the key.
type Notifier interface {
	Notify(ctx context.Context, r Removal) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r Removal) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, r Removal) error { return f(ctx, r) }

// Subscribe registers fn to be called whenever key is removed. The returned
// func unregisters it and may be called more than once.
//
// Destroy clears the cache without notifying subscribers.
func (c *Expiring[T]) Subscribe(key string, fn func(Removal)) (unsubscribe func()) {
	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	m := c.subs[key]
	if m == nil {
		m = make(map[uint64]func(Removal))
		c.subs[key] = m
	}
	m[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if m := c.subs[key]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(c.subs, key)
				}
			}
		})
	}
}

// dispatch delivers removals to subscribers and notifiers. It must be called
// without c.mu held.
func (c *Expiring[T]) dispatch(ctx context.Context, removed ...Removal) {
	for _, r := range removed {
		if r.Expired {
			c.evictions.Add(1)
		} else {
			c.removals.Add(1)
		}
		if c.metrics != nil {
			c.metrics.Removed(r.Expired)
		}

		c.subMu.RLock()
		fns := make([]func(Removal), 0, len(c.subs[r.Key]))
		for _, fn := range c.subs[r.Key] {
			fns = append(fns, fn)
		}
		c.subMu.RUnlock()
		for _, fn := range fns {
			fn(r)
		}

		for _, n := range c.notifiers {
			if err := n.Notify(ctx, r); err != nil {
				c.logger.Warn("expirable: removal notification failed", "cache", c.name, "key", r.Key, "expired", r.Expired, "error", err)
			}
		}
	}
}
