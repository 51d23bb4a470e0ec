package cache

import (
	"context"

	"github.com/benbjohnson/clock"
)

// Start launches the background sweeper, replacing a running one. A
// non-positive sweep interval leaves the sweeper off.
func (c *Expiring[T]) Start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.stopLocked()

	if c.interval <= 0 {
		c.logger.Warn("expirable: sweep interval is not positive, sweeper disabled", "cache", c.name, "interval", c.interval)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticker := c.clock.Ticker(c.interval)
	c.cancel = cancel
	c.wg.Add(1)
	go c.sweeper(ctx, ticker)
}

// Stop halts the background sweeper and waits for it to exit.
// Stop is safe to call multiple times, but not from a subscriber or notifier
// running on behalf of the sweeper.
func (c *Expiring[T]) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.stopLocked()
}

func (c *Expiring[T]) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.wg.Wait()
}

// Destroy stops the sweeper and drops every entry. Subscribers and notifiers
// are not told about the dropped keys.
func (c *Expiring[T]) Destroy() {
	c.Stop()
	c.mu.Lock()
	c.entries = make(map[string]*entry[T])
	c.count = 0
	c.gaugeLocked()
	c.mu.Unlock()
}

func (c *Expiring[T]) sweeper(ctx context.Context, ticker *clock.Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep evicts every expired entry and returns how many were removed.
func (c *Expiring[T]) sweep(ctx context.Context) int {
	ctx, done := c.observe(ctx, "sweep", "")
	defer done("")

	c.mu.Lock()
	now := c.clock.Now()
	var removed []Removal
	for key, e := range c.entries {
		if e.expired(now) {
			removed = append(removed, c.removeLocked(key, true)...)
		}
	}
	c.mu.Unlock()

	c.dispatch(ctx, removed...)
	if c.metrics != nil {
		c.metrics.Sweeps.Inc()
	}
	if len(removed) > 0 {
		c.logger.Debug("expirable: sweep evicted entries", "cache", c.name, "evicted", len(removed))
	}
	return len(removed)
}
