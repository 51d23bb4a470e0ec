package cache

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestSweeperEvictsUnreadEntries(t *testing.T) {
	mock := clock.NewMock()
	c := New[string](WithClock(mock), WithDefaultTTL(30*time.Second), WithSweepInterval(time.Minute))
	defer c.Destroy()
	ctx := context.Background()
	removals := recordRemovals(t, c, "foo")

	c.Set(ctx, "foo", "bar")
	c.Set(ctx, "keep", "bar", WithTTL(time.Hour))
	mock.Add(time.Minute)

	expectRemoval(t, removals, Removal{Key: "foo", Expired: true})
	if c.Count() != 1 {
		t.Fatalf("expected only keep to remain, count=%d", c.Count())
	}
}

func TestSweeperUsesSweepInterval(t *testing.T) {
	mock := clock.NewMock()
	c := New[string](WithClock(mock), WithDefaultTTL(time.Second), WithSweepInterval(time.Hour))
	defer c.Destroy()
	ctx := context.Background()

	c.Set(ctx, "foo", "bar")
	mock.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	if c.Count() != 1 {
		t.Fatalf("expected no sweep before the interval, count=%d", c.Count())
	}
}

func TestSweepSkipsPendingIngest(t *testing.T) {
	c, mock := newTestCache[[]byte](t, WithDefaultTTL(time.Millisecond))
	ctx := context.Background()

	c.Ingest(ctx, "pending", NewEmitter())
	c.Set(ctx, "stale", []byte("x"))
	mock.Add(time.Hour)

	if n := c.sweep(ctx); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if c.Count() != 1 {
		t.Fatalf("expected pending ingest to survive, count=%d", c.Count())
	}
}

func TestStartStop(t *testing.T) {
	c, _ := newTestCache[string](t)
	running := func() bool {
		c.runMu.Lock()
		defer c.runMu.Unlock()
		return c.cancel != nil
	}

	if running() {
		t.Fatal("expected manual cache to start stopped")
	}
	c.Start()
	c.Start()
	if !running() {
		t.Fatal("expected sweeper to run after Start")
	}
	c.Stop()
	c.Stop()
	if running() {
		t.Fatal("expected sweeper to stop")
	}
}

func TestStartWithoutIntervalDisablesSweeper(t *testing.T) {
	c, _ := newTestCache[string](t, WithSweepInterval(0))
	c.Start()
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		t.Fatal("expected sweeper to stay off with a zero interval")
	}
}

func TestDestroyDoesNotNotify(t *testing.T) {
	c, _ := newTestCache[string](t)
	ctx := context.Background()
	removals := recordRemovals(t, c, "foo")

	c.Set(ctx, "foo", "bar")
	c.Destroy()
	expectNoRemoval(t, removals)
	if c.Count() != 0 || c.Has("foo") {
		t.Fatal("expected destroy to clear the cache")
	}

	c.Set(ctx, "foo", "again")
	if v, ok := c.Get(ctx, "foo"); !ok || v != "again" {
		t.Fatal("expected cache to stay usable after destroy")
	}
}
