package watchbus

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mirkobrombin/go-expirable/v1/cache"
)

func expectEvent(t *testing.T, ch chan Event, key string, expired bool) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		if ev.Key != key || ev.Expired != expired {
			t.Fatalf("expected %s expired=%v, got %+v", key, expired, ev)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %s", key)
	}
	return Event{}
}

func waitWatchers(t *testing.T, bus *InMemoryWatchBus, key string, n int) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if bus.watchers(key) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d watchers on %s, got %d", n, key, bus.watchers(key))
}

func TestInMemoryWatchBus(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	ch, err := bus.Watch(ctx, "foo")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := bus.Publish(ctx, Event{Key: "foo"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	expectEvent(t, ch, "foo", false)

	if err := bus.Publish(ctx, Event{Key: "bar"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	if err := bus.Unwatch(ctx, "foo", ch); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unwatch")
	}
	if err := bus.Unwatch(ctx, "foo", ch); err != nil {
		t.Fatalf("second unwatch: %v", err)
	}
}

func TestInMemoryWatchBusPrefix(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	chKey, err := bus.Watch(ctx, "foo1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	chPrefix, err := bus.WatchPrefix(ctx, "foo")
	if err != nil {
		t.Fatalf("watch prefix: %v", err)
	}

	if err := bus.Publish(ctx, Event{Key: "foo1", Expired: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	expectEvent(t, chKey, "foo1", true)
	expectEvent(t, chPrefix, "foo1", true)

	if err := bus.Publish(ctx, Event{Key: "foo2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	expectEvent(t, chPrefix, "foo2", false)

	_ = bus.Unwatch(ctx, "foo1", chKey)
	_ = bus.Unwatch(ctx, "foo", chPrefix)
	if bus.watchers("foo1") != 0 || bus.watchers("foo") != 0 {
		t.Fatal("expected no watchers left")
	}
}

func TestInMemoryWatchBusContextCancel(t *testing.T) {
	bus := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Watch(ctx, "foo")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	waitWatchers(t, bus, "foo", 0)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed")
	}
	if _, err := bus.Watch(ctx, "foo"); err == nil {
		t.Fatal("expected watch on canceled context to fail")
	}
}

func TestInMemoryWatchBusUnwatchReleasesGoroutine(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	before := runtime.NumGoroutine()

	const n = 100
	chans := make([]chan Event, 0, n)
	for i := 0; i < n; i++ {
		ch, err := bus.Watch(ctx, "foo")
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		if err := bus.Unwatch(ctx, "foo", ch); err != nil {
			t.Fatalf("unwatch: %v", err)
		}
	}

	for i := 0; i < 100; i++ {
		if runtime.NumGoroutine() < before+n/2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected watch goroutines to exit after unwatch, %d running, %d before", runtime.NumGoroutine(), before)
}

func TestInMemoryWatchBusDropsWhenFull(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	ch, _ := bus.Watch(ctx, "foo")
	for i := 0; i < watcherBuffer*2; i++ {
		if err := bus.Publish(ctx, Event{Key: "foo"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if len(ch) != watcherBuffer {
		t.Fatalf("expected %d buffered events, got %d", watcherBuffer, len(ch))
	}
}

func TestNotifierPublishesCacheRemovals(t *testing.T) {
	bus := NewInMemory()
	ctx := context.Background()
	ch, _ := bus.WatchPrefix(ctx, "session:")

	mock := clock.NewMock()
	c := cache.New[string](
		cache.WithName("sessions"),
		cache.WithClock(mock),
		cache.WithManualStart(),
		cache.WithDefaultTTL(time.Minute),
		cache.WithNotifier(Notifier(bus, "sessions")),
	)
	defer c.Destroy()

	c.Set(ctx, "session:a", "alice")
	c.Set(ctx, "session:b", "bob")
	c.Remove(ctx, "session:a")
	ev := expectEvent(t, ch, "session:a", false)
	if ev.Cache != "sessions" || ev.At.IsZero() {
		t.Fatalf("unexpected event metadata %+v", ev)
	}

	mock.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "session:b"); ok {
		t.Fatal("expected session:b to be expired")
	}
	expectEvent(t, ch, "session:b", true)
}
