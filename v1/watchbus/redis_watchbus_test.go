package watchbus

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisBus(t *testing.T) (*RedisWatchBus, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWatchBus(client, ""), client
}

func TestRedisWatchBus(t *testing.T) {
	bus, client := newRedisBus(t)
	ctx := context.Background()

	if err := bus.Publish(ctx, Event{Key: "foo1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	chKey, err := bus.Watch(ctx, "foo1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	chPrefix, err := bus.WatchPrefix(ctx, "foo")
	if err != nil {
		t.Fatalf("watch prefix: %v", err)
	}

	if err := bus.Publish(ctx, Event{Cache: "c", Key: "foo1", Expired: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := expectEvent(t, chKey, "foo1", true)
	if ev.Cache != "c" {
		t.Fatalf("unexpected cache %q", ev.Cache)
	}
	expectEvent(t, chPrefix, "foo1", true)

	if err := bus.Publish(ctx, Event{Key: "foo2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	expectEvent(t, chPrefix, "foo2", false)

	n, err := client.XLen(ctx, DefaultNamespace+"foo1").Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stream entries, got %d", n)
	}

	if err := bus.Unwatch(ctx, "foo1", chKey); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	if err := bus.Unwatch(ctx, "foo", chPrefix); err != nil {
		t.Fatalf("unwatch prefix: %v", err)
	}
	for _, ch := range []chan Event{chKey, chPrefix} {
		select {
		case _, ok := <-ch:
			for ok {
				_, ok = <-ch
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for watcher to close")
		}
	}
}

func TestRedisWatchBusNamespace(t *testing.T) {
	_, client := newRedisBus(t)
	bus := NewRedisWatchBus(client, "tenant:")
	ctx := context.Background()

	if err := bus.Publish(ctx, Event{Key: "foo"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n, _ := client.XLen(ctx, "tenant:foo").Result(); n != 1 {
		t.Fatalf("expected event under namespace, got %d", n)
	}
}

func TestRedisWatchBusUnwatchAfterReadError(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	bus := NewRedisWatchBus(client, "")
	ctx := context.Background()

	ch, err := bus.Watch(ctx, "foo")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	mr.Close()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if err := bus.Unwatch(ctx, "foo", ch); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(readBlock / 2):
		t.Fatal("timeout waiting for watcher to close after a read error")
	}
	if elapsed := time.Since(start); elapsed >= readBlock/2 {
		t.Fatalf("unwatch took %v", elapsed)
	}
}
