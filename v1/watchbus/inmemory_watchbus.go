package watchbus

import (
	"context"
	"strings"
	"sync"
)

// watcherBuffer is the channel capacity given to every watcher. Events for a
// watcher whose buffer is full are dropped.
const watcherBuffer = 16

// watcher is one subscribed channel. done is closed together with ch so the
// goroutine tied to the watch context exits on Unwatch.
type watcher struct {
	ch   chan Event
	done chan struct{}
}

// InMemoryWatchBus is an in-process implementation of WatchBus.
type InMemoryWatchBus struct {
	mu       sync.RWMutex
	subs     map[string][]watcher
	prefixes map[string][]watcher
}

// NewInMemory creates a new InMemoryWatchBus.
func NewInMemory() *InMemoryWatchBus {
	return &InMemoryWatchBus{
		subs:     make(map[string][]watcher),
		prefixes: make(map[string][]watcher),
	}
}

// Publish sends ev to the watchers of its key and of every matching prefix.
// It never blocks on a slow watcher.
func (b *InMemoryWatchBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, w := range b.subs[ev.Key] {
		deliver(w.ch, ev)
	}
	for prefix, ws := range b.prefixes {
		if !strings.HasPrefix(ev.Key, prefix) {
			continue
		}
		for _, w := range ws {
			deliver(w.ch, ev)
		}
	}
	return nil
}

func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}

// Watch subscribes to key and returns a channel receiving its events.
func (b *InMemoryWatchBus) Watch(ctx context.Context, key string) (chan Event, error) {
	return b.watch(ctx, b.subs, key)
}

// WatchPrefix subscribes to every key starting with prefix.
func (b *InMemoryWatchBus) WatchPrefix(ctx context.Context, prefix string) (chan Event, error) {
	return b.watch(ctx, b.prefixes, prefix)
}

func (b *InMemoryWatchBus) watch(ctx context.Context, set map[string][]watcher, key string) (chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := watcher{ch: make(chan Event, watcherBuffer), done: make(chan struct{})}
	b.mu.Lock()
	set[key] = append(set[key], w)
	b.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			_ = b.Unwatch(context.Background(), key, w.ch)
		case <-w.done:
		}
	}()
	return w.ch, nil
}

// Unwatch removes ch from the watchers of key, exact or prefix, and closes
// it. Unknown channels are ignored.
func (b *InMemoryWatchBus) Unwatch(ctx context.Context, key string, ch chan Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !remove(b.subs, key, ch) {
		remove(b.prefixes, key, ch)
	}
	return nil
}

func remove(set map[string][]watcher, key string, ch chan Event) bool {
	subs := set[key]
	for i, w := range subs {
		if w.ch != ch {
			continue
		}
		subs[i] = subs[len(subs)-1]
		subs = subs[:len(subs)-1]
		if len(subs) == 0 {
			delete(set, key)
		} else {
			set[key] = subs
		}
		close(w.ch)
		close(w.done)
		return true
	}
	return false
}

// watchers returns how many channels follow key, exact and prefix combined.
func (b *InMemoryWatchBus) watchers(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key]) + len(b.prefixes[key])
}
