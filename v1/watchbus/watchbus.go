package watchbus

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mirkobrombin/go-expirable/v1/cache"
)

// Event is a cache removal as seen by bus watchers.
type Event struct {
	Cache   string    `json:"cache"`
	Key     string    `json:"key"`
	Expired bool      `json:"expired"`
	At      time.Time `json:"at"`
}

// WatchBus fans cache removal events out to watchers.
// Watchers can follow a single key or every key sharing a prefix.
type WatchBus interface {
	// Publish delivers ev to the watchers of ev.Key and of its prefixes.
	Publish(ctx context.Context, ev Event) error
	// Watch subscribes to events for key. The returned channel receives
	// events until the context is canceled or Unwatch is called.
	Watch(ctx context.Context, key string) (chan Event, error)
	// WatchPrefix subscribes to events for every key starting with prefix.
	WatchPrefix(ctx context.Context, prefix string) (chan Event, error)
	// Unwatch stops delivering events for key or prefix to ch and closes it.
	Unwatch(ctx context.Context, key string, ch chan Event) error
}

// Notifier returns a cache.Notifier publishing every removal of the cache
// called name on bus.
func Notifier(bus WatchBus, name string) cache.Notifier {
	return cache.NotifierFunc(func(ctx context.Context, r cache.Removal) error {
		return bus.Publish(ctx, Event{Cache: name, Key: r.Key, Expired: r.Expired, At: time.Now()})
	})
}

func encode(ev Event) ([]byte, error) {
	return sonic.Marshal(ev)
}

func decode(data []byte) (Event, error) {
	var ev Event
	err := sonic.Unmarshal(data, &ev)
	return ev, err
}
