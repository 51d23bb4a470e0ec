package watchbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every stream and channel used by RedisWatchBus.
const DefaultNamespace = "expirable:events:"

const (
	streamMaxLen = 1000
	readBlock    = time.Second
)

// RedisWatchBus shares removal events between processes through Redis.
//
// Every key has its own stream, read by Watch, and its own pub/sub channel,
// matched by WatchPrefix through PSUBSCRIBE.
type RedisWatchBus struct {
	client    redis.UniversalClient
	namespace string

	mu      sync.Mutex
	cancels map[string]map[chan Event]context.CancelFunc
}

// NewRedisWatchBus creates a RedisWatchBus on client. An empty namespace
// selects DefaultNamespace.
func NewRedisWatchBus(client redis.UniversalClient, namespace string) *RedisWatchBus {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisWatchBus{
		client:    client,
		namespace: namespace,
		cancels:   make(map[string]map[chan Event]context.CancelFunc),
	}
}

// Publish appends ev to the stream of its key and announces it on the key
// channel.
func (b *RedisWatchBus) Publish(ctx context.Context, ev Event) error {
	data, err := encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	name := b.namespace + ev.Key
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: name,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", name, err)
	}
	if err := b.client.Publish(ctx, name, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// Watch follows the stream of key. Only events published after Watch
// returns are delivered.
func (b *RedisWatchBus) Watch(ctx context.Context, key string) (chan Event, error) {
	stream := b.namespace + key
	lastID := "0-0"
	last, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
	}
	if len(last) > 0 {
		lastID = last[0].ID
	}

	ctx, ch := b.register(ctx, key, nil)
	go func() {
		defer close(ch)
		for {
			res, err := b.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Block:   readBlock,
				Count:   16,
			}).Result()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				select {
				case <-time.After(readBlock):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, s := range res {
				for _, msg := range s.Messages {
					lastID = msg.ID
					raw, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					ev, err := decode([]byte(raw))
					if err != nil {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// WatchPrefix receives the events of every key starting with prefix.
func (b *RedisWatchBus) WatchPrefix(ctx context.Context, prefix string) (chan Event, error) {
	ps := b.client.PSubscribe(ctx, b.namespace+prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", prefix, err)
	}

	ctx, ch := b.register(ctx, prefix, func() { _ = ps.Close() })
	go func() {
		defer close(ch)
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			ev, err := decode([]byte(msg.Payload))
			if err != nil {
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (b *RedisWatchBus) register(ctx context.Context, key string, cleanup func()) (context.Context, chan Event) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, watcherBuffer)

	b.mu.Lock()
	m := b.cancels[key]
	if m == nil {
		m = make(map[chan Event]context.CancelFunc)
		b.cancels[key] = m
	}
	m[ch] = func() {
		cancel()
		if cleanup != nil {
			cleanup()
		}
	}
	b.mu.Unlock()
	return ctx, ch
}

// Unwatch stops the reader feeding ch. The channel is closed by the reader
// once it exits.
func (b *RedisWatchBus) Unwatch(ctx context.Context, key string, ch chan Event) error {
	b.mu.Lock()
	m := b.cancels[key]
	cancel, ok := m[ch]
	if ok {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.cancels, key)
		}
	}
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}
