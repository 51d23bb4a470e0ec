package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-expirable/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-expirable/v1/cache")

type entry[T any] struct {
	value     T
	touched   time.Time
	ttl       time.Duration
	streaming bool
}

// expired reports whether the entry outlived its TTL at now. Pending ingests
// never expire.
func (e *entry[T]) expired(now time.Time) bool {
	return !e.streaming && now.Sub(e.touched) >= e.ttl
}

// Expiring is an in-memory cache whose entries expire after a sliding TTL.
//
// Expired entries are removed lazily when they are read and by a background
// sweeper that runs every sweep interval. All operations are serialized by a
// single mutex, the sweeper and ingest callbacks included.
type Expiring[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	count   int

	name      string
	expire    time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	codec     Codec
	notifiers []Notifier

	subMu   sync.RWMutex
	subs    map[string]map[uint64]func(Removal)
	nextSub uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	removals  atomic.Uint64

	metrics      *metrics.Collectors
	traceEnabled bool
}

// New returns an empty Expiring cache.
//
// Unless WithManualStart is given, the background sweeper is started before
// New returns. Entries live for five minutes by default and the sweeper runs
// every two minutes.
func New[T any](opts ...Option) *Expiring[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Expiring[T]{
		entries:      make(map[string]*entry[T]),
		name:         o.name,
		expire:       o.expire,
		interval:     o.interval,
		clock:        o.clock,
		logger:       o.logger,
		codec:        o.codec,
		notifiers:    o.notifiers,
		subs:         make(map[string]map[uint64]func(Removal)),
		traceEnabled: o.tracing,
	}
	if o.registry != nil {
		c.metrics = metrics.NewCollectors(o.registry, o.name)
	}
	if !o.manual {
		c.Start()
	}
	return c
}

// NewWithExpire returns a cache whose default TTL is the parsed expire
// string, e.g. NewWithExpire[string]("10 minutes"). An empty string keeps the
// five minute default.
func NewWithExpire[T any](expire string, opts ...Option) *Expiring[T] {
	if expire != "" {
		opts = append([]Option{WithDefaultTTL(ParseDuration(expire))}, opts...)
	}
	return New[T](opts...)
}

// Get returns the value stored for key and refreshes its TTL.
//
// The boolean is false when the key is missing, still being ingested or
// expired. An expired entry is removed as a side effect.
func (c *Expiring[T]) Get(ctx context.Context, key string) (T, bool) {
	return c.get(ctx, "get", key, true)
}

// Peek is Get without the TTL refresh. Expired entries are still removed.
func (c *Expiring[T]) Peek(ctx context.Context, key string) (T, bool) {
	return c.get(ctx, "peek", key, false)
}

func (c *Expiring[T]) get(ctx context.Context, op, key string, touch bool) (T, bool) {
	ctx, done := c.observe(ctx, op, key)
	var zero T

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.streaming {
		c.mu.Unlock()
		c.miss()
		done("miss")
		return zero, false
	}
	now := c.clock.Now()
	if e.expired(now) {
		removed := c.removeLocked(key, true)
		c.mu.Unlock()
		c.dispatch(ctx, removed...)
		c.miss()
		done("expired")
		return zero, false
	}
	if touch {
		e.touched = now
	}
	v := e.value
	c.mu.Unlock()

	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
	done("hit")
	return v, true
}

// Set stores value under key, replacing any previous entry or pending
// ingest, and returns value. The entry uses the cache default TTL unless an
// EntryOption overrides it.
func (c *Expiring[T]) Set(ctx context.Context, key string, value T, opts ...EntryOption) T {
	_, done := c.observe(ctx, "set", key)
	defer done("")

	eo := c.entryOptions(opts)
	c.mu.Lock()
	c.storeLocked(key, &entry[T]{value: value, ttl: eo.ttl, touched: c.clock.Now()})
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Sets.Inc()
	}
	return value
}

// Has reports whether key holds a readable, unexpired value.
// Unlike Get it neither refreshes nor removes the entry.
func (c *Expiring[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key, c.clock.Now()) != nil
}

// Expire gives a live entry a new TTL and restarts its sliding window.
// A non-positive ttl removes the key instead. Missing, pending or expired
// keys are left untouched.
func (c *Expiring[T]) Expire(ctx context.Context, key string, ttl time.Duration) {
	if ttl <= 0 {
		c.Remove(ctx, key)
		return
	}
	_, done := c.observe(ctx, "expire", key)
	defer done("")

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if e := c.liveLocked(key, now); e != nil {
		e.ttl = ttl
		e.touched = now
	}
}

// Remove deletes key and notifies its subscribers with Expired set to false.
// Removing a missing key is a no-op.
func (c *Expiring[T]) Remove(ctx context.Context, key string) {
	c.remove(ctx, "remove", key, false)
}

// Evict deletes key as if it had expired: subscribers receive Expired true.
func (c *Expiring[T]) Evict(ctx context.Context, key string) {
	c.remove(ctx, "evict", key, true)
}

func (c *Expiring[T]) remove(ctx context.Context, op, key string, expired bool) {
	ctx, done := c.observe(ctx, op, key)
	defer done("")

	c.mu.Lock()
	removed := c.removeLocked(key, expired)
	c.mu.Unlock()
	c.dispatch(ctx, removed...)
}

// ForEach calls fn once for every live entry.
//
// The key set is captured up front. Entries found expired during the walk are
// evicted and skipped, as are pending ingests. fn runs without the cache lock
// held and may call back into the cache.
func (c *Expiring[T]) ForEach(ctx context.Context, fn func(key string, value T, ttl time.Duration)) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok || e.streaming {
			c.mu.Unlock()
			continue
		}
		if e.expired(c.clock.Now()) {
			removed := c.removeLocked(key, true)
			c.mu.Unlock()
			c.dispatch(ctx, removed...)
			continue
		}
		value, ttl := e.value, e.ttl
		c.mu.Unlock()
		fn(key, value, ttl)
	}
}

// Count returns the number of stored keys, pending ingests and expired but
// not yet evicted entries included.
func (c *Expiring[T]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Name returns the name given with WithName.
func (c *Expiring[T]) Name() string { return c.name }

func (c *Expiring[T]) liveLocked(key string, now time.Time) *entry[T] {
	e, ok := c.entries[key]
	if !ok || e.streaming || e.expired(now) {
		return nil
	}
	return e
}

func (c *Expiring[T]) storeLocked(key string, e *entry[T]) {
	if _, ok := c.entries[key]; !ok {
		c.count++
	}
	c.entries[key] = e
	c.gaugeLocked()
}

// removeLocked deletes key and returns the notification to dispatch once the
// lock is released, or nil when the key was absent.
func (c *Expiring[T]) removeLocked(key string, expired bool) []Removal {
	if _, ok := c.entries[key]; !ok {
		return nil
	}
	delete(c.entries, key)
	c.count--
	c.gaugeLocked()
	return []Removal{{Key: key, Expired: expired}}
}

func (c *Expiring[T]) gaugeLocked() {
	if c.metrics != nil {
		c.metrics.Entries.Set(float64(c.count))
	}
}

func (c *Expiring[T]) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}
}

// observe starts a span and a latency measurement for op when tracing or
// metrics are enabled. The returned func ends both.
func (c *Expiring[T]) observe(ctx context.Context, op, key string) (context.Context, func(result string)) {
	if !c.traceEnabled && c.metrics == nil {
		return ctx, func(string) {}
	}
	start := time.Now()
	var span trace.Span
	if c.traceEnabled {
		attrs := []attribute.KeyValue{attribute.String("expirable.cache", c.name)}
		if key != "" {
			attrs = append(attrs, attribute.String("expirable.key", key))
		}
		ctx, span = tracer.Start(ctx, "Cache."+op, trace.WithAttributes(attrs...))
	}
	return ctx, func(result string) {
		latency := time.Since(start)
		if span != nil {
			if result != "" {
				span.SetAttributes(attribute.String("expirable.result", result))
			}
			span.SetAttributes(attribute.Int64("expirable.latency_ms", latency.Milliseconds()))
			span.End()
		}
		if c.metrics != nil {
			c.metrics.Latency.WithLabelValues(op).Observe(latency.Seconds())
		}
	}
}

// Stats reports basic metrics about cache usage.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Removals  uint64
	Size      int
}

// Metrics returns current metrics for the cache.
func (c *Expiring[T]) Metrics() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Removals:  c.removals.Load(),
		Size:      c.Count(),
	}
}
