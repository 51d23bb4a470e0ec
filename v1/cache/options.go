package cache

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultExpire is the default entry TTL.
	DefaultExpire = 5 * time.Minute
	// DefaultSweepInterval is the default period between two background sweeps.
	DefaultSweepInterval = 2 * time.Minute
	// DefaultName identifies a cache in logs, spans and metric labels.
	DefaultName = "default"
)

type options struct {
	name      string
	expire    time.Duration
	interval  time.Duration
	manual    bool
	clock     clock.Clock
	logger    *slog.Logger
	codec     Codec
	registry  prometheus.Registerer
	tracing   bool
	notifiers []Notifier
}

func defaultOptions() options {
	return options{
		name:     DefaultName,
		expire:   DefaultExpire,
		interval: DefaultSweepInterval,
		clock:    clock.New(),
		logger:   slog.Default(),
		codec:    ByteCodec{},
	}
}

// Option configures an Expiring cache.
type Option func(*options)

// WithDefaultTTL sets the TTL given to entries stored without an override.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) { o.expire = d }
}

// WithSweepInterval sets the period of the background sweep.
// A zero or negative duration disables the sweeper; lazy expiration still works.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithManualStart keeps New from starting the sweeper; call Start explicitly.
func WithManualStart() Option {
	return func(o *options) { o.manual = true }
}

// WithName names the cache in logs, spans and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithClock sets the clock used for timestamps and the sweep ticker.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCodec sets the codec used to decode ingested bytes into values.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithMetrics enables Prometheus metrics collection using the provided registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithTracing enables OpenTelemetry tracing for cache operations.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithNotifier adds a sink that receives every removal.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}
