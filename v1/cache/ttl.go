package cache

import "time"

type entryOptions struct {
	ttl time.Duration
}

// EntryOption configures a single Set or Ingest call.
type EntryOption func(*entryOptions)

// WithTTL overrides the cache default TTL for one entry. A non-positive TTL
// stores an entry that is already expired.
func WithTTL(d time.Duration) EntryOption {
	return func(o *entryOptions) { o.ttl = d }
}

// WithTTLString overrides the TTL with a duration string parsed by
// ParseDuration. An empty string keeps the default TTL.
func WithTTLString(s string) EntryOption {
	return func(o *entryOptions) {
		if s != "" {
			o.ttl = ParseDuration(s)
		}
	}
}

func (c *Expiring[T]) entryOptions(opts []EntryOption) entryOptions {
	eo := entryOptions{ttl: c.expire}
	for _, opt := range opts {
		opt(&eo)
	}
	return eo
}
