package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	experrors "github.com/mirkobrombin/go-expirable/v1/errors"
	"github.com/mirkobrombin/go-expirable/v1/metrics"
)

// Source is an asynchronous producer of bytes. It emits any number of data
// chunks followed by exactly one error or end notification.
type Source interface {
	// OnData registers fn to receive each chunk in order.
	OnData(fn func(chunk []byte))
	// OnError registers fn to receive the failure that terminates the source.
	OnError(fn func(err error))
	// OnEnd registers fn to receive the end of input with an optional final chunk.
	OnEnd(fn func(chunk []byte))
}

// ingestion buffers one in-flight Ingest until its source terminates.
type ingestion[T any] struct {
	id    string
	key   string
	ctx   context.Context
	opts  []EntryOption
	cache *Expiring[T]

	mu     sync.Mutex
	buf    bytes.Buffer
	chunks int
	done   bool
}

// Ingest stores the complete output of src under key and returns src.
//
// The key is reserved at once: it counts towards Count but Get and Has report
// it missing until src terminates. On end the buffered chunks are decoded with
// the cache codec and stored with Set. A source that fails, produces no
// chunk or cannot be decoded leaves the key removed.
//
// Only one ingest per key should be in flight. A second one replaces the
// pending entry, and whichever source terminates last decides the outcome.
func (c *Expiring[T]) Ingest(ctx context.Context, key string, src Source, opts ...EntryOption) Source {
	ctx, done := c.observe(ctx, "ingest", key)
	defer done("")

	in := &ingestion[T]{
		id:    uuid.NewString(),
		key:   key,
		ctx:   context.WithoutCancel(ctx),
		opts:  opts,
		cache: c,
	}
	if c.traceEnabled {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("expirable.ingest", in.id))
	}
	eo := c.entryOptions(opts)
	c.mu.Lock()
	c.storeLocked(key, &entry[T]{ttl: eo.ttl, touched: c.clock.Now(), streaming: true})
	c.mu.Unlock()

	src.OnData(in.data)
	src.OnError(in.fail)
	src.OnEnd(in.end)
	c.logger.Debug("expirable: ingest started", "cache", c.name, "key", key, "ingest", in.id)
	return src
}

// IngestReader ingests everything r yields under key and blocks until r is
// drained. The returned error is the read error, if any; the cache outcome
// follows Ingest.
func (c *Expiring[T]) IngestReader(ctx context.Context, key string, r io.Reader, opts ...EntryOption) error {
	src := NewEmitter()
	c.Ingest(ctx, key, src, opts...)
	return src.Pump(ctx, r)
}

func (in *ingestion[T]) data(chunk []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.done {
		return
	}
	in.buf.Write(chunk)
	in.chunks++
}

func (in *ingestion[T]) fail(err error) {
	in.mu.Lock()
	if in.done {
		in.mu.Unlock()
		return
	}
	in.done = true
	in.buf.Reset()
	in.mu.Unlock()

	in.cache.resolve(in, nil, fmt.Errorf("ingest %s: %w", in.id, err))
}

func (in *ingestion[T]) end(chunk []byte) {
	in.mu.Lock()
	if in.done {
		in.mu.Unlock()
		return
	}
	in.done = true
	if chunk != nil {
		in.buf.Write(chunk)
		in.chunks++
	}
	chunks, data := in.chunks, in.buf.Bytes()
	in.mu.Unlock()

	if chunks == 0 {
		in.cache.resolve(in, nil, experrors.ErrEmptyIngest)
		return
	}
	in.cache.resolve(in, data, nil)
}

// resolve stores the decoded ingest result or removes the key when err is set
// or decoding fails.
func (c *Expiring[T]) resolve(in *ingestion[T], data []byte, err error) {
	if err == nil {
		var v T
		if err = c.codec.Unmarshal(data, &v); err == nil {
			c.Set(in.ctx, in.key, v, in.opts...)
			c.ingested(metrics.IngestStored)
			c.logger.Debug("expirable: ingest stored", "cache", c.name, "key", in.key, "ingest", in.id, "bytes", len(data))
			return
		}
		err = fmt.Errorf("ingest %s: decode: %w", in.id, err)
	}

	c.Remove(in.ctx, in.key)
	if errors.Is(err, experrors.ErrEmptyIngest) {
		c.ingested(metrics.IngestEmpty)
		c.logger.Debug("expirable: ingest produced no data", "cache", c.name, "key", in.key, "ingest", in.id)
		return
	}
	c.ingested(metrics.IngestFailed)
	c.logger.Warn("expirable: ingest failed", "cache", c.name, "key", in.key, "ingest", in.id, "error", err)
}

func (c *Expiring[T]) ingested(result string) {
	if c.metrics != nil {
		c.metrics.Ingests.WithLabelValues(result).Inc()
	}
}
