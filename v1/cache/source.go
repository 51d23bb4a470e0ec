package cache

import (
	"context"
	"errors"
	"io"
	"sync"

	experrors "github.com/mirkobrombin/go-expirable/v1/errors"
)

// DefaultChunkSize is the read size used by Emitter.Pump.
const DefaultChunkSize = 32 * 1024

// Emitter is a Source fed by its owner through Push, Fail and End.
//
// It is safe for concurrent use. Observers run synchronously, in registration
// order, while the emitter is locked; they must not call back into it.
type Emitter struct {
	mu      sync.Mutex
	onData  []func([]byte)
	onError []func(error)
	onEnd   []func([]byte)
	closed  bool
}

// NewEmitter returns an open Emitter with no observers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// OnData implements Source.
func (e *Emitter) OnData(fn func(chunk []byte)) {
	e.mu.Lock()
	e.onData = append(e.onData, fn)
	e.mu.Unlock()
}

// OnError implements Source.
func (e *Emitter) OnError(fn func(err error)) {
	e.mu.Lock()
	e.onError = append(e.onError, fn)
	e.mu.Unlock()
}

// OnEnd implements Source.
func (e *Emitter) OnEnd(fn func(chunk []byte)) {
	e.mu.Lock()
	e.onEnd = append(e.onEnd, fn)
	e.mu.Unlock()
}

// Push delivers chunk to the data observers.
func (e *Emitter) Push(chunk []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return experrors.ErrSourceClosed
	}
	for _, fn := range e.onData {
		fn(chunk)
	}
	return nil
}

// Fail terminates the emitter with err.
func (e *Emitter) Fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return experrors.ErrSourceClosed
	}
	e.closed = true
	for _, fn := range e.onError {
		fn(err)
	}
	return nil
}

// End terminates the emitter successfully. chunk, when non-nil, is delivered
// to the end observers as the last piece of data.
func (e *Emitter) End(chunk []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return experrors.ErrSourceClosed
	}
	e.closed = true
	for _, fn := range e.onEnd {
		fn(chunk)
	}
	return nil
}

// Pump pushes everything read from r and then ends the emitter. A read error
// or a canceled ctx fails the emitter and is returned.
func (e *Emitter) Pump(ctx context.Context, r io.Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			_ = e.Fail(err)
			return err
		}
		buf := make([]byte, DefaultChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			if perr := e.Push(buf[:n]); perr != nil {
				return perr
			}
		}
		if errors.Is(err, io.EOF) {
			return e.End(nil)
		}
		if err != nil {
			_ = e.Fail(err)
			return err
		}
	}
}

var _ Source = (*Emitter)(nil)
