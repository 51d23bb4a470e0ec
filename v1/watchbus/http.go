package watchbus

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	experrors "github.com/mirkobrombin/go-expirable/v1/errors"
)

// subscription resolves the "key" or "prefix" query parameter of r into a
// watch on bus.
func subscription(ctx context.Context, bus WatchBus, r *http.Request) (string, chan Event, error) {
	q := r.URL.Query()
	if key := q.Get("key"); key != "" {
		ch, err := bus.Watch(ctx, key)
		return key, ch, err
	}
	if prefix := q.Get("prefix"); prefix != "" {
		ch, err := bus.WatchPrefix(ctx, prefix)
		return prefix, ch, err
	}
	return "", nil, experrors.ErrMissingKey
}

// SSEHandler streams removal events over Server-Sent Events, one JSON
// encoded event per message. The watched key is taken from the "key" query
// parameter, or every key under "prefix".
func SSEHandler(bus WatchBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		key, ch, err := subscription(ctx, bus, r)
		if errors.Is(err, experrors.ErrMissingKey) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer func() {
			cancel()
			_ = bus.Unwatch(context.Background(), key, ch)
		}()
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := encode(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{}

// WebSocketHandler streams removal events over WebSocket as JSON text
// messages. Query parameters are the same as for SSEHandler.
func WebSocketHandler(bus WatchBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") == "" && q.Get("prefix") == "" {
			http.Error(w, experrors.ErrMissingKey.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		key, ch, err := subscription(ctx, bus, r)
		if err != nil {
			return
		}
		defer func() {
			cancel()
			_ = bus.Unwatch(context.Background(), key, ch)
		}()

		// The client never sends; a failed read means it went away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := encode(ev)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
