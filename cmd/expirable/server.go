package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirkobrombin/go-expirable/v1/cache"
	"github.com/mirkobrombin/go-expirable/v1/watchbus"
)

type server struct {
	cache  *cache.Expiring[[]byte]
	bus    watchbus.WatchBus
	reg    *prometheus.Registry
	logger *slog.Logger
}

type entryInfo struct {
	Key string `json:"key"`
	TTL string `json:"ttl"`
	Len int    `json:"len"`
}

func newServer(c *cache.Expiring[[]byte], bus watchbus.WatchBus, reg *prometheus.Registry, logger *slog.Logger) *server {
	return &server{cache: c, bus: bus, reg: reg, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /entries", s.list)
	mux.HandleFunc("GET /entries/{key}", s.get)
	mux.HandleFunc("HEAD /entries/{key}", s.head)
	mux.HandleFunc("PUT /entries/{key}", s.put)
	mux.HandleFunc("DELETE /entries/{key}", s.remove)
	mux.HandleFunc("GET /stats", s.stats)
	mux.Handle("GET /events", watchbus.SSEHandler(s.bus))
	mux.Handle("GET /ws", watchbus.WebSocketHandler(s.bus))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return mux
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	entries := []entryInfo{}
	s.cache.ForEach(r.Context(), func(key string, value []byte, ttl time.Duration) {
		entries = append(entries, entryInfo{Key: key, TTL: ttl.String(), Len: len(value)})
	})
	s.writeJSON(w, entries)
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	get := s.cache.Get
	if r.URL.Query().Has("peek") {
		get = s.cache.Peek
	}
	v, ok := get(r.Context(), r.PathValue("key"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(v)
}

func (s *server) head(w http.ResponseWriter, r *http.Request) {
	if !s.cache.Has(r.PathValue("key")) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// put streams the request body into the cache. The optional ttl query
// parameter overrides the default TTL, e.g. ?ttl=10%20minutes.
func (s *server) put(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.cache.IngestReader(r.Context(), key, r.Body, cache.WithTTLString(r.URL.Query().Get("ttl"))); err != nil {
		s.logger.Warn("expirable: upload failed", "key", key, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.cache.Has(key) {
		http.Error(w, "nothing stored", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) remove(w http.ResponseWriter, r *http.Request) {
	s.cache.Remove(r.Context(), r.PathValue("key"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.cache.Metrics())
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
