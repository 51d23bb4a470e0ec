package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-expirable/v1/cache"
	"github.com/mirkobrombin/go-expirable/v1/metrics"
	"github.com/mirkobrombin/go-expirable/v1/watchbus"
)

var (
	configPath = flag.String("config", "", "YAML cache configuration file")
	addr       = flag.String("addr", ":8080", "HTTP listen address")
	ingest     = flag.String("ingest", "", "Comma-separated files to load at startup, keyed by base name")
	redisAddr  = flag.String("redis", "", "Redis address for the watch bus (in-memory when empty)")
	verbose    = flag.Bool("v", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("expirable: exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg cache.Config
	if *configPath != "" {
		var err error
		if cfg, err = cache.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	name := cfg.Name
	if name == "" {
		name = cache.DefaultName
	}

	var bus watchbus.WatchBus = watchbus.NewInMemory()
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		bus = watchbus.NewRedisWatchBus(client, "")
		logger.Info("expirable: publishing removals to redis", "addr", *redisAddr)
	}

	reg := metrics.NewRegistry()
	c := cache.NewFromConfig[[]byte](cfg,
		cache.WithLogger(logger),
		cache.WithMetrics(reg),
		cache.WithNotifier(watchbus.Notifier(bus, name)),
	)
	defer c.Destroy()

	if *ingest != "" {
		if err := ingestFiles(ctx, c, strings.Split(*ingest, ",")); err != nil {
			return err
		}
		logger.Info("expirable: startup ingest done", "entries", c.Count())
	}

	srv := &http.Server{Addr: *addr, Handler: newServer(c, bus, reg, logger).routes()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("expirable: listening", "addr", *addr, "cache", name)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ingestFiles streams every path into c concurrently, keyed by its base name.
func ingestFiles(ctx context.Context, c *cache.Expiring[[]byte], paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return c.IngestReader(ctx, filepath.Base(path), f)
		})
	}
	return g.Wait()
}
