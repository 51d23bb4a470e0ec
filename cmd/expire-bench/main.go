package main

import (
	"context"
	"flag"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirkobrombin/go-expirable/v1/cache"
)

var (
	concurrency = flag.Int("c", 50, "Number of concurrent clients")
	requests    = flag.Int("n", 100000, "Total number of requests")
	keys        = flag.Int("k", 1000, "Number of distinct keys")
	writeRatio  = flag.Int("w", 10, "Percentage of requests that are writes")
	expire      = flag.String("expire", "1 minute", "Default entry TTL")
	interval    = flag.String("interval", "1s", "Sweep interval")
)

func main() {
	flag.Parse()

	log.Printf("Starting benchmark: %d requests, %d concurrency, %d keys, %d%% writes", *requests, *concurrency, *keys, *writeRatio)

	c := cache.New[string](
		cache.WithDefaultTTL(cache.ParseDuration(*expire)),
		cache.WithSweepInterval(cache.ParseDuration(*interval)),
	)
	defer c.Destroy()

	ctx := context.Background()
	for i := 0; i < *keys; i++ {
		c.Set(ctx, strconv.Itoa(i), "val")
	}

	var wg sync.WaitGroup
	var ops, misses int64
	reqsPerWorker := *requests / *concurrency

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < reqsPerWorker; j++ {
				key := strconv.Itoa((worker*reqsPerWorker + j) % *keys)
				if j%100 < *writeRatio {
					c.Set(ctx, key, "val")
				} else if _, ok := c.Get(ctx, key); !ok {
					atomic.AddInt64(&misses, 1)
				}
				atomic.AddInt64(&ops, 1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	throughput := float64(ops) / elapsed.Seconds()
	avgLatency := elapsed.Seconds() / float64(ops) * 1e9 // ns

	stats := c.Metrics()
	log.Printf("Finished in %v", elapsed)
	log.Printf("Throughput: %.2f req/s", throughput)
	log.Printf("Avg Latency: %.2f ns", avgLatency)
	log.Printf("Hits: %d Misses: %d Evictions: %d Size: %d", stats.Hits, stats.Misses, stats.Evictions, stats.Size)
	if misses > 0 {
		log.Printf("Expired reads: %d", misses)
	}
}
