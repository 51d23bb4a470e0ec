// Package cache provides an in-memory key-value cache whose entries expire
// after a sliding TTL.
//
// Expired entries are removed when they are read and by a background sweeper
// goroutine that runs at a configurable interval. Durations may be given as
// time.Duration values or as strings such as "5 minutes", parsed by
// ParseDuration.
//
// Ingest stores the complete output of an asynchronous byte Source under a
// key. While the source is still producing, the key is reserved but reads
// report it missing.
//
// Every removal, except the bulk removal performed by Destroy, is reported to
// per-key subscribers and to the configured Notifier sinks with a Removal
// telling whether the entry expired.
package cache
