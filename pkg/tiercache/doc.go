// Package tiercache is a hierarchical cache that keeps each value in the
// cheapest tier that can serve it well.
//
// Up to four tiers are stacked fastest first:
//
//   - fast: bounded in-process memory with LRU, LFU or priority eviction
//   - shared: a segmented bigcache store, or Redis, for hot and high priority keys
//   - durable: one compressed, checksummed file per key plus a JSON index
//   - remote: Redis, shared by every instance
//
// Reads walk the tiers in order and copy a hit into the faster tiers. Writes
// go to the tiers placement selects and succeed as long as one of them took
// the value; tiers that missed a write are repaired by the coherency task.
// Every tier call runs behind a circuit breaker, retry and bulkhead.
//
// # Quick Start
//
//	c, err := tiercache.New(tiercache.WithDurableDirectory("/var/cache/app"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	ctx := context.Background()
//	err = c.Set(ctx, "user:123", user, tiercache.WithTTL(10*time.Minute))
//
//	var cached User
//	err = c.Get(ctx, "user:123", &cached)
//	if tiercache.IsCacheMiss(err) {
//	    // load it
//	}
//
// Cache-aside with GetOrCreate runs the factory once across concurrent
// callers:
//
//	var result User
//	err := c.GetOrCreate(ctx, "user:456", &result, func() (any, error) {
//	    return fetchUserFromDB("456")
//	})
//
// # Placement
//
// Per-write options steer placement:
//
//	c.Set(ctx, "report:q3", report, tiercache.WithPersistent())
//	c.Set(ctx, "session:1", s, tiercache.WithDistributed(false))
//	c.Set(ctx, "quote:AAPL", q, tiercache.WithHighPriority())
//
// Values larger than Placement.DurableSizeThreshold always reach the durable
// tier, compressed above Durable.CompressionThreshold.
//
// # Background Tasks
//
// Analytics publishing, prefetch of hot keys, expiry cleanup, rebalancing by
// temperature and the coherency sweep run on their configured intervals.
// Trigger runs one immediately:
//
//	c.RegisterPrefetch("quote:*", loadQuote)
//	c.Trigger(tiercache.TaskPrefetch)
//
// # Observability
//
// GetDetailedMetrics returns operation counters, per-tier stats and the
// temperature picture. Analytics go to DataDog when Metrics.DataDog is
// enabled, to the structured log otherwise, and to Prometheus when
// Metrics.Prometheus is enabled. Health reports per-tier status:
//
//	h, _ := c.Health(ctx)
//	if h.Status != tiercache.HealthStatusHealthy {
//	    log.Println("cache degraded")
//	}
//
// # Configuration
//
//	c, err := tiercache.NewFromFile("tiercache.yaml")
//
//	cfg := tiercache.Config()
//	cfg.Remote.Enabled = true
//	cfg.Remote.Address = "localhost:6379"
//	c, err := tiercache.NewFromConfig(cfg)
//
// For tests, TestConfig returns a fast-only configuration.
//
// All operations are safe for concurrent use.
package tiercache
