// Package temperature tracks per-key access frequency and recency and labels
// keys hot or cold for tier placement.
package temperature

import (
	"sort"
	"sync"
	"time"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

type Temperature int

const (
	Warm Temperature = iota
	Hot
	Cold
)

func (t Temperature) String() string {
	switch t {
	case Hot:
		return "hot"
	case Cold:
		return "cold"
	default:
		return "warm"
	}
}

// Record is the access history kept for one key.
type Record struct {
	AccessCount  int64
	LastAccessAt time.Time
}

// Classifier labels keys. Hot is checked before cold, so a key is never
// both: hot needs count > hotThreshold and an access within hotWindow, cold
// needs count < coldThreshold or no access within coldWindow.
type Classifier struct {
	mu      sync.RWMutex
	records map[string]*Record

	hotThreshold  int64
	hotWindow     time.Duration
	coldThreshold int64
	coldWindow    time.Duration
	maxTracked    int

	now func() time.Time
}

func New(cfg config.TemperatureConfig) *Classifier {
	c := &Classifier{
		records:       make(map[string]*Record),
		hotThreshold:  int64(cfg.HotAccessThreshold),
		hotWindow:     cfg.HotRecencyWindow,
		coldThreshold: int64(cfg.ColdAccessThreshold),
		coldWindow:    cfg.ColdStalenessWindow,
		maxTracked:    cfg.MaxTrackedKeys,
		now:           time.Now,
	}

	if c.hotWindow <= 0 {
		c.hotWindow = time.Minute
	}
	if c.coldWindow <= 0 {
		c.coldWindow = 5 * time.Minute
	}
	if c.maxTracked <= 0 {
		c.maxTracked = 100000
	}

	return c
}

// RecordAccess bumps the access count of key and refreshes its recency.
func (c *Classifier) RecordAccess(key string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[key]
	if !ok {
		if len(c.records) >= c.maxTracked {
			c.shrinkLocked(now)
		}
		r = &Record{}
		c.records[key] = r
	}
	r.AccessCount++
	r.LastAccessAt = now
}

// Classify returns the current label for key. Untracked keys are cold.
func (c *Classifier) Classify(key string) Temperature {
	now := c.now()

	c.mu.RLock()
	r, ok := c.records[key]
	var rec Record
	if ok {
		rec = *r
	}
	c.mu.RUnlock()

	if !ok {
		return Cold
	}
	return c.classify(rec, now)
}

func (c *Classifier) classify(r Record, now time.Time) Temperature {
	idle := now.Sub(r.LastAccessAt)
	if r.AccessCount > c.hotThreshold && idle < c.hotWindow {
		return Hot
	}
	if r.AccessCount < c.coldThreshold || idle > c.coldWindow {
		return Cold
	}
	return Warm
}

func (c *Classifier) IsHot(key string) bool {
	return c.Classify(key) == Hot
}

func (c *Classifier) IsCold(key string) bool {
	return c.Classify(key) == Cold
}

// Lookup returns a copy of the record for key.
func (c *Classifier) Lookup(key string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.records[key]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Forget drops the history of key, typically after a delete.
func (c *Classifier) Forget(key string) {
	c.mu.Lock()
	delete(c.records, key)
	c.mu.Unlock()
}

// Keys returns tracked keys with the given label.
func (c *Classifier) Keys(t Temperature) []string {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for k, r := range c.records {
		if c.classify(*r, now) == t {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (c *Classifier) HotKeys() []string {
	return c.Keys(Hot)
}

func (c *Classifier) ColdKeys() []string {
	return c.Keys(Cold)
}

// Prune removes records idle for longer than maxIdle and returns how many
// were removed. A pruned key classifies as cold, the same as before.
func (c *Classifier) Prune(maxIdle time.Duration) int {
	if maxIdle < c.coldWindow {
		maxIdle = c.coldWindow
	}
	cutoff := c.now().Add(-maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, r := range c.records {
		if r.LastAccessAt.Before(cutoff) {
			delete(c.records, k)
			removed++
		}
	}
	return removed
}

// shrinkLocked makes room for a new record by dropping stale records, then
// the least recently used tenth if that was not enough. Must hold mu.
func (c *Classifier) shrinkLocked(now time.Time) {
	cutoff := now.Add(-c.coldWindow)
	for k, r := range c.records {
		if r.LastAccessAt.Before(cutoff) {
			delete(c.records, k)
		}
	}
	if len(c.records) < c.maxTracked {
		return
	}

	type aged struct {
		key  string
		last time.Time
	}
	all := make([]aged, 0, len(c.records))
	for k, r := range c.records {
		all = append(all, aged{k, r.LastAccessAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })

	drop := len(all)/10 + 1
	for i := 0; i < drop && i < len(all); i++ {
		delete(c.records, all[i].key)
	}
}

// Stats summarises the current classification.
func (c *Classifier) Stats() types.TemperatureMetrics {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	m := types.TemperatureMetrics{Tracked: len(c.records)}
	for _, r := range c.records {
		switch c.classify(*r, now) {
		case Hot:
			m.Hot++
		case Cold:
			m.Cold++
		}
	}
	return m
}
