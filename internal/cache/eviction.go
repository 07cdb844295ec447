package cache

import (
	"container/list"
	"fmt"
	"time"
)

// Eviction policy names accepted in fast.evictionPolicy.
const (
	EvictLRU      = "lru"
	EvictFIFO     = "fifo"
	EvictLFU      = "lfu"
	EvictSize     = "size"
	EvictPriority = "priority"
	EvictHybrid   = "hybrid"
)

// evictionPolicy picks victims for the fast tier. Every method is called
// with the tier lock held.
type evictionPolicy interface {
	added(e *fastEntry)
	accessed(e *fastEntry)
	removed(e *fastEntry)
	victim(entries map[string]*fastEntry, now time.Time) *fastEntry
}

func newEvictionPolicy(name string) (evictionPolicy, error) {
	switch name {
	case "", EvictLRU:
		return &listPolicy{order: list.New(), moveOnAccess: true}, nil
	case EvictFIFO:
		return &listPolicy{order: list.New()}, nil
	case EvictLFU:
		return scanPolicy(lfuScore), nil
	case EvictSize:
		return scanPolicy(sizeScore), nil
	case EvictPriority:
		return scanPolicy(priorityScore), nil
	case EvictHybrid:
		return scanPolicy(hybridScore), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", name)
	}
}

// listPolicy keeps entries in a list, most recent at the front. With
// moveOnAccess it is LRU, otherwise FIFO.
type listPolicy struct {
	order        *list.List
	moveOnAccess bool
}

func (p *listPolicy) added(e *fastEntry) {
	e.elem = p.order.PushFront(e)
}

func (p *listPolicy) accessed(e *fastEntry) {
	if p.moveOnAccess && e.elem != nil {
		p.order.MoveToFront(e.elem)
	}
}

func (p *listPolicy) removed(e *fastEntry) {
	if e.elem != nil {
		p.order.Remove(e.elem)
		e.elem = nil
	}
}

func (p *listPolicy) victim(map[string]*fastEntry, time.Time) *fastEntry {
	back := p.order.Back()
	if back == nil {
		return nil
	}
	return back.Value.(*fastEntry)
}

// scanPolicy evicts the entry with the highest score. Ties go to the least
// recently accessed entry.
type scanPolicy func(e *fastEntry, now time.Time) float64

func (scanPolicy) added(*fastEntry)    {}
func (scanPolicy) accessed(*fastEntry) {}
func (scanPolicy) removed(*fastEntry)  {}

func (s scanPolicy) victim(entries map[string]*fastEntry, now time.Time) *fastEntry {
	var (
		best      *fastEntry
		bestScore float64
	)
	for _, e := range entries {
		score := s(e, now)
		if best == nil || score > bestScore ||
			(score == bestScore && e.lastAccess.Before(best.lastAccess)) {
			best, bestScore = e, score
		}
	}
	return best
}

func lfuScore(e *fastEntry, _ time.Time) float64 {
	return -float64(e.accessCount)
}

func sizeScore(e *fastEntry, _ time.Time) float64 {
	return float64(e.size)
}

func priorityScore(e *fastEntry, _ time.Time) float64 {
	return -e.entry.Priority.Weight()
}

func hybridScore(e *fastEntry, now time.Time) float64 {
	idle := now.Sub(e.lastAccess).Seconds()
	if idle < 0 {
		idle = 0
	}
	return idle / (float64(e.accessCount+1) * e.entry.Priority.Weight())
}
