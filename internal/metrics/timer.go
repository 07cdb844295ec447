package metrics

import (
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// Timer measures one operation and reports it as a timing metric.
type Timer struct {
	publisher types.Publisher
	name      string
	tags      []string
	start     time.Time
}

// NewTimer starts a timer that records to publisher when stopped.
func NewTimer(publisher types.Publisher, name string, tags ...string) *Timer {
	return &Timer{
		publisher: publisher,
		name:      name,
		tags:      tags,
		start:     time.Now(),
	}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	t.publisher.Timing(t.name, duration, t.tags...)
	return duration
}

// Elapsed returns the time since start without recording.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
