package metrics

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	snapshot := tracker.Snapshot()
	if snapshot.GetCount != 0 {
		t.Errorf("initial GetCount = %d, want 0", snapshot.GetCount)
	}
	if len(snapshot.TierHits) != 0 {
		t.Errorf("initial TierHits = %v, want empty", snapshot.TierHits)
	}
}

func TestTrackerHitsPerTier(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordHit(types.TierFast, "a", time.Millisecond)
	tracker.RecordHit(types.TierFast, "b", time.Millisecond)
	tracker.RecordHit(types.TierDurable, "c", time.Millisecond)
	tracker.RecordMiss("d", time.Millisecond)

	snapshot := tracker.Snapshot()
	if got := snapshot.TierHits[types.TierFast]; got != 2 {
		t.Errorf("fast hits = %d, want 2", got)
	}
	if got := snapshot.TierHits[types.TierDurable]; got != 1 {
		t.Errorf("durable hits = %d, want 1", got)
	}
	if snapshot.Misses != 1 {
		t.Errorf("Misses = %d, want 1", snapshot.Misses)
	}
	if snapshot.GetCount != 4 {
		t.Errorf("GetCount = %d, want 4", snapshot.GetCount)
	}
	if ratio := snapshot.HitRatio(); ratio != 0.75 {
		t.Errorf("HitRatio() = %v, want 0.75", ratio)
	}
}

func TestTrackerSnapshotIsACopy(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordHit(types.TierShared, "k", 0)

	snapshot := tracker.Snapshot()
	snapshot.TierHits[types.TierShared] = 99

	if got := tracker.Snapshot().TierHits[types.TierShared]; got != 1 {
		t.Errorf("tracker hits changed through snapshot: %d", got)
	}
}

func TestTrackerCounters(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordSet([]string{types.TierFast, types.TierRemote}, "k", 128, time.Millisecond)
	tracker.RecordSet([]string{types.TierFast}, "k2", 64, time.Millisecond)
	tracker.RecordDelete("k", time.Millisecond)
	tracker.RecordError(types.TierRemote, "get", errors.New("boom"))
	tracker.RecordPromotion(types.TierDurable, types.TierFast)
	tracker.RecordEviction(types.TierFast)
	tracker.RecordEviction(types.TierFast)
	tracker.RecordCircuitBreakerStateChange(types.TierRemote, "closed", "open")

	s := tracker.Snapshot()
	checks := []struct {
		name      string
		got, want int64
	}{
		{"SetCount", s.SetCount, 2},
		{"BytesWritten", s.BytesWritten, 192},
		{"DeleteCount", s.DeleteCount, 1},
		{"ErrorCount", s.ErrorCount, 1},
		{"Promotions", s.Promotions, 1},
		{"Evictions", s.Evictions, 2},
		{"CircuitTransitions", s.CircuitTransitions, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestTrackerLatencyPercentiles(t *testing.T) {
	tracker := NewTracker()
	for i := 1; i <= 100; i++ {
		tracker.RecordHit(types.TierFast, "k", time.Duration(i)*time.Millisecond)
	}

	s := tracker.Snapshot()
	if s.AvgLatencyMs != 50.5 {
		t.Errorf("AvgLatencyMs = %v, want 50.5", s.AvgLatencyMs)
	}
	if s.P50LatencyMs != 50 {
		t.Errorf("P50LatencyMs = %v, want 50", s.P50LatencyMs)
	}
	if s.P95LatencyMs != 95 {
		t.Errorf("P95LatencyMs = %v, want 95", s.P95LatencyMs)
	}
	if s.P99LatencyMs != 99 {
		t.Errorf("P99LatencyMs = %v, want 99", s.P99LatencyMs)
	}
}

func TestTrackerSubMillisecondLatency(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordHit(types.TierFast, "k", 500*time.Microsecond)

	if got := tracker.Snapshot().AvgLatencyMs; got != 0.5 {
		t.Errorf("AvgLatencyMs = %v, want 0.5", got)
	}
}

func TestTrackerLatencyRingWraps(t *testing.T) {
	tracker := NewTracker()
	for i := 0; i < defaultLatencyBufferSize; i++ {
		tracker.RecordMiss("k", time.Millisecond)
	}
	for i := 0; i < defaultLatencyBufferSize; i++ {
		tracker.RecordMiss("k", 3*time.Millisecond)
	}

	tracker.latencyMu.RLock()
	count := tracker.latencyCount
	tracker.latencyMu.RUnlock()
	if count != defaultLatencyBufferSize {
		t.Errorf("latencyCount = %d, want %d", count, defaultLatencyBufferSize)
	}

	if got := tracker.Snapshot().AvgLatencyMs; got != 3 {
		t.Errorf("AvgLatencyMs = %v, want 3 after the ring wrapped", got)
	}
}

func TestTrackerConcurrency(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(4)
		go func() {
			defer wg.Done()
			tracker.RecordHit(types.TierFast, "key", 10*time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			tracker.RecordMiss("key", 20*time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			tracker.RecordSet([]string{types.TierFast}, "key", 100, 15*time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			tracker.Snapshot()
		}()
	}

	wg.Wait()

	snapshot := tracker.Snapshot()
	if got := snapshot.TierHits[types.TierFast]; got != 100 {
		t.Errorf("fast hits = %d, want 100", got)
	}
	if snapshot.Misses != 100 {
		t.Errorf("Misses = %d, want 100", snapshot.Misses)
	}
	if snapshot.SetCount != 100 {
		t.Errorf("SetCount = %d, want 100", snapshot.SetCount)
	}
}

func TestLoggingPublisher(t *testing.T) {
	t.Run("creates with default logger", func(t *testing.T) {
		if NewLoggingPublisher(nil) == nil {
			t.Fatal("NewLoggingPublisher(nil) returned nil")
		}
	})

	t.Run("publishes health metrics per tier", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		publisher := NewLoggingPublisher(logger)

		publisher.PublishHealthMetrics(&types.PublisherHealthMetrics{
			TotalEntries: 10,
			HitRatio:     0.9,
			Tiers: []types.TierHealthSample{
				{Name: types.TierFast, Available: true, CircuitState: "closed", Entries: 7},
				{Name: types.TierRemote, Available: false, CircuitState: "open", Entries: 3},
			},
		})

		output := buf.String()
		if !strings.Contains(output, "health_metrics") {
			t.Errorf("summary line missing: %s", output)
		}
		if strings.Count(output, "tier_health") != 2 {
			t.Errorf("want one tier_health line per tier: %s", output)
		}
		if !strings.Contains(output, "circuit_state=open") {
			t.Errorf("circuit state missing: %s", output)
		}
	})

	t.Run("nil health metrics is ignored", func(t *testing.T) {
		var buf bytes.Buffer
		publisher := NewLoggingPublisher(slog.New(slog.NewTextHandler(&buf, nil)))
		publisher.PublishHealthMetrics(nil)
		if buf.Len() != 0 {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("merging tags keeps base tags intact", func(t *testing.T) {
		publisher := NewLoggingPublisher(nil, "env:test", "svc:cache")
		a := publisher.mergeTags([]string{"tier:fast"})
		b := publisher.mergeTags([]string{"tier:remote"})
		if a[2] != "tier:fast" || b[2] != "tier:remote" {
			t.Errorf("merged tags aliased each other: %v %v", a, b)
		}
		if len(publisher.baseTags) != 2 {
			t.Errorf("base tags modified: %v", publisher.baseTags)
		}
	})
}

func TestHealthPayload(t *testing.T) {
	detailed := &types.DetailedMetrics{
		Operations: types.MetricsSnapshot{
			TierHits:     map[string]int64{types.TierFast: 3},
			Misses:       1,
			AvgLatencyMs: 2,
			P99LatencyMs: 9,
		},
		Tiers: []types.TierMetrics{
			{Name: types.TierFast, Available: true, CircuitState: "closed", Stats: types.TierStats{Entries: 4, Hits: 1, Misses: 1, SizeBytes: 40, MaxSizeBytes: 100}},
			{Name: types.TierDurable, Available: true, CircuitState: "closed", Stats: types.TierStats{Entries: 6}},
		},
		Temperature:           types.TemperatureMetrics{Tracked: 5, Hot: 2, Cold: 3},
		PendingReconciliation: 1,
	}

	m := HealthPayload(detailed)
	if m.TotalEntries != 10 {
		t.Errorf("TotalEntries = %d, want 10", m.TotalEntries)
	}
	if m.HitRatio != 0.75 {
		t.Errorf("HitRatio = %v, want 0.75", m.HitRatio)
	}
	if m.HotKeys != 2 || m.ColdKeys != 3 || m.PendingRepairs != 1 {
		t.Errorf("unexpected temperature or repairs: %+v", m)
	}
	if len(m.Tiers) != 2 || m.Tiers[0].HitRatio != 0.5 || m.Tiers[0].MaxSizeBytes != 100 {
		t.Errorf("unexpected tier samples: %+v", m.Tiers)
	}
}

func TestReporter(t *testing.T) {
	t.Run("publishes collected metrics", func(t *testing.T) {
		publisher := &trackingPublisher{}
		reporter := NewReporter(publisher, func() *types.DetailedMetrics {
			return &types.DetailedMetrics{Tiers: []types.TierMetrics{{Name: types.TierFast}}}
		}, nil)

		reporter.Publish()
		reporter.Publish()

		if publisher.publishCount.Load() != 2 {
			t.Errorf("publishCount = %d, want 2", publisher.publishCount.Load())
		}
		if publisher.timingCount.Load() != 2 {
			t.Errorf("collection timings = %d, want 2", publisher.timingCount.Load())
		}
		if reporter.Published() != 2 {
			t.Errorf("Published() = %d, want 2", reporter.Published())
		}
	})

	t.Run("nil collection publishes nothing", func(t *testing.T) {
		publisher := &trackingPublisher{}
		reporter := NewReporter(publisher, func() *types.DetailedMetrics { return nil }, nil)
		reporter.Publish()
		if publisher.publishCount.Load() != 0 {
			t.Errorf("publishCount = %d, want 0", publisher.publishCount.Load())
		}
	})

	t.Run("recovers from collector panic", func(t *testing.T) {
		reporter := NewReporter(&trackingPublisher{}, func() *types.DetailedMetrics {
			panic("collector exploded")
		}, nil)
		reporter.Publish()
		if reporter.Published() != 0 {
			t.Errorf("Published() = %d, want 0", reporter.Published())
		}
	})

	t.Run("nil publisher falls back to no-op", func(t *testing.T) {
		reporter := NewReporter(nil, func() *types.DetailedMetrics { return &types.DetailedMetrics{} }, nil)
		reporter.Publish()
		if reporter.Published() != 1 {
			t.Errorf("Published() = %d, want 1", reporter.Published())
		}
	})
}

func TestMultiRecorder(t *testing.T) {
	a, b := NewTracker(), NewTracker()
	rec := NewMultiRecorder(a, nil, b)

	rec.RecordHit(types.TierShared, "k", time.Millisecond)
	rec.RecordMiss("k", time.Millisecond)
	rec.RecordSet([]string{types.TierFast}, "k", 10, time.Millisecond)
	rec.RecordDelete("k", time.Millisecond)
	rec.RecordError(types.TierRemote, "set", errors.New("x"))
	rec.RecordPromotion(types.TierShared, types.TierFast)
	rec.RecordEviction(types.TierFast)
	rec.RecordCircuitBreakerStateChange(types.TierRemote, "closed", "open")

	for i, tr := range []*Tracker{a, b} {
		s := tr.Snapshot()
		if s.GetCount != 2 || s.SetCount != 1 || s.DeleteCount != 1 || s.ErrorCount != 1 ||
			s.Promotions != 1 || s.Evictions != 1 || s.CircuitTransitions != 1 {
			t.Errorf("recorder %d missed events: %+v", i, s)
		}
	}

	if single := NewMultiRecorder(a); single != types.MetricsRecorder(a) {
		t.Error("a single recorder should be returned unwrapped")
	}
	if _, ok := NewMultiRecorder().(*NoOpTracker); !ok {
		t.Error("no recorders should yield a no-op tracker")
	}
}

func TestPublisherRecorder(t *testing.T) {
	publisher := &trackingPublisher{}
	rec := NewPublisherRecorder(publisher)

	rec.RecordHit(types.TierFast, "k", time.Millisecond)
	rec.RecordMiss("k", time.Millisecond)
	rec.RecordSet([]string{types.TierFast, types.TierRemote}, "k", 10, time.Millisecond)
	rec.RecordCircuitBreakerStateChange(types.TierRemote, "closed", "open")

	if got := publisher.incrs.Load(); got != 5 {
		t.Errorf("incr count = %d, want 5", got)
	}
	if got := publisher.timingCount.Load(); got != 3 {
		t.Errorf("timing count = %d, want 3", got)
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.events) != 1 || publisher.events[0] != "warning" {
		t.Errorf("events = %v, want one warning", publisher.events)
	}
}

func TestNoOpTracker(t *testing.T) {
	tracker := NewNoOpTracker()
	tracker.RecordHit(types.TierFast, "k", time.Millisecond)
	tracker.RecordMiss("k", time.Millisecond)
	tracker.RecordEviction(types.TierFast)

	if s := tracker.Snapshot(); s.GetCount != 0 {
		t.Errorf("NoOpTracker.Snapshot().GetCount = %d, want 0", s.GetCount)
	}
}

func TestNoOpPublisher(t *testing.T) {
	publisher := NewNoOpPublisher()
	publisher.Gauge("g", 1)
	publisher.Incr("i")
	publisher.Count("c", 1)
	publisher.Histogram("h", 1)
	publisher.Timing("t", time.Millisecond)
	publisher.Event("e", "text", "info")
	publisher.PublishHealthMetrics(&types.PublisherHealthMetrics{})

	if err := publisher.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    int
		want float64
	}{
		{0, 1},
		{50, 5},
		{90, 9},
		{100, 10},
	}
	for _, tt := range tests {
		if got := percentile(values, tt.p); got != tt.want {
			t.Errorf("percentile(%d) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %v, want 0", got)
	}
}

func TestTagHelpers(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Tag", Tag("key", "value"), "key:value"},
		{"TierTag", TierTag("durable"), "tier:durable"},
		{"OperationTag", OperationTag("get"), "operation:get"},
		{"StatusTag", StatusTag("hit"), "status:hit"},
		{"CircuitStateTag", CircuitStateTag("open"), "circuit_state:open"},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
		}
	}
}

func TestTimer(t *testing.T) {
	publisher := &trackingPublisher{}

	timer := NewTimer(publisher, "test.operation", TierTag("fast"))
	time.Sleep(10 * time.Millisecond)

	if elapsed := timer.Elapsed(); elapsed < 10*time.Millisecond {
		t.Errorf("Elapsed() = %v, want >= 10ms", elapsed)
	}
	if duration := timer.Stop(); duration < 10*time.Millisecond {
		t.Errorf("Stop() = %v, want >= 10ms", duration)
	}
	if publisher.timingCount.Load() != 1 {
		t.Errorf("timingCount = %d, want 1", publisher.timingCount.Load())
	}
}

type trackingPublisher struct {
	publishCount atomic.Int64
	timingCount  atomic.Int64
	incrs        atomic.Int64

	mu     sync.Mutex
	events []string
}

func (p *trackingPublisher) Gauge(name string, value float64, tags ...string) {}
func (p *trackingPublisher) Incr(name string, tags ...string) {
	p.incrs.Add(1)
}
func (p *trackingPublisher) Count(name string, value int64, tags ...string)       {}
func (p *trackingPublisher) Histogram(name string, value float64, tags ...string) {}
func (p *trackingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.timingCount.Add(1)
}
func (p *trackingPublisher) Event(title, text, alertType string, tags ...string) {
	p.mu.Lock()
	p.events = append(p.events, alertType)
	p.mu.Unlock()
}
func (p *trackingPublisher) PublishHealthMetrics(metrics *types.PublisherHealthMetrics) {
	p.publishCount.Add(1)
}
func (p *trackingPublisher) Close() error { return nil }

var _ types.Publisher = (*trackingPublisher)(nil)
