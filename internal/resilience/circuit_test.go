package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

// fakeClock lets tests move the breaker's notion of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg config.CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("durable", cfg)
	cb.now = clock.Now
	return cb, clock
}

var errDisk = types.NewIOError("set", "k", "durable", errors.New("disk full"))

func TestCircuitBreakerStateString(t *testing.T) {
	//nolint:govet // Test table - alignment not critical
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Run("creates with config values", func(t *testing.T) {
		cb := NewCircuitBreaker("remote", config.CircuitBreakerConfig{
			FailureThreshold:    10,
			FailureWindow:       2 * time.Minute,
			SuccessThreshold:    3,
			OpenDuration:        time.Minute,
			HalfOpenMaxRequests: 2,
		})

		if cb.Name() != "remote" {
			t.Errorf("Name() = %s, want remote", cb.Name())
		}
		if cb.failureThreshold != 10 || cb.failureWindow != 2*time.Minute {
			t.Errorf("threshold/window = %d/%v, want 10/2m", cb.failureThreshold, cb.failureWindow)
		}
		if cb.successThreshold != 3 || cb.halfOpenMaxRequests != 2 {
			t.Errorf("success/halfOpen = %d/%d, want 3/2", cb.successThreshold, cb.halfOpenMaxRequests)
		}
		if cb.State() != StateClosed {
			t.Errorf("initial state = %v, want closed", cb.State())
		}
	})

	t.Run("applies defaults for zero values", func(t *testing.T) {
		cb := NewCircuitBreaker("fast", config.CircuitBreakerConfig{})

		if cb.failureThreshold != 5 {
			t.Errorf("failureThreshold = %v, want 5", cb.failureThreshold)
		}
		if cb.failureWindow != time.Minute {
			t.Errorf("failureWindow = %v, want 1m", cb.failureWindow)
		}
		if cb.openDuration != 30*time.Second {
			t.Errorf("openDuration = %v, want 30s", cb.openDuration)
		}
		if cb.successThreshold != 1 || cb.halfOpenMaxRequests != 1 {
			t.Errorf("success/halfOpen = %d/%d, want 1/1", cb.successThreshold, cb.halfOpenMaxRequests)
		}
	})
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 3, OpenDuration: time.Second})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", cb.State())
	}

	var calls int
	_, err := cb.Execute(func() (any, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("underlying call attempted %d times while open", calls)
	}
}

func TestCircuitBreakerFailureWindow(t *testing.T) {
	cb, clock := newTestBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    10 * time.Second,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(11 * time.Second)
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed: older failures fell out of the window", cb.State())
	}
	if got := cb.Stats().FailureCount; got != 1 {
		t.Errorf("FailureCount = %d, want 1", got)
	}

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cfg := config.CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: 30 * time.Second}

	t.Run("stays open until timeout since last failure", func(t *testing.T) {
		cb, clock := newTestBreaker(cfg)
		cb.RecordFailure()

		clock.Advance(29 * time.Second)
		if cb.Allow() {
			t.Fatal("Allow() = true before openDuration elapsed")
		}

		clock.Advance(time.Second)
		if !cb.Allow() {
			t.Fatal("Allow() = false after openDuration elapsed")
		}
		if cb.State() != StateHalfOpen {
			t.Errorf("state = %v, want half-open", cb.State())
		}
		if cb.Allow() {
			t.Error("second probe allowed while first is in flight")
		}
	})

	t.Run("probe success closes", func(t *testing.T) {
		cb, clock := newTestBreaker(cfg)
		cb.RecordFailure()
		clock.Advance(30 * time.Second)

		if _, err := cb.Execute(func() (any, error) { return "ok", nil }); err != nil {
			t.Fatalf("probe error = %v", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("state = %v, want closed", cb.State())
		}
		if cb.Stats().FailureCount != 0 {
			t.Errorf("FailureCount = %d, want 0 after close", cb.Stats().FailureCount)
		}
	})

	t.Run("probe failure reopens and restarts timeout", func(t *testing.T) {
		cb, clock := newTestBreaker(cfg)
		cb.RecordFailure()
		clock.Advance(30 * time.Second)

		_, _ = cb.Execute(func() (any, error) { return nil, errDisk })
		if cb.State() != StateOpen {
			t.Fatalf("state = %v, want open", cb.State())
		}

		clock.Advance(29 * time.Second)
		if cb.Allow() {
			t.Error("Allow() = true before restarted timeout elapsed")
		}
		clock.Advance(time.Second)
		if !cb.Allow() {
			t.Error("Allow() = false after restarted timeout elapsed")
		}
	})

	t.Run("cancelled probe frees the slot", func(t *testing.T) {
		cb, clock := newTestBreaker(cfg)
		cb.RecordFailure()
		clock.Advance(30 * time.Second)

		_, _ = cb.Execute(func() (any, error) { return nil, context.Canceled })
		if cb.State() != StateHalfOpen {
			t.Fatalf("state = %v, want half-open", cb.State())
		}
		if !cb.Allow() {
			t.Error("Allow() = false, want the probe slot back")
		}
	})
}

func TestCircuitBreakerIgnoresNonTierErrors(t *testing.T) {
	cb, _ := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 1})

	nonFailures := []error{
		types.ErrCacheMiss,
		types.ErrIntegrityFailure,
		types.ErrCapacityExceeded,
		types.ErrSerializationFailed,
		fmt.Errorf("wrapped: %w", types.ErrInvalidKey),
	}

	for _, e := range nonFailures {
		_, err := cb.Execute(func() (any, error) { return nil, e })
		if !errors.Is(err, e) {
			t.Errorf("Execute() error = %v, want %v", err, e)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}

	_, _ = cb.Execute(func() (any, error) { return nil, errDisk })
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open after an I/O failure", cb.State())
	}
}

func TestCircuitBreakerOnStateChange(t *testing.T) {
	cb, clock := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: time.Second})

	var mu sync.Mutex
	var transitions []string
	cb.SetOnStateChange(func(from, to State) {
		// Reading state from the callback must not deadlock.
		_ = cb.Stats()
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
	})

	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.Allow()
	cb.RecordSuccess()

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 1})
	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("expected open")
	}

	cb.Reset()
	if !cb.IsClosed() {
		t.Errorf("state = %v, want closed", cb.State())
	}
	if !cb.Stats().LastFailureAt.IsZero() {
		t.Error("LastFailureAt not cleared")
	}
}

func TestCircuitBreakerConcurrency(t *testing.T) {
	cb := NewCircuitBreaker("shared", config.CircuitBreakerConfig{FailureThreshold: 1000})

	var wg sync.WaitGroup
	var executed atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cb.Execute(func() (any, error) {
					executed.Add(1)
					if (i+j)%7 == 0 {
						return nil, errDisk
					}
					return nil, nil
				})
			}
		}(i)
	}
	wg.Wait()

	if executed.Load() != 5000 {
		t.Errorf("executed = %d, want 5000", executed.Load())
	}
}

func TestDisabledCircuitBreaker(t *testing.T) {
	cb := NewDisabledCircuitBreaker("remote")

	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	if !cb.Allow() || cb.IsOpen() || cb.State() != StateClosed {
		t.Error("disabled breaker must always allow")
	}

	_, err := cb.Execute(func() (any, error) { return nil, errDisk })
	if !errors.Is(err, errDisk) {
		t.Errorf("Execute() error = %v, want passthrough", err)
	}
	if cb.Name() != "remote" {
		t.Errorf("Name() = %s, want remote", cb.Name())
	}
}
