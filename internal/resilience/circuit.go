// Package resilience provides the fault tolerance patterns wrapped around
// every cache tier: circuit breaker, retry and bulkhead.
package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards a single tier. Failures are counted inside a sliding
// window; once the count reaches the threshold the breaker opens and rejects
// calls until openDuration has passed since the last recorded failure.
type CircuitBreaker struct {
	name string

	failureThreshold    int
	failureWindow       time.Duration
	successThreshold    int
	openDuration        time.Duration
	halfOpenMaxRequests int

	state atomic.Int32

	mu               sync.Mutex
	failures         []time.Time
	lastFailureAt    time.Time
	consecutiveSuccs int
	halfOpenRequests int

	onStateChange func(from, to State)

	now func() time.Time
}

// stateTransition allows callbacks to be invoked outside the mutex to prevent deadlocks.
type stateTransition struct {
	from     State
	to       State
	callback func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker for the named tier.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:                name,
		failureThreshold:    cfg.FailureThreshold,
		failureWindow:       cfg.FailureWindow,
		successThreshold:    cfg.SuccessThreshold,
		openDuration:        cfg.OpenDuration,
		halfOpenMaxRequests: cfg.HalfOpenMaxRequests,
		now:                 time.Now,
	}

	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 5
	}
	if cb.failureWindow <= 0 {
		cb.failureWindow = time.Minute
	}
	if cb.successThreshold <= 0 {
		cb.successThreshold = 1
	}
	if cb.openDuration <= 0 {
		cb.openDuration = 30 * time.Second
	}
	if cb.halfOpenMaxRequests <= 0 {
		cb.halfOpenMaxRequests = 1
	}

	cb.state.Store(int32(StateClosed))

	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn through the circuit breaker. Only errors that say
// something about the tier's health count as failures; misses and
// per-entry errors count as successful round trips.
func (cb *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	if !cb.Allow() {
		return nil, ErrCircuitOpen
	}

	result, err := fn()

	switch {
	case err == nil:
		cb.RecordSuccess()
	case types.IsTierFailure(err):
		cb.RecordFailure()
	case errors.Is(err, context.Canceled):
		cb.releaseProbe()
	default:
		cb.RecordSuccess()
	}

	return result, err
}

// Allow checks if a request should be allowed through.
func (cb *CircuitBreaker) Allow() bool {
	state := State(cb.state.Load())

	switch state {
	case StateClosed:
		return true

	case StateOpen:
		var transition *stateTransition
		var allowed bool

		cb.mu.Lock()
		switch State(cb.state.Load()) {
		case StateOpen:
			if cb.now().Sub(cb.lastFailureAt) >= cb.openDuration {
				transition = cb.transitionTo(StateHalfOpen)
				cb.halfOpenRequests = 1
				allowed = true
			}
		case StateHalfOpen:
			// another caller moved us to half-open while we waited for mu
			if cb.halfOpenRequests < cb.halfOpenMaxRequests {
				cb.halfOpenRequests++
				allowed = true
			}
		default:
			allowed = true
		}
		cb.mu.Unlock()

		transition.invoke()
		return allowed

	case StateHalfOpen:
		cb.mu.Lock()
		allowed := cb.halfOpenRequests < cb.halfOpenMaxRequests
		if allowed {
			cb.halfOpenRequests++
		}
		cb.mu.Unlock()
		return allowed

	default:
		return true
	}
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	var transition *stateTransition

	cb.mu.Lock()
	switch State(cb.state.Load()) {
	case StateClosed:
		cb.pruneFailures()

	case StateHalfOpen:
		cb.consecutiveSuccs++
		if cb.consecutiveSuccs >= cb.successThreshold {
			transition = cb.transitionTo(StateClosed)
		} else if cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
	}
	cb.mu.Unlock()

	transition.invoke()
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() {
	var transition *stateTransition

	cb.mu.Lock()
	now := cb.now()
	cb.lastFailureAt = now

	switch State(cb.state.Load()) {
	case StateClosed:
		cb.failures = append(cb.failures, now)
		cb.pruneFailures()
		if len(cb.failures) >= cb.failureThreshold {
			transition = cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		transition = cb.transitionTo(StateOpen)
	}
	cb.mu.Unlock()

	transition.invoke()
}

// releaseProbe gives back a half-open slot for a call that ended without a
// verdict, such as a cancelled context.
func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	if State(cb.state.Load()) == StateHalfOpen && cb.halfOpenRequests > 0 {
		cb.halfOpenRequests--
	}
	cb.mu.Unlock()
}

// pruneFailures drops failures older than the window. Must hold mu.
func (cb *CircuitBreaker) pruneFailures() {
	cutoff := cb.now().Add(-cb.failureWindow)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
}

// transitionTo changes the circuit breaker state. Must be called while
// holding the mutex; the returned transition must be invoked after the
// mutex is released.
func (cb *CircuitBreaker) transitionTo(newState State) *stateTransition {
	oldState := State(cb.state.Load())
	if oldState == newState {
		return nil
	}

	switch newState {
	case StateClosed:
		cb.failures = cb.failures[:0]
		cb.consecutiveSuccs = 0
		cb.halfOpenRequests = 0

	case StateOpen:
		cb.consecutiveSuccs = 0
		cb.halfOpenRequests = 0

	case StateHalfOpen:
		cb.consecutiveSuccs = 0
		cb.halfOpenRequests = 0
	}

	cb.state.Store(int32(newState))

	if cb.onStateChange != nil {
		return &stateTransition{
			from:     oldState,
			to:       newState,
			callback: cb.onStateChange,
		}
	}
	return nil
}

func (t *stateTransition) invoke() {
	if t != nil && t.callback != nil {
		t.callback(t.from, t.to)
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

func (cb *CircuitBreaker) IsClosed() bool {
	return cb.State() == StateClosed
}

func (cb *CircuitBreaker) IsHalfOpen() bool {
	return cb.State() == StateHalfOpen
}

// SetOnStateChange sets a callback for state changes. The callback runs
// synchronously after the transition and may read breaker state.
func (cb *CircuitBreaker) SetOnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = cb.failures[:0]
	cb.lastFailureAt = time.Time{}
	cb.consecutiveSuccs = 0
	cb.halfOpenRequests = 0
	cb.state.Store(int32(StateClosed))
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.pruneFailures()
	return CircuitBreakerStats{
		Name:             cb.name,
		State:            cb.State(),
		FailureCount:     len(cb.failures),
		LastFailureAt:    cb.lastFailureAt,
		ConsecutiveSuccs: cb.consecutiveSuccs,
		HalfOpenRequests: cb.halfOpenRequests,
	}
}

// CircuitBreakerStats contains circuit breaker statistics.
type CircuitBreakerStats struct {
	LastFailureAt    time.Time
	Name             string
	State            State
	FailureCount     int
	ConsecutiveSuccs int
	HalfOpenRequests int
}

// DisabledCircuitBreaker is a no-op circuit breaker that allows all requests.
type DisabledCircuitBreaker struct {
	name string
}

func NewDisabledCircuitBreaker(name string) *DisabledCircuitBreaker {
	return &DisabledCircuitBreaker{name: name}
}

func (cb *DisabledCircuitBreaker) Name() string { return cb.name }

func (cb *DisabledCircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return fn()
}

func (cb *DisabledCircuitBreaker) Allow() bool                              { return true }
func (cb *DisabledCircuitBreaker) RecordSuccess()                           {}
func (cb *DisabledCircuitBreaker) RecordFailure()                           {}
func (cb *DisabledCircuitBreaker) State() State                             { return StateClosed }
func (cb *DisabledCircuitBreaker) IsOpen() bool                             { return false }
func (cb *DisabledCircuitBreaker) IsClosed() bool                           { return true }
func (cb *DisabledCircuitBreaker) IsHalfOpen() bool                         { return false }
func (cb *DisabledCircuitBreaker) Reset()                                   {}
func (cb *DisabledCircuitBreaker) SetOnStateChange(fn func(from, to State)) {}
