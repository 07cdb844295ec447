package resilience

import (
	"context"

	"github.com/LavishGent/tiercache/internal/config"
)

// Executor is what the coordinator wraps every tier call in.
type Executor interface {
	Name() string
	Execute(ctx context.Context, fn func(context.Context) error) error
	ExecuteWithResult(ctx context.Context, fn func(context.Context) (any, error)) (any, error)
	IsCircuitOpen() bool
	CircuitState() State
	SetOnCircuitStateChange(fn func(from, to State))
	BulkheadStats() (active, queued int, rejected int64)
}

// Policy combines circuit breaker, retry and bulkhead for one tier.
type Policy struct {
	name           string
	circuitBreaker CircuitBreakerExecutor
	retry          RetryExecutor
	bulkhead       BulkheadExecutor
}

// CircuitBreakerExecutor defines the interface for circuit breaker operations.
type CircuitBreakerExecutor interface {
	Execute(fn func() (any, error)) (any, error)
	Allow() bool
	RecordSuccess()
	RecordFailure()
	State() State
	IsOpen() bool
	SetOnStateChange(fn func(from, to State))
}

// RetryExecutor defines the interface for retry operations.
type RetryExecutor interface {
	ExecuteCtx(ctx context.Context, fn func(context.Context) error) error
	ExecuteWithResult(ctx context.Context, fn func(context.Context) (any, error)) (any, error)
}

// BulkheadExecutor defines the interface for bulkhead operations.
type BulkheadExecutor interface {
	ExecuteCtx(ctx context.Context, fn func(context.Context) error) error
	ExecuteWithResult(ctx context.Context, fn func(context.Context) (any, error)) (any, error)
	ActiveCount() int
	QueuedCount() int
	RejectedCount() int64
}

// NewPolicy creates the resilience policy for the named tier.
func NewPolicy(tier string, cfg *config.Config) *Policy {
	p := &Policy{name: tier}

	if cfg.CircuitBreaker.Enabled {
		p.circuitBreaker = NewCircuitBreaker(tier, cfg.CircuitBreaker)
	} else {
		p.circuitBreaker = NewDisabledCircuitBreaker(tier)
	}

	if cfg.Retry.Enabled {
		p.retry = NewRetryPolicy(cfg.Retry)
	} else {
		p.retry = NewDisabledRetryPolicy()
	}

	if cfg.Bulkhead.Enabled {
		p.bulkhead = NewBulkhead(cfg.Bulkhead)
	} else {
		p.bulkhead = NewDisabledBulkhead()
	}

	return p
}

func (p *Policy) Name() string {
	return p.name
}

// Execute runs an operation through Bulkhead -> Retry -> Circuit Breaker.
// Each retry attempt passes through the breaker on its own so that a
// failing tier trips it without waiting for retries to run out.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	return p.bulkhead.ExecuteCtx(ctx, func(ctx context.Context) error {
		return p.retry.ExecuteCtx(ctx, func(ctx context.Context) error {
			_, err := p.circuitBreaker.Execute(func() (any, error) {
				return nil, fn(ctx)
			})
			return err
		})
	})
}

// ExecuteWithResult runs an operation that returns a result.
func (p *Policy) ExecuteWithResult(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	return p.bulkhead.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
		return p.retry.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
			return p.circuitBreaker.Execute(func() (any, error) {
				return fn(ctx)
			})
		})
	})
}

func (p *Policy) CircuitBreaker() CircuitBreakerExecutor {
	return p.circuitBreaker
}

func (p *Policy) IsCircuitOpen() bool {
	return p.circuitBreaker.IsOpen()
}

func (p *Policy) CircuitState() State {
	return p.circuitBreaker.State()
}

func (p *Policy) SetOnCircuitStateChange(fn func(from, to State)) {
	p.circuitBreaker.SetOnStateChange(fn)
}

func (p *Policy) BulkheadStats() (active, queued int, rejected int64) {
	return p.bulkhead.ActiveCount(), p.bulkhead.QueuedCount(), p.bulkhead.RejectedCount()
}

// DisabledPolicy is a no-op policy that bypasses all resilience patterns.
type DisabledPolicy struct {
	name string
}

func NewDisabledPolicy(tier string) *DisabledPolicy {
	return &DisabledPolicy{name: tier}
}

func (p *DisabledPolicy) Name() string { return p.name }

func (p *DisabledPolicy) Execute(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (p *DisabledPolicy) ExecuteWithResult(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

func (p *DisabledPolicy) IsCircuitOpen() bool                                { return false }
func (p *DisabledPolicy) CircuitState() State                                { return StateClosed }
func (p *DisabledPolicy) SetOnCircuitStateChange(fn func(from, to State))    {}
func (p *DisabledPolicy) BulkheadStats() (active, queued int, rejected int64) { return 0, 0, 0 }
