package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected immediately
	BreakerHalfOpen                     // probe calls allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "closed"
}

// ErrCircuitOpen is returned without calling the service while its breaker
// is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("resilience: circuit open: %s", e.Service)
}

// Breaker stops calling a service after repeated failures and probes it
// again after a cool-down. Safe for concurrent use; one Breaker is shared
// by all jobs calling the same service.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	lastFailure  time.Time
	now          func() time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerThreshold sets the consecutive failures that open the breaker.
func WithBreakerThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

// WithBreakerResetTimeout sets how long the breaker stays open.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.resetTimeout = d }
}

// WithBreakerClock injects a clock (tests).
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = fn }
}

// NewBreaker opens after 5 failures, stays open 30s and closes after 2
// successful probes.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{threshold: 5, resetTimeout: 30 * time.Second, halfOpenMax: 2, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state != BreakerOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.halfOpenMax {
				b.state, b.failures, b.successes = BreakerClosed, 0, 0
			}
		case BreakerClosed:
			b.failures = 0
		}
		return
	}
	b.lastFailure = b.now()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state, b.successes = BreakerOpen, 0
	}
}

// maybeHalfOpen must be called with mu held.
func (b *Breaker) maybeHalfOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		b.state, b.successes = BreakerHalfOpen, 0
	}
}

// WithBreaker rejects calls with *ErrCircuitOpen while b is open. Permanent
// errors and caller cancellation do not count as service failures.
func WithBreaker[T any](b *Breaker, service string) Middleware[T] {
	return func(next Call[T]) Call[T] {
		return func(ctx context.Context) (T, error) {
			if !b.allow() {
				var zero T
				return zero, Permanent(&ErrCircuitOpen{Service: service})
			}
			resp, err := next(ctx)
			if err != nil && (IsPermanent(err) || ctx.Err() != nil) {
				return resp, err
			}
			b.record(err)
			return resp, err
		}
	}
}
