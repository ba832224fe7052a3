// Package circuitbreaker guards an optional backend. After a run of
// consecutive failures the breaker rejects calls for a cool-down, then lets a
// single trial call decide whether to close again.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state - requests are allowed through.
	StateClosed State = iota
	// StateOpen is the failure state - requests are blocked.
	StateOpen
	// StateHalfOpen lets one trial request through.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// ErrCircuitOpen is returned when the breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// StateChangeFunc is called on every transition, under the breaker lock.
type StateChangeFunc func(from, to State)

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	onChange  StateChangeFunc
	clock     clock.Clock

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(cb *CircuitBreaker) {
		if clk != nil {
			cb.clock = clk
		}
	}
}

// CacheBreaker returns a breaker for the prediction cache backend. It opens
// after threshold consecutive failures and a single successful trial closes
// it again. Non-positive arguments fall back to 5 failures and 30s.
func CacheBreaker(threshold int, cooldown time.Duration, onStateChange StateChangeFunc, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	cb := &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		onChange:  onStateChange,
		clock:     clock.NewClock(),
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn if the breaker allows it. An error caused by ctx itself
// ending is returned but not counted against the backend.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err, ctx.Err() != nil && errors.Is(err, ctx.Err()))

	return err
}

// IsRejection reports whether err came from the breaker itself rather than the call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.clock.Since(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.trial = true
		return nil
	default:
		if cb.trial {
			return ErrCircuitOpen
		}
		cb.trial = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error, abandoned bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trial = false
	if abandoned {
		return
	}

	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
		cb.openedAt = cb.clock.Now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.failures = 0

	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}
