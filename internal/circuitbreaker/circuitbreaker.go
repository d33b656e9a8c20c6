// Package circuitbreaker stops record delivery to a host that keeps failing, so a
// dead host costs one timeout per cooldown instead of one per test.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

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
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker parameters. Zero values get defaults.
type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before letting one probe through.
	Cooldown time.Duration
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(from, to State)
	// Now overrides the clock in tests.
	Now func() time.Time
}

// CircuitBreaker opens after repeated failures and admits a single probe once the
// cooldown has passed. A successful probe closes it; a failed one reopens it.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	cooldown  time.Duration
	onChange  func(from, to State)
	now       func() time.Time
}

// New creates a CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		onChange:  cfg.OnStateChange,
		now:       cfg.Now,
	}
}

// Call runs fn unless the breaker is open. Context cancellation is not counted as a
// host failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		cb.mu.Unlock()
		cb.notify(StateOpen, StateHalfOpen)
		return nil
	default:
		if cb.probing {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.probing = true
		cb.mu.Unlock()
		return nil
	}
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state
	cb.probing = false
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
	} else {
		cb.failures++
		if from == StateHalfOpen || cb.failures >= cb.threshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			cb.failures = 0
		}
	}
	to := cb.state
	cb.mu.Unlock()
	if from != to {
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
