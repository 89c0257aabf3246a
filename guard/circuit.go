package guard

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means commands are dispatched normally.
	StateClosed State = iota
	// StateOpen means the executor is considered down and commands are blocked.
	StateOpen
	// StateHalfOpen means a probe command is testing whether the executor recovered.
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

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive executor failures before
	// the circuit opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before a probe
	// command is allowed through. Default: 30 seconds.
	ResetTimeout time.Duration

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure decides whether an error counts toward opening the
	// circuit. A command exiting non-zero is a result, not a failure;
	// by default only executor errors (err != nil) count.
	IsFailure func(err error) bool
}

// Breaker stops dispatching commands to an executor that keeps failing.
type Breaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	probing     bool
	lastFailure time.Time
}

// NewBreaker creates a new circuit breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{config: config, state: StateClosed}
}

// Execute dispatches op through the breaker. Returns ErrCircuitOpen
// without running op while the circuit is open.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Reset closes the circuit and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	if from != StateClosed {
		b.notifyLocked(from, StateClosed)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.config.IsFailure(err)
	from := b.state

	switch b.state {
	case StateClosed:
		if failed {
			b.failures++
			b.lastFailure = time.Now()
			if b.failures >= b.config.MaxFailures {
				b.state = StateOpen
			}
		} else {
			b.failures = 0
		}
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.lastFailure = time.Now()
			b.state = StateOpen
		} else {
			b.state = StateClosed
			b.failures = 0
		}
	}

	if from != b.state {
		b.notifyLocked(from, b.state)
	}
}

// stateLocked transitions open→half-open once the reset timeout elapses.
func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.config.ResetTimeout {
		b.state = StateHalfOpen
		b.probing = false
		b.notifyLocked(StateOpen, StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) notifyLocked(from, to State) {
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
