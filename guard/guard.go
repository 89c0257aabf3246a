package guard

import (
	"context"
	"time"
)

// Guard composes the protections around a command executor. Commands
// pass through the bulkhead first, then the circuit breaker, then the
// per-command timeout, so a saturated host rejects fast and a dead
// executor never consumes a slot for the full timeout.
type Guard struct {
	breaker  *Breaker
	bulkhead *Bulkhead
	timeout  time.Duration
	memory   *MemoryMonitor
}

// Option configures a Guard.
type Option func(*Guard)

// WithBreaker installs a circuit breaker.
func WithBreaker(b *Breaker) Option {
	return func(g *Guard) { g.breaker = b }
}

// WithBulkhead installs a concurrent command limit.
func WithBulkhead(b *Bulkhead) Option {
	return func(g *Guard) { g.bulkhead = b }
}

// WithCommandTimeout sets the per-command deadline.
func WithCommandTimeout(d time.Duration) Option {
	return func(g *Guard) { g.timeout = d }
}

// WithMemoryMonitor installs a heap pressure monitor.
func WithMemoryMonitor(m *MemoryMonitor) Option {
	return func(g *Guard) { g.memory = m }
}

// New creates a Guard. With no options every protection is disabled and
// Execute simply runs the operation.
func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute runs op under the configured protections.
func (g *Guard) Execute(ctx context.Context, op func(context.Context) error) error {
	wrapped := op
	if g.timeout > 0 {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return WithTimeout(ctx, g.timeout, inner)
		}
	}
	if g.breaker != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return g.breaker.Execute(ctx, inner)
		}
	}
	if g.bulkhead != nil {
		inner := wrapped
		wrapped = func(ctx context.Context) error {
			return g.bulkhead.Execute(ctx, inner)
		}
	}
	return wrapped(ctx)
}

// Pressure returns the current memory pressure, or PressureNormal when
// no monitor is installed.
func (g *Guard) Pressure() PressureLevel {
	if g.memory == nil {
		return PressureNormal
	}
	return g.memory.Level()
}
