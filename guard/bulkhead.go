package guard

import (
	"context"
	"time"
)

// BulkheadConfig configures the concurrent command limit.
type BulkheadConfig struct {
	// MaxConcurrent is the number of commands allowed to run at once.
	// Default: 10.
	MaxConcurrent int

	// MaxWait is how long an admission waits for a slot before giving
	// up with ErrTooManyCommands. Zero means fail immediately.
	MaxWait time.Duration
}

// Bulkhead bounds the number of commands running concurrently so a
// burst of agent requests cannot exhaust the host.
type Bulkhead struct {
	config BulkheadConfig
	slots  chan struct{}
}

// NewBulkhead creates a bulkhead with the given configuration.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrent),
	}
}

// Execute runs op once a slot is available. Returns ErrTooManyCommands
// if no slot frees up within MaxWait, or the context error if ctx ends
// first.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	return op(ctx)
}

// InFlight returns the number of commands currently holding a slot.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}

	if b.config.MaxWait <= 0 {
		return ErrTooManyCommands
	}

	timer := time.NewTimer(b.config.MaxWait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTooManyCommands
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bulkhead) release() {
	<-b.slots
}
