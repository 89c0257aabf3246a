package guard

import (
	"context"
	"time"
)

// WithTimeout runs op with a deadline. If the deadline passes before op
// returns, ErrCommandTimeout is returned and op's eventual result is
// discarded; op keeps running in its goroutine until it observes the
// cancelled context.
func WithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrCommandTimeout
		}
		return ctx.Err()
	}
}
