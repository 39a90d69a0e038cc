package batch

import (
	"context"
	"time"
)

// Pacer waits between chunks.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelay waits the same duration between every pair of chunks.
type FixedDelay time.Duration

func (d FixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
