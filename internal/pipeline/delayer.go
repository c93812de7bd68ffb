package pipeline

import (
	"context"
	"time"
)

// LoopDelayer makes every loop iteration last at least a minimum duration
type LoopDelayer struct {
	minimum time.Duration
	now     func() time.Time
}

// NewLoopDelayer creates a delayer. A zero minimum never waits.
func NewLoopDelayer(minimum time.Duration) *LoopDelayer {
	return &LoopDelayer{minimum: minimum, now: time.Now}
}

// Delay returns how long to wait for an iteration that began at started
func (d *LoopDelayer) Delay(started time.Time) time.Duration {
	if d.minimum <= 0 {
		return 0
	}
	left := d.minimum - d.now().Sub(started)
	if left < 0 {
		return 0
	}
	return left
}

// Wait sleeps out the rest of the iteration. It returns false if ctx ended.
func (d *LoopDelayer) Wait(ctx context.Context, started time.Time) bool {
	left := d.Delay(started)
	if left == 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(left)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
