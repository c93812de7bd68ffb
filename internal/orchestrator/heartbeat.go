package orchestrator

import (
	"context"
	"time"
)

// Heartbeat calls beat every interval until the context ends
type Heartbeat struct {
	interval time.Duration
	beat     func(now time.Time)
}

// NewHeartbeat creates a heartbeat. A non-positive interval never beats.
func NewHeartbeat(interval time.Duration, beat func(now time.Time)) *Heartbeat {
	return &Heartbeat{interval: interval, beat: beat}
}

// Run blocks until ctx is done
func (h *Heartbeat) Run(ctx context.Context) {
	if h.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.beat(now)
		}
	}
}
