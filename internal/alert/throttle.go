// Package alert limits how often a camera may raise an alert.
package alert

import (
	"sync"
	"time"
)

// Throttle allows at most one alert per camera per interval. It is shared by
// every pipeline and safe for concurrent use.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[string]time.Time
}

// NewThrottle creates a throttle with the given minimum interval
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Interval returns the minimum time between two alerts of one camera
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// TryFire reports whether cameraID may alert at now and, if so, records now
// as its last alert time. A rejected call changes nothing.
func (t *Throttle) TryFire(cameraID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[cameraID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[cameraID] = now
	return true
}

// Remaining returns how long cameraID must wait before it may alert again
func (t *Throttle) Remaining(cameraID string, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[cameraID]
	if !ok {
		return 0
	}
	if wait := t.interval - now.Sub(last); wait > 0 {
		return wait
	}
	return 0
}
