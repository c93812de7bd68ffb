package alert

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_TryFire(t *testing.T) {
	throttle := NewThrottle(60 * time.Second)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, throttle.TryFire("Camera_1", t0), "first alert always fires")
	assert.False(t, throttle.TryFire("Camera_1", t0.Add(30*time.Second)))
	assert.True(t, throttle.TryFire("Camera_1", t0.Add(61*time.Second)))
	assert.Equal(t, 60*time.Second, throttle.Remaining("Camera_1", t0.Add(61*time.Second)),
		"only allowed calls move the timestamp")
}

func TestThrottle_ExactInterval(t *testing.T) {
	throttle := NewThrottle(time.Minute)
	t0 := time.Now()
	assert.Equal(t, time.Minute, throttle.Interval())

	assert.True(t, throttle.TryFire("Camera_1", t0))
	assert.True(t, throttle.TryFire("Camera_1", t0.Add(time.Minute)))
}

func TestThrottle_PerCamera(t *testing.T) {
	throttle := NewThrottle(time.Minute)
	t0 := time.Now()

	assert.True(t, throttle.TryFire("Camera_1", t0))
	assert.True(t, throttle.TryFire("Camera_2", t0.Add(time.Second)))
	assert.False(t, throttle.TryFire("Camera_1", t0.Add(2*time.Second)))
}

func TestThrottle_ZeroInterval(t *testing.T) {
	throttle := NewThrottle(0)
	t0 := time.Now()
	assert.True(t, throttle.TryFire("Camera_1", t0))
	assert.True(t, throttle.TryFire("Camera_1", t0))
}

func TestThrottle_Remaining(t *testing.T) {
	throttle := NewThrottle(time.Minute)
	t0 := time.Now()

	assert.Zero(t, throttle.Remaining("Camera_1", t0))
	throttle.TryFire("Camera_1", t0)
	assert.Equal(t, 40*time.Second, throttle.Remaining("Camera_1", t0.Add(20*time.Second)))
	assert.Zero(t, throttle.Remaining("Camera_1", t0.Add(2*time.Minute)))

	assert.Zero(t, throttle.Remaining("Camera_2", t0), "other cameras are unaffected")
}

func TestThrottle_Concurrent(t *testing.T) {
	throttle := NewThrottle(time.Hour)
	now := time.Now()

	var fired atomic.Int32
	var wg sync.WaitGroup
	for cam := 0; cam < 4; cam++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(cam int) {
				defer wg.Done()
				if throttle.TryFire(fmt.Sprintf("Camera_%d", cam), now) {
					fired.Add(1)
				}
			}(cam)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(4), fired.Load(), "exactly one alert per camera")
}
