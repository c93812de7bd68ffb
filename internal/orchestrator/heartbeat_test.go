package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeat_Beats(t *testing.T) {
	var beats atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	NewHeartbeat(10*time.Millisecond, func(time.Time) { beats.Add(1) }).Run(ctx)
	assert.GreaterOrEqual(t, beats.Load(), int32(3))
}

func TestHeartbeat_Disabled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	called := false
	NewHeartbeat(0, func(time.Time) { called = true }).Run(ctx)
	assert.False(t, called)
}

func TestOrchestrator_Beat(t *testing.T) {
	f := newFixture(t, nil)
	f.orch.beat(time.Now())
}
