package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

type recordingService struct {
	name     string
	startErr error
	stopErr  error
	order    *[]string
	mu       *sync.Mutex
	bus      *EventBus
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	s.record("start:" + s.name)
	return s.startErr
}

func (s *recordingService) Stop(ctx context.Context) error {
	s.record("stop:" + s.name)
	return s.stopErr
}

func (s *recordingService) SetEventBus(bus *EventBus) { s.bus = bus }

func (s *recordingService) record(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.order = append(*s.order, entry)
}

func newRecording(names ...string) ([]*recordingService, *[]string) {
	order := &[]string{}
	mu := &sync.Mutex{}
	svcs := make([]*recordingService, 0, len(names))
	for _, name := range names {
		svcs = append(svcs, &recordingService{name: name, order: order, mu: mu})
	}
	return svcs, order
}

func TestManager_Register(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	svcs, _ := newRecording("overwatch")
	mgr.Register(svcs[0])

	assert.Equal(t, 1, mgr.GetServiceCount())
	require.NotNil(t, mgr.GetServiceStatus("overwatch"))
	assert.Equal(t, StatusStopped, mgr.GetServiceStatus("overwatch").GetStatus())
	assert.Same(t, mgr.GetEventBus(), svcs[0].bus)
}

func TestManager_StartAndShutdownOrder(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	svcs, order := newRecording("recorder", "overwatch", "web")
	for _, svc := range svcs {
		mgr.Register(svc)
	}

	require.NoError(t, mgr.Start(context.Background()))
	for _, svc := range svcs {
		assert.True(t, mgr.GetServiceStatus(svc.name).IsRunning())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	assert.Equal(t, []string{
		"start:recorder", "start:overwatch", "start:web",
		"stop:web", "stop:overwatch", "stop:recorder",
	}, *order)
	assert.Equal(t, StatusStopped, mgr.GetServiceStatus("web").GetStatus())
}

func TestManager_StartFailure(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	svcs, order := newRecording("broken", "web")
	svcs[0].startErr = errors.New("cannot open database")
	for _, svc := range svcs {
		mgr.Register(svc)
	}

	err := mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	assert.Equal(t, StatusError, mgr.GetServiceStatus("broken").GetStatus())
	assert.True(t, mgr.GetServiceStatus("web").IsRunning())
	assert.Equal(t, []string{"start:broken", "start:web"}, *order)
}

func TestManager_StopError(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	svcs, _ := newRecording("web")
	svcs[0].stopErr = errors.New("still serving")
	mgr.Register(svcs[0])

	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Shutdown(context.Background()))
	assert.Equal(t, StatusError, mgr.GetServiceStatus("web").GetStatus())
}

func TestManager_GetAllStatuses(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	svcs, _ := newRecording("a", "b")
	for _, svc := range svcs {
		mgr.Register(svc)
	}

	statuses := mgr.GetAllStatuses()
	assert.Len(t, statuses, 2)
	assert.Contains(t, statuses, "a")
	assert.Contains(t, statuses, "b")
}
