package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceStatus_Lifecycle(t *testing.T) {
	status := NewServiceStatus("overwatch")
	assert.Equal(t, StatusStopped, status.GetStatus())
	assert.False(t, status.IsRunning())
	assert.Zero(t, status.GetUptime())

	status.SetError(errors.New("boom"))
	assert.Equal(t, StatusError, status.GetStatus())
	assert.EqualError(t, status.GetError(), "boom")

	status.SetStatus(StatusRunning)
	assert.True(t, status.IsRunning())
	assert.NoError(t, status.GetError())
	assert.False(t, status.StartedAt.IsZero())

	status.SetStatus(StatusStopped)
	assert.Zero(t, status.GetUptime())
}

func TestServiceStatus_Snapshot(t *testing.T) {
	status := NewServiceStatus("web")
	status.SetError(errors.New("bind: address already in use"))

	info := status.Snapshot()
	assert.Equal(t, "web", info.Name)
	assert.Equal(t, StatusError, info.Status)
	assert.Equal(t, "bind: address already in use", info.Error)
}
