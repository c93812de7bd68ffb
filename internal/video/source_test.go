package video

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

func newTestSource(dialer Dialer) *Source {
	return NewSource(SourceConfig{
		CameraID:          "Camera_1",
		URL:               "rtsp://cam/1",
		ReconnectInterval: 5 * time.Millisecond,
		UnhealthyAfter:    3,
	}, dialer, logger.NewNopLogger())
}

func TestSource_NotReadyBeforeFirstFrame(t *testing.T) {
	src := newTestSource(&fakeDialer{readers: []*fakeReader{{}}})
	frame, err := src.Latest()
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSource_LatestIsMostRecent(t *testing.T) {
	reader := &fakeReader{results: []readResult{
		{data: testJPEG(t, 8, 8, color.White)},
		{data: testJPEG(t, 8, 8, color.Black)},
		{data: testJPEG(t, 16, 8, color.White)},
	}}
	src := newTestSource(&fakeDialer{readers: []*fakeReader{reader}})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	eventually(t, func() bool { return src.Stats().FramesCaptured == 3 })

	frame, err := src.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), frame.Seq)
	assert.Equal(t, 16, frame.Width)
	assert.Equal(t, 8, frame.Height)
	assert.Equal(t, "Camera_1", frame.CameraID)
}

func TestSource_SnapshotSurvivesOverwrite(t *testing.T) {
	first := testJPEG(t, 8, 8, color.White)
	reader := &fakeReader{results: []readResult{{data: first}}}
	dialer := &fakeDialer{readers: []*fakeReader{reader}}
	src := newTestSource(dialer)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	eventually(t, func() bool { _, err := src.Latest(); return err == nil })
	held, err := src.Latest()
	require.NoError(t, err)

	reader.push(testJPEG(t, 4, 4, color.Black))
	eventually(t, func() bool { return src.Stats().FramesCaptured == 2 })

	latest, err := src.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), latest.Seq)
	assert.Equal(t, 4, latest.Width)

	assert.Equal(t, uint64(1), held.Seq)
	assert.Equal(t, first, held.Data)
	assert.Equal(t, 8, held.Width)
}

func TestSource_ReconnectsAfterFailure(t *testing.T) {
	broken := &fakeReader{results: []readResult{
		{data: testJPEG(t, 8, 8, color.White)},
		{err: errors.New("connection reset")},
	}}
	healthy := &fakeReader{results: []readResult{
		{data: testJPEG(t, 8, 8, color.Black)},
	}}
	dialer := &fakeDialer{readers: []*fakeReader{broken, healthy}}
	src := newTestSource(dialer)
	require.NoError(t, src.Start(context.Background()))

	eventually(t, func() bool { return src.Stats().FramesCaptured == 2 })

	stats := src.Stats()
	assert.Equal(t, uint64(1), stats.ReadFailures)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
	assert.True(t, stats.Healthy)
	assert.Equal(t, 1, broken.closeCount())

	src.Stop()
	assert.Equal(t, 1, healthy.closeCount(), "stream handle closed exactly once")
	assert.Equal(t, 2, dialer.dialCount())
}

func TestSource_UnhealthyAfterConsecutiveFailures(t *testing.T) {
	// Dialing always fails: the startup path is the same retry path.
	dialer := &fakeDialer{}
	src := newTestSource(dialer)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	eventually(t, func() bool { return src.Stats().ConsecutiveFailures >= 3 })

	frame, err := src.Latest()
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrUnhealthy)
	assert.False(t, src.Healthy())
	assert.Contains(t, src.Stats().LastError, "connection refused")
}

func TestSource_UnhealthyKeepsLastFrame(t *testing.T) {
	reader := &fakeReader{results: []readResult{
		{data: testJPEG(t, 8, 8, color.White)},
		{err: errors.New("eof")},
	}}
	src := newTestSource(&fakeDialer{readers: []*fakeReader{reader}})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	eventually(t, func() bool { return src.Stats().ConsecutiveFailures >= 3 })

	frame, err := src.Latest()
	assert.ErrorIs(t, err, ErrUnhealthy)
	require.NotNil(t, frame)
	assert.Equal(t, uint64(1), frame.Seq)
}

func TestSource_CorruptFrameCountsAsFailure(t *testing.T) {
	reader := &fakeReader{results: []readResult{
		{data: []byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}},
		{data: testJPEG(t, 8, 8, color.White)},
	}}
	dialer := &fakeDialer{readers: []*fakeReader{reader}}
	src := newTestSource(dialer)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	eventually(t, func() bool { return src.Stats().FramesCaptured == 1 })
	assert.Equal(t, uint64(1), src.Stats().ReadFailures)
	assert.Equal(t, 1, dialer.dialCount(), "a bad frame does not drop the connection")
}

func TestSource_StopIsIdempotent(t *testing.T) {
	reader := &fakeReader{}
	src := newTestSource(&fakeDialer{readers: []*fakeReader{reader}})
	require.NoError(t, src.Start(context.Background()))
	eventually(t, func() bool { return src.Stats().Connected })

	src.Stop()
	src.Stop()

	assert.Equal(t, 1, reader.closeCount())
	_, err := src.Latest()
	assert.ErrorIs(t, err, ErrSourceStopped)
	assert.Error(t, src.Start(context.Background()))
}

func TestSource_StopBeforeStart(t *testing.T) {
	src := newTestSource(&fakeDialer{})
	src.Stop()
	assert.Error(t, src.Start(context.Background()))
}

func TestSource_ContextCancelEndsCapture(t *testing.T) {
	reader := &fakeReader{}
	src := newTestSource(&fakeDialer{readers: []*fakeReader{reader}})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))
	eventually(t, func() bool { return src.Stats().Connected })

	cancel()
	eventually(t, func() bool { return reader.closeCount() == 1 })

	src.Stop()
	assert.Equal(t, 1, reader.closeCount())
}
