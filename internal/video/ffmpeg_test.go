package video

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

func TestBuildArgs(t *testing.T) {
	args := buildArgs("rtsp://cam:554/Streaming/Channels/101")
	assert.Contains(t, args, "-rtsp_transport")
	assert.Equal(t, []string{"-f", "image2pipe", "-vcodec", "mjpeg"}, args[len(args)-7:len(args)-3])
	assert.Equal(t, "-", args[len(args)-1])

	args = buildArgs("http://cam/video.mjpg")
	assert.NotContains(t, args, "-rtsp_transport")
}

func TestNewFFmpegDialer_Defaults(t *testing.T) {
	d := NewFFmpegDialer("", 0, logger.NewNopLogger())
	assert.Equal(t, "ffmpeg", d.Path)
	assert.Equal(t, 10*time.Second, d.ReadTimeout)
}

func TestFFmpegDialer_MissingBinary(t *testing.T) {
	d := NewFFmpegDialer("/nonexistent/ffmpeg", time.Second, logger.NewNopLogger())
	_, err := d.Dial(context.Background(), "rtsp://127.0.0.1:1/none")
	assert.Error(t, err)
}

func TestFFmpegDialer_UnreachableStream(t *testing.T) {
	path, err := LookupFFmpeg("")
	if err != nil {
		t.Skipf("FFmpeg not available, skipping test: %v", err)
	}

	d := NewFFmpegDialer(path, 5*time.Second, logger.NewNopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := d.Dial(ctx, "rtsp://127.0.0.1:1/none")
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadFrame(ctx)
	assert.Error(t, err)
}

func TestFFmpegVersion(t *testing.T) {
	path, err := LookupFFmpeg("")
	if err != nil {
		t.Skipf("FFmpeg not available, skipping test: %v", err)
	}

	version, err := FFmpegVersion(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, version, "ffmpeg")
}

func TestFFmpegVersion_FirstLine(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'ffmpeg version 6.1-test'\necho 'built with gcc'\n"), 0755))

	path, err := LookupFFmpeg(script)
	require.NoError(t, err)
	assert.Equal(t, script, path)

	version, err := FFmpegVersion(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 6.1-test", version)
}
