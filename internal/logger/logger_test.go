package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Defaults(t *testing.T) {
	log, err := New(LogConfig{Level: "not-a-level", Format: "text"})
	require.NoError(t, err)
	require.NotNil(t, log)

	// Invalid levels fall back to info.
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	log, err := New(LogConfig{
		Level:  "debug",
		Format: "json",
		Output: filepath.Join(dir, "logs", "run_{timestamp}.log"),
	})
	require.NoError(t, err)

	log.Info("hello", "camera", "Camera_1", "error", errors.New("boom"))
	log.Sync()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^run_\d{4}_\d{2}_\d{2}___\d{2}_\d{2}_\d{2}\.log$`, entries[0].Name())
}

func TestExpandOutputPath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)

	path, err := ExpandOutputPath(filepath.Join(dir, "a", "run_{timestamp}.log"), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "run_2024_03_09___07_05_01.log"), path)

	info, err := os.Stat(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConvertFields(t *testing.T) {
	fields := convertFields("a", 1, 2, "skipped-key-not-string", "odd")
	assert.Len(t, fields, 1)
	assert.Equal(t, "a", fields[0].Key)
}

func TestWith(t *testing.T) {
	log := NewNopLogger().With("camera", "Camera_1")
	require.NotNil(t, log)
	log.Debug("no panic")
}
