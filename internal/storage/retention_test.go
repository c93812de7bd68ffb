package storage

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

func touch(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestRetentionPolicy_Enforce(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	touch(t, filepath.Join(dir, "old.jpg"), now.Add(-10*24*time.Hour))
	touch(t, filepath.Join(dir, "recent.jpg"), now.Add(-time.Hour))
	touch(t, filepath.Join(dir, "notes.txt"), now.Add(-30*24*time.Hour))

	policy := NewRetentionPolicy(dir, 7, logger.NewNopLogger())
	deleted, err := policy.Enforce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.NoFileExists(t, filepath.Join(dir, "old.jpg"))
	assert.FileExists(t, filepath.Join(dir, "recent.jpg"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestRetentionPolicy_Disabled(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.jpg"), time.Now().Add(-365*24*time.Hour))

	deleted, err := NewRetentionPolicy(dir, 0, logger.NewNopLogger()).Enforce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.FileExists(t, filepath.Join(dir, "old.jpg"))
}

func TestRetentionPolicy_MissingDir(t *testing.T) {
	policy := NewRetentionPolicy(filepath.Join(t.TempDir(), "missing"), 7, logger.NewNopLogger())
	deleted, err := policy.Enforce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
