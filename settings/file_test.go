package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersister_MissingFileIsEmpty(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "plugins.yaml"))

	records, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFilePersister_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins: [unterminated"), 0o644))

	_, err := NewFilePersister(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestFilePersister_Unreadable(t *testing.T) {
	// A directory in place of the file cannot be read.
	path := t.TempDir()

	_, err := NewFilePersister(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestFilePersister_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "plugins.yaml")
	p := NewFilePersister(path)

	require.NoError(t, p.Save(context.Background(), seed()))

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed(), loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: alpha")
	assert.Contains(t, string(data), "frontend: alpha/index.js")
}

func TestFilePersister_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersister(filepath.Join(dir, "plugins.yaml"))

	require.NoError(t, p.Save(context.Background(), seed()))
	require.NoError(t, p.Save(context.Background(), seed()[:1]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "plugins.yaml", entries[0].Name())
}

func TestFilePersister_FailedSaveKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.yaml")
	p := NewFilePersister(path)
	require.NoError(t, p.Save(context.Background(), seed()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Save(ctx, nil))

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seed(), loaded)
}
