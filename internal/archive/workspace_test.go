package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_Isolated(t *testing.T) {
	base := t.TempDir()

	a, err := NewWorkspace(base)
	require.NoError(t, err)
	b, err := NewWorkspace(base)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Dir, b.Dir)
	assert.Equal(t, filepath.Join(base, workspacePrefix+a.ID), a.Dir)
	assert.Equal(t, filepath.Join(a.Dir, "inner", "x"), a.Path("inner", "x"))

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestWorkspace_CloseRemovesEverything(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(ws.Path("inner", "a"), 0o700))
	require.NoError(t, os.WriteFile(ws.Path("inner", "a", "f.csv"), []byte("x"), 0o600))

	require.NoError(t, ws.Close())
	assert.NoDirExists(t, ws.Dir)
	require.NoError(t, ws.Close(), "second close is a no-op")
}

func TestCheckWritable(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, CheckWritable(base))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Error(t, CheckWritable(file))
}
