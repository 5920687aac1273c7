package deviceid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateInIsStable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	id, err := GetIn(dir)
	require.NoError(t, err)
	assert.Empty(t, id)

	first, err := GetOrCreateIn(dir)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	assert.NoError(t, err)

	second, err := GetOrCreateIn(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := GetIn(dir)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestGetInTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, InstanceIDFile), []byte("abc\n"), 0600))

	id, err := GetOrCreateIn(dir)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}
