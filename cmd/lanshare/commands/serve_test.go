package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSourcePattern(t *testing.T) {
	src, err := openSource("320X200", 0)
	require.NoError(t, err)
	assert.Equal(t, 320, src.Bounds().Dx())
	assert.Equal(t, 200, src.Bounds().Dy())

	for _, bad := range []string{"320", "axb", "0x100", "-5x5"} {
		_, err := openSource(bad, 0)
		assert.Error(t, err, bad)
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "view", "scan", "monitors", "version", "debug"} {
		assert.True(t, names[want], want)
	}
}
