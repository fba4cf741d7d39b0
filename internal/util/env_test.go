package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("SPRINTBOARD_TEST_VALUE", "  set ")
	assert.Equal(t, "set", EnvOrDefault("SPRINTBOARD_TEST_VALUE", "fallback"))

	t.Setenv("SPRINTBOARD_TEST_VALUE", "   ")
	assert.Equal(t, "fallback", EnvOrDefault("SPRINTBOARD_TEST_VALUE", "fallback"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data", "board.db"), ExpandPath("~/data/board.db"))
	assert.Equal(t, "data/board.db", ExpandPath("./data//board.db"))
	assert.Equal(t, "", ExpandPath(""))
}
