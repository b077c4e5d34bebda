package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateClientID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")

	id := GetOrCreateClientID(path)
	require.True(t, strings.HasPrefix(id, "signalduino-"), id)

	// Stable across calls.
	assert.Equal(t, id, GetOrCreateClientID(path))
}

func TestGetOrCreateClientIDUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	id := GetOrCreateClientID(path)
	assert.True(t, strings.HasPrefix(id, "signalduino-"))
}
