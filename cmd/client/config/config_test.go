package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults", func(t *testing.T) {
		path := filepath.Join(dir, "a.yaml")
		require.NoError(t, os.WriteFile(path, []byte("state_stream_url: ws://127.0.0.1:8545/ws\n"), 0o600))
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "ws://127.0.0.1:8545/ws", cfg.StateStreamURL)
		assert.Equal(t, uint(100), cfg.BufferSize)
		assert.Equal(t, 3, cfg.MaxHops)
	})

	t.Run("overrides", func(t *testing.T) {
		path := filepath.Join(dir, "b.yaml")
		require.NoError(t, os.WriteFile(path, []byte("state_stream_url: ws://x\nbuffer_size: 5\nmax_hops: 2\n"), 0o600))
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, uint(5), cfg.BufferSize)
		assert.Equal(t, 2, cfg.MaxHops)
	})

	t.Run("missing url", func(t *testing.T) {
		path := filepath.Join(dir, "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("buffer_size: 5\n"), 0o600))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
