package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/config"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.True(t, cfg.Daemon.Enabled)
	require.Equal(t, 10*time.Minute, cfg.Daemon.TTL())
	require.Equal(t, 60*time.Second, cfg.Daemon.EvictionCheckInterval())
	require.Equal(t, 2, cfg.Daemon.RestartAttempts())
	require.Equal(t,
		[]time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
		cfg.Daemon.RetryDelays())
}

func TestLoad_ParsesJSONCWithComments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".code-indexer"), 0o755))

	jsonc := `{
		// this project wants a shorter TTL and no auto shutdown
		"daemon": {
			"ttl_minutes": 2,
			"auto_shutdown_on_idle": false,
			"retry_delays_ms": [50, 150],
		},
	}`

	require.NoError(t, os.WriteFile(config.Path(dir), []byte(jsonc), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, cfg.Daemon.TTL())
	require.False(t, cfg.Daemon.AutoShutdownOnIdle)
	require.Equal(t, []time.Duration{50 * time.Millisecond, 150 * time.Millisecond}, cfg.Daemon.RetryDelays())
	// Fields left unset in the file still fall back to Default's values.
	require.True(t, cfg.Daemon.Enabled)
}

func TestLoad_InvalidJSONErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".code-indexer"), 0o755))
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("{not json"), 0o644))

	_, err := config.Load(dir)
	require.Error(t, err)
}

func TestFindProjectRoot_WalksUpToMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".code-indexer"), 0o755))

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := config.FindProjectRoot(nested)
	require.NoError(t, err)
	require.Equal(t, root, found)
}

func TestFindProjectRoot_NoMarkerReturnsInputDir(t *testing.T) {
	dir := t.TempDir()

	found, err := config.FindProjectRoot(dir)
	require.NoError(t, err)
	require.Equal(t, dir, found)
}
