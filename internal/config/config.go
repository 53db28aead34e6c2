// Package config loads the daemon's recognised options from
// .code-indexer/config.json (spec §6), a JSONC file parsed tolerantly via
// github.com/tailscale/hujson the same way the teacher's cmd/tk config
// loader standardizes JSONC before unmarshalling.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds the recognised `daemon.*` options (spec §6).
type Config struct {
	Daemon Daemon `json:"daemon"`
}

// Daemon is the `daemon` section of config.json.
type Daemon struct {
	Enabled                bool  `json:"enabled"`
	TTLMinutes              int   `json:"ttl_minutes"`
	EvictionCheckSeconds    int   `json:"eviction_check_seconds"`
	AutoShutdownOnIdle      bool  `json:"auto_shutdown_on_idle"`
	MaxConcurrentConnections int  `json:"max_concurrent_connections"`
	RetryDelaysMS           []int `json:"retry_delays_ms"`
	RestartAttemptsOnCrash  int   `json:"restart_attempts_on_crash"`
}

// Default returns the configuration used when no config.json is present.
func Default() Config {
	return Config{
		Daemon: Daemon{
			Enabled:                  true,
			TTLMinutes:               10,
			EvictionCheckSeconds:     60,
			AutoShutdownOnIdle:       false,
			MaxConcurrentConnections: 256,
			RetryDelaysMS:            []int{100, 500, 1000, 2000},
			RestartAttemptsOnCrash:   2,
		},
	}
}

// TTL returns Daemon.TTLMinutes as a [time.Duration], falling back to
// [cache.DefaultTTL]'s value (10m) if unset.
func (d Daemon) TTL() time.Duration {
	if d.TTLMinutes <= 0 {
		return 10 * time.Minute
	}

	return time.Duration(d.TTLMinutes) * time.Minute
}

// EvictionCheckInterval returns Daemon.EvictionCheckSeconds as a
// [time.Duration], falling back to 60s if unset.
func (d Daemon) EvictionCheckInterval() time.Duration {
	if d.EvictionCheckSeconds <= 0 {
		return 60 * time.Second
	}

	return time.Duration(d.EvictionCheckSeconds) * time.Second
}

// RetryDelays returns the client backoff schedule as durations, falling
// back to spec §6's default [100ms, 500ms, 1s, 2s] if unset.
func (d Daemon) RetryDelays() []time.Duration {
	if len(d.RetryDelaysMS) == 0 {
		return []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second}
	}

	out := make([]time.Duration, len(d.RetryDelaysMS))
	for i, ms := range d.RetryDelaysMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}

	return out
}

// RestartAttempts returns Daemon.RestartAttemptsOnCrash, falling back to 2.
func (d Daemon) RestartAttempts() int {
	if d.RestartAttemptsOnCrash <= 0 {
		return 2
	}

	return d.RestartAttemptsOnCrash
}

// Path returns the config file path for projectPath (spec §6).
func Path(projectPath string) string {
	return filepath.Join(projectPath, ".code-indexer", "config.json")
}

// Load reads and parses projectPath's config.json. A missing file is not an
// error: it yields [Default].
func Load(projectPath string) (Config, error) {
	data, err := os.ReadFile(Path(projectPath)) //nolint:gosec // project-relative path under the caller's control
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}

		return Config{}, fmt.Errorf("config: read %s: %w", Path(projectPath), err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid JSONC in %s: %w", Path(projectPath), err)
	}

	cfg := Default()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid JSON in %s: %w", Path(projectPath), err)
	}

	return cfg, nil
}

// FindProjectRoot walks upward from dir looking for a `.code-indexer`
// directory, mirroring the client's "locate the config file by walking
// upward from CWD" step (spec §4.11). Returns dir itself if none is found
// anywhere up to the filesystem root, so callers can treat dir as a fresh
// project.
func FindProjectRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", dir, err)
	}

	cur := abs

	for {
		marker := filepath.Join(cur, ".code-indexer")

		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return cur, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}

		cur = parent
	}
}
