package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCheckInterval is the default period EvictionThread sweeps for
// expired entries (spec §4.6).
const DefaultCheckInterval = 60 * time.Second

// EvictionThread is CacheEntry's background reaper: every check interval
// it snapshots access times lock-free, invalidates anything expired under
// that entry's write lock, and optionally asks the caller to shut the
// daemon down once the cache is empty and idle.
type EvictionThread struct {
	manager       *Manager
	checkInterval time.Duration
	log           zerolog.Logger

	// AutoShutdownOnIdle, when set, is invoked after an eviction sweep
	// leaves the cache empty. It is deliberately opt-in and left nil by
	// default: shutting the daemon down while a watch session is running
	// would kill the watch too, so the callback codeindexd wires in returns
	// without shutting down while a watch or indexing session is active.
	AutoShutdownOnIdle func()
}

// NewEvictionThread returns an EvictionThread over manager with the given
// check interval (0 means [DefaultCheckInterval]).
func NewEvictionThread(manager *Manager, checkInterval time.Duration, log zerolog.Logger) *EvictionThread {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	return &EvictionThread{manager: manager, checkInterval: checkInterval, log: log.With().Str("component", "eviction").Logger()}
}

// Run sweeps for expired entries until ctx is cancelled.
func (t *EvictionThread) Run(ctx context.Context) {
	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *EvictionThread) sweep() {
	now := time.Now()

	for _, e := range t.manager.Snapshot() {
		if !e.IsExpired(now) {
			continue
		}

		evicted := false

		_ = e.Write(func(*Stores) error {
			// Re-check under the write lock: a query may have touched
			// this entry between the lock-free snapshot read and here.
			if e.IsExpired(time.Now()) {
				e.Invalidate()
				evicted = true
			}

			return nil
		})

		if evicted {
			t.manager.remove(e.ProjectPath)
			t.log.Debug().Str("project", e.ProjectPath).Msg("evicted idle cache entry")
		}
	}

	if t.AutoShutdownOnIdle != nil && len(t.manager.Snapshot()) == 0 {
		t.AutoShutdownOnIdle()
	}
}
