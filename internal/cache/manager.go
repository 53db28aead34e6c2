package cache

import (
	"sync"
	"time"
)

// Manager owns the set of per-project CacheEntry instances. Lookups and
// inserts are guarded by a plain mutex; the heavy RW-locked work happens
// inside each Entry, not here.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
}

// NewManager returns an empty Manager using ttl for entries it creates (0
// means [DefaultTTL]).
func NewManager(ttl time.Duration) *Manager {
	return &Manager{entries: make(map[string]*Entry), ttl: ttl}
}

// GetOrCreate returns the existing Entry for projectPath, creating one
// lazily on first access (spec §4.5 CacheEntry lifecycle).
func (m *Manager) GetOrCreate(projectPath string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[projectPath]; ok {
		return e
	}

	e := NewEntry(projectPath, m.ttl)
	m.entries[projectPath] = e

	return e
}

// Lookup returns the existing Entry for projectPath without creating one,
// for callers like Status that must not conjure a cache entry for a
// project nobody has queried yet.
func (m *Manager) Lookup(projectPath string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[projectPath]

	return e, ok
}

// Drop invalidates and removes the entry for projectPath, if any.
func (m *Manager) Drop(projectPath string) {
	m.mu.Lock()
	e, ok := m.entries[projectPath]
	delete(m.entries, projectPath)
	m.mu.Unlock()

	if ok {
		_ = e.Write(func(*Stores) error {
			e.Invalidate()

			return nil
		})
	}
}

// DropAll invalidates and removes every entry (used by "clear_cache").
func (m *Manager) DropAll() {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.entries))
	for k, e := range m.entries {
		entries = append(entries, e)
		delete(m.entries, k)
	}
	m.mu.Unlock()

	for _, e := range entries {
		_ = e.Write(func(*Stores) error {
			e.Invalidate()

			return nil
		})
	}
}

// Snapshot returns the current entries for EvictionThread's sweep. The
// returned slice is a point-in-time copy of the map; entries created or
// dropped concurrently are simply missed or included in the next sweep.
func (m *Manager) Snapshot() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}

	return out
}

// remove deletes projectPath's entry from the registry without
// invalidating it - used by EvictionThread, which invalidates first then
// removes, so a concurrent GetOrCreate never observes a half-torn-down
// entry under its own key.
func (m *Manager) remove(projectPath string) {
	m.mu.Lock()
	delete(m.entries, projectPath)
	m.mu.Unlock()
}
