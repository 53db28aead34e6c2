// Package cache implements CacheEntry and EvictionThread (spec §4.5/4.6):
// per-project reader-writer-locked handles on the three on-disk stores,
// with TTL-based background eviction.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
)

// DefaultTTL is the default time a CacheEntry survives without access
// before EvictionThread invalidates it (spec §4.5).
const DefaultTTL = 10 * time.Minute

// Stores bundles the three live store handles an Entry hands to callers
// under lock. Any of the three may be nil if that store is unavailable.
type Stores struct {
	HNSW    *hnsw.Loaded
	IDIndex *idindex.Loaded
	FTS     *fts.Searcher
}

// Entry is one project's cached, memory-resident view of its collection
// stores, guarded by a single reader-writer lock (spec §4.5). The rw-lock
// must be held across the entire query or mutation, not just the handle
// lookup - a prior design that released it early raced invalidation and
// produced use-after-free crashes under load.
type Entry struct {
	ProjectPath string
	CreatedAt   time.Time
	TTL         time.Duration

	mu sync.RWMutex

	lastAccessedAt atomic.Int64 // unix nanos
	accessCount    atomic.Int64

	stores          Stores
	hnswVersionUUID string
	ftsAvailable    bool
}

// NewEntry returns an Entry for projectPath with TTL ttl (0 means
// [DefaultTTL]).
func NewEntry(projectPath string, ttl time.Duration) *Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	e := &Entry{ProjectPath: projectPath, CreatedAt: time.Now(), TTL: ttl}
	e.lastAccessedAt.Store(time.Now().UnixNano())

	return e
}

// Read acquires the read lock for the whole callback, bumps the access
// bookkeeping, and invokes fn with the current stores. The bookkeeping
// uses atomics rather than the write lock so concurrent readers never
// block each other on a simple timestamp update.
func (e *Entry) Read(fn func(Stores) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	e.touch()

	return fn(e.stores)
}

// Write acquires the write lock for the whole callback, which may replace
// or clear store handles (e.g. after a rebuild or on invalidation).
func (e *Entry) Write(fn func(*Stores) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(&e.stores)
}

func (e *Entry) touch() {
	e.lastAccessedAt.Store(time.Now().UnixNano())
	e.accessCount.Add(1)
}

// LastAccessedAt returns the last access time without acquiring any lock -
// EvictionThread's sweep reads this as a lock-free snapshot so it never
// blocks an in-flight query (spec §4.6).
func (e *Entry) LastAccessedAt() time.Time {
	return time.Unix(0, e.lastAccessedAt.Load())
}

// AccessCount returns the running access counter.
func (e *Entry) AccessCount() int64 {
	return e.accessCount.Load()
}

// IsExpired reports whether now - last_accessed_at >= ttl.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.LastAccessedAt()) >= e.TTL
}

// IsStaleAfterRebuild compares the on-disk hnsw_index.index_rebuild_uuid
// against the UUID observed when the stores were loaded. Must be called
// while holding at least the read lock (callers typically check this
// inside Read).
func (e *Entry) IsStaleAfterRebuild(fsys fs.FS, l point.Layout) (bool, error) {
	meta, err := point.LoadMeta(fsys, l)
	if err != nil {
		return false, err
	}

	return meta.HNSW.IndexRebuildUUID != e.hnswVersionUUID, nil
}

// Invalidate drops all store handles so their mmap'd file descriptors are
// released, and resets the version fields. Must be called under the write
// lock - call it from inside Write.
func (e *Entry) Invalidate() {
	_ = e.stores.HNSW.Close()
	_ = e.stores.IDIndex.Close()
	_ = e.stores.FTS.Close()

	e.stores = Stores{}
	e.hnswVersionUUID = ""
	e.ftsAvailable = false
}

// SetVersion records the index_rebuild_uuid and FTS availability observed
// when the stores currently held were loaded. Called under the write lock
// immediately after a successful load/reload.
func (e *Entry) SetVersion(hnswUUID string, ftsAvailable bool) {
	e.hnswVersionUUID = hnswUUID
	e.ftsAvailable = ftsAvailable
}

// FTSAvailable reports whether the FTS store was available at load time.
func (e *Entry) FTSAvailable() bool {
	return e.ftsAvailable
}
