package daemon

import (
	"time"

	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/watch"
)

// CacheStatus is the `status().cache` section (spec §4.9).
type CacheStatus struct {
	Loaded       bool          `json:"loaded"`
	Project      string        `json:"project"`
	AccessCount  int64         `json:"access_count"`
	LastAccessed time.Time     `json:"last_accessed"`
	TTLRemaining time.Duration `json:"ttl_remaining"`
}

// StorageStatus is the `status().storage` section.
type StorageStatus struct {
	CollectionCount int  `json:"collection_count"`
	VectorCount     int  `json:"vector_count"`
	FTSAvailable    bool `json:"fts_available"`
}

// IndexingStatus is the `status().indexing` section.
type IndexingStatus struct {
	Running bool   `json:"running"`
	Project string `json:"project"`
}

// StatusResult is the combined response of the `status` RPC (spec §4.9).
type StatusResult struct {
	Cache    CacheStatus    `json:"cache"`
	Storage  StorageStatus  `json:"storage"`
	Watch    watch.Status   `json:"watch"`
	Indexing IndexingStatus `json:"indexing"`
}

// Status gathers the combined cache/storage/watch/indexing snapshot.
func (s *Service) Status(project string) (StatusResult, error) {
	cacheStatus := CacheStatus{Project: project}

	if entry, ok := s.cacheMgr.Lookup(project); ok {
		cacheStatus.Loaded = true
		cacheStatus.AccessCount = entry.AccessCount()
		cacheStatus.LastAccessed = entry.LastAccessedAt()

		remaining := entry.TTL - time.Since(entry.LastAccessedAt())
		if remaining < 0 {
			remaining = 0
		}

		cacheStatus.TTLRemaining = remaining
	}

	reg, err := point.LoadRegistry(s.fs, project)
	if err != nil {
		return StatusResult{}, err
	}

	storageStatus := StorageStatus{CollectionCount: len(reg.Collections)}

	for _, name := range reg.Collections {
		l := point.NewLayout(project, name)

		meta, merr := point.LoadMeta(s.fs, l)
		if merr != nil {
			continue
		}

		storageStatus.VectorCount += meta.HNSW.VectorCount

		if meta.FTS.DocumentCount > 0 {
			storageStatus.FTSAvailable = true
		}
	}

	return StatusResult{
		Cache:   cacheStatus,
		Storage: storageStatus,
		Watch:   s.watchCoord.Status(),
		Indexing: IndexingStatus{
			Running: s.indexCoord.State() == indexing.Running,
			Project: project,
		},
	}, nil
}

// ClearCache is the manual `clear_cache` RPC: invalidates and drops every
// cached project entry.
func (s *Service) ClearCache() {
	s.cacheMgr.DropAll()
}

// Shutdown stops the watch session, invalidates every cache entry, and
// returns. Stopping the eviction thread and actually exiting the process
// through the normal termination path (so deferred socket-unlink handlers
// run, per spec §9's note that an abrupt exit bypassed cleanup) is the
// caller's responsibility (rpcserver.Server) - Service itself has no
// knowledge of the process lifecycle.
func (s *Service) Shutdown() {
	s.watchCoord.Stop()
	s.cacheMgr.DropAll()
}
