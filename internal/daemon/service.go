// Package daemon implements DaemonService (spec §4.9): the RPC surface
// wired on top of [internal/cache], [internal/indexing], and
// [internal/watch]. Per the spec §9 file-size guidance, the surface is
// split into per-concern files: query.go, mutate.go, watchops.go,
// status.go; this file holds the shared Service type and its locking
// discipline (cache_lock -> indexing_lock, never reversed).
package daemon

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
	"github.com/localcode/indexer/internal/watch"
)

// Deps bundles the external collaborators injected at daemon startup (spec
// §9: "capability structs... injected at startup", not deep inheritance).
type Deps struct {
	Embedder collab.EmbeddingProvider
	Chunker  collab.Chunker
	Git      collab.GitTopology
	PointID  func(path string, chunkIndex int, content []byte) string
}

// Service is the RPC surface's single shared state, handed to every
// connection handler (spec §9: "single Arc-shared DaemonState value owned
// by the Server", no process-globals). It owns exactly one CacheEntry
// manager, one IndexingCoordinator, and one WatchCoordinator - the
// single-flight guarantees spec §4.7/§4.8 describe are per-process, not
// per-project, so these are singletons even though every method still
// takes a project path argument.
type Service struct {
	fs     fs.FS
	writer *fs.AtomicWriter

	cacheMgr   *cache.Manager
	hnsw       *hnsw.Store
	idIndex    *idindex.Store
	fts        *fts.Store
	indexCoord *indexing.Coordinator
	watchCoord *watch.Coordinator

	deps Deps
	log  zerolog.Logger
}

// New wires a Service over fsys using ttl for newly created cache entries.
func New(fsys fs.FS, deps Deps, ttl time.Duration, log zerolog.Logger) *Service {
	hnswStore := hnsw.New(fsys)
	idStore := idindex.New(fsys)
	ftsStore := fts.New(fsys)

	return &Service{
		fs:         fsys,
		writer:     fs.NewAtomicWriter(fsys),
		cacheMgr:   cache.NewManager(ttl),
		hnsw:       hnswStore,
		idIndex:    idStore,
		fts:        ftsStore,
		indexCoord: indexing.New(fsys, hnswStore, idStore, ftsStore, log),
		watchCoord: watch.New(watch.Deps{
			ReadFile: func(path string) ([]byte, error) { return fsys.ReadFile(path) },
			HNSW:     hnswStore,
			IDIndex:  idStore,
			FTS:      ftsStore,
			Git:      deps.Git,
			Chunker:  deps.Chunker,
			Embedder: deps.Embedder,
			PointID:  deps.PointID,
		}, log),
		deps: deps,
		log:  log.With().Str("component", "daemon").Logger(),
	}
}

// CacheManager exposes the underlying cache manager for EvictionThread
// wiring at startup; it is not part of the RPC surface itself.
func (s *Service) CacheManager() *cache.Manager { return s.cacheMgr }

// IndexingRunning reports whether an indexing session is currently in
// flight, for EvictionThread's "don't auto-shutdown while busy" checks.
func (s *Service) IndexingRunning() bool { return s.indexCoord.State() == indexing.Running }

// WatchRunning reports whether a watch session is active, for the Open
// Question resolution in spec §9: auto-shutdown-on-idle must not fire
// while a watch is running, since evicting the cache would strand the
// watch's in-memory mutation target.
func (s *Service) WatchRunning() bool { return s.watchCoord.Status().Running }

func (s *Service) layout(project, collection string) point.Layout {
	if collection == "" {
		collection = point.DefaultCollection
	}

	return point.NewLayout(project, collection)
}

func (s *Service) resolvePath(project, relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}

	return filepath.Join(project, relPath)
}

func ms(since time.Time) float64 {
	return float64(time.Since(since)) / float64(time.Millisecond)
}
