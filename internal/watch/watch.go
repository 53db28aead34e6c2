// Package watch implements WatchCoordinator (spec §4.8): a single
// fsnotify-backed watcher that streams per-file mutations into the HNSW/
// IDIndex/FTS stores under the cache write lock, plus a git-topology diff
// path for branch/commit transitions.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
	"github.com/localcode/indexer/internal/xerrors"
)

// Stats are the running counters exposed by Status/Stop (spec §4.8).
type Stats struct {
	FilesAdded    int64
	FilesUpdated  int64
	FilesDeleted  int64
	Errors        int64
}

// Status is the snapshot returned by Coordinator.Status.
type Status struct {
	Running bool
	Project string
	Stats   Stats
}

// Coordinator runs at most one fsnotify watch per process (spec §4.8). It
// does not depend on an active IndexingCoordinator session - coupling the
// two was a prior design bug.
type Coordinator struct {
	mu      sync.Mutex
	running bool
	project string
	cancel  context.CancelFunc
	done    chan struct{}

	added, updated, deleted, errs atomic.Int64

	fsys    interface{ ReadFile(string) ([]byte, error) }
	hnsw    *hnsw.Store
	idIndex *idindex.Store
	fts     *fts.Store
	git     collab.GitTopology
	chunker collab.Chunker
	embed   collab.EmbeddingProvider
	pointID func(path string, chunkIndex int, content []byte) string
	log     zerolog.Logger
}

// Deps bundles the collaborators Start needs.
type Deps struct {
	ReadFile func(path string) ([]byte, error)
	HNSW     *hnsw.Store
	IDIndex  *idindex.Store
	FTS      *fts.Store
	Git      collab.GitTopology
	Chunker  collab.Chunker
	Embedder collab.EmbeddingProvider
	PointID  func(path string, chunkIndex int, content []byte) string
}

type readFileAdapter struct {
	fn func(string) ([]byte, error)
}

func (a readFileAdapter) ReadFile(path string) ([]byte, error) { return a.fn(path) }

// New returns a Coordinator using deps for its real work.
func New(deps Deps, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		fsys: readFileAdapter{deps.ReadFile}, hnsw: deps.HNSW, idIndex: deps.IDIndex, fts: deps.FTS,
		git: deps.Git, chunker: deps.Chunker, embed: deps.Embedder, pointID: deps.PointID,
		log: log.With().Str("component", "watch").Logger(),
	}
}

// Start begins watching root under the given collection layout, applying
// every file event to entry's stores under its write lock. Returns
// [xerrors.ErrAlreadyRunning] if a watch is already active.
func (c *Coordinator) Start(ctx context.Context, root string, l point.Layout, entry *cache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return xerrors.Wrap(xerrors.ErrAlreadyRunning, xerrors.WithProject(root))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()

		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.project = root
	c.done = make(chan struct{})

	c.added.Store(0)
	c.updated.Store(0)
	c.deleted.Store(0)
	c.errs.Store(0)

	go c.loop(runCtx, watcher, l, entry)

	return nil
}

func (c *Coordinator) loop(ctx context.Context, watcher *fsnotify.Watcher, l point.Layout, entry *cache.Entry) {
	defer close(c.done)
	defer func() { _ = watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			c.handleEvent(ctx, event, l, entry)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			c.errs.Add(1)
			c.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event fsnotify.Event, l point.Layout, entry *cache.Entry) {
	switch {
	case event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0:
		c.applyDelete(l, entry, event.Name)
	case event.Op&fsnotify.Create != 0:
		c.applyUpsert(ctx, l, entry, event.Name, &c.added)
	case event.Op&fsnotify.Write != 0:
		c.applyUpsert(ctx, l, entry, event.Name, &c.updated)
	}
}

// applyUpsert chunks, embeds, and writes a file's points into all three
// stores under the cache write lock, so concurrent readers never observe
// a partial update (spec §4.8).
func (c *Coordinator) applyUpsert(ctx context.Context, l point.Layout, entry *cache.Entry, path string, counter *atomic.Int64) {
	content, err := c.fsys.ReadFile(path)
	if err != nil {
		c.errs.Add(1)

		return
	}

	chunks, err := c.chunker.Chunk(path, content)
	if err != nil {
		c.errs.Add(1)

		return
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := c.embed.Embed(ctx, texts)
	if err != nil {
		c.errs.Add(1)

		return
	}

	err = entry.Write(func(s *cache.Stores) error {
		ids := make([]string, len(chunks))

		for i, ch := range chunks {
			id := c.pointID(path, i, []byte(ch.Text))
			ids[i] = id

			var vec []float32
			if i < len(vectors) {
				vec = vectors[i]
			}

			if s.HNSW != nil {
				c.hnsw.AddOrUpdateVector(s.HNSW, id, vec)
			}
		}

		if s.HNSW != nil {
			if err := c.hnsw.SaveIncrementalUpdate(l, s.HNSW); err != nil {
				return err
			}
		}

		if c.idIndex != nil {
			if err := c.updateIDIndex(l, s, path, ids); err != nil {
				return err
			}
		}

		if s.FTS != nil {
			doc := fts.Document{Path: path, Text: string(content)}
			if err := c.fts.IncrementalUpdate(s.FTS, doc); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		c.errs.Add(1)
		c.log.Warn().Err(err).Str("path", path).Msg("watch upsert failed")

		return
	}

	counter.Add(1)
}

// updateIDIndex folds path's current point ids into the collection's
// point_id -> path mapping and rebuilds id_index.bin from the merged set -
// IDIndexStore has no incremental write path (spec §4.3), so "update" here
// means the same full Rebuild indexing's end-of-session pass uses. s.IDIndex
// is swapped for a freshly loaded handle afterward so subsequent reads under
// this same entry see the new mapping rather than the pre-rebuild snapshot.
func (c *Coordinator) updateIDIndex(l point.Layout, s *cache.Stores, path string, ids []string) error {
	entries := map[string]string{}
	if s.IDIndex != nil {
		entries = s.IDIndex.Entries()
	}

	for _, id := range ids {
		entries[id] = path
	}

	return c.rebuildIDIndex(l, s, entries)
}

func (c *Coordinator) rebuildIDIndex(l point.Layout, s *cache.Stores, entries map[string]string) error {
	points := make([]point.Point, 0, len(entries))
	for id, p := range entries {
		points = append(points, point.Point{ID: id, Path: p})
	}

	if err := c.idIndex.Rebuild(l, points); err != nil {
		return err
	}

	reloaded, err := c.idIndex.Load(l)
	if err != nil {
		return err
	}

	_ = s.IDIndex.Close()
	s.IDIndex = reloaded

	return nil
}

func (c *Coordinator) applyDelete(l point.Layout, entry *cache.Entry, path string) {
	err := entry.Write(func(s *cache.Stores) error {
		var removedIDs []string

		if c.idIndex != nil && s.IDIndex != nil {
			entries := s.IDIndex.Entries()

			for id, p := range entries {
				if p == path {
					removedIDs = append(removedIDs, id)
					delete(entries, id)
				}
			}

			if err := c.rebuildIDIndex(l, s, entries); err != nil {
				return err
			}
		}

		if s.HNSW != nil && len(removedIDs) > 0 {
			for _, id := range removedIDs {
				c.hnsw.RemoveVector(s.HNSW, id)
			}

			if err := c.hnsw.SaveIncrementalUpdate(l, s.HNSW); err != nil {
				return err
			}
		}

		if s.FTS != nil {
			if err := c.fts.IncrementalDelete(s.FTS, path); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		c.errs.Add(1)
		c.log.Warn().Err(err).Str("path", path).Msg("watch delete failed")

		return
	}

	c.deleted.Add(1)
}

// AnalyzeBranchChange implements the git-topology decision rule (spec
// §4.8): same-branch with differing, existing commits uses commit-range
// diff; everything else falls back to branch-vs-branch diff.
func (c *Coordinator) AnalyzeBranchChange(ctx context.Context, change collab.BranchChange) (collab.BranchChangeResult, error) {
	return c.git.AnalyzeBranchChange(ctx, change)
}

// Status returns the current running state and counters.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Running: c.running,
		Project: c.project,
		Stats: Stats{
			FilesAdded: c.added.Load(), FilesUpdated: c.updated.Load(),
			FilesDeleted: c.deleted.Load(), Errors: c.errs.Load(),
		},
	}
}

// Stop signals cancellation and joins the watch goroutine with a 5 s
// timeout. By the time Stop returns, the goroutine has made its last
// entry.Write call (if any was in flight), so no further mutation races
// the caller's own use of entry afterward.
func (c *Coordinator) Stop() Status {
	c.mu.Lock()

	if !c.running {
		c.mu.Unlock()

		return Status{}
	}

	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.log.Warn().Msg("watch join timed out")
	}

	status := c.Status()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	return status
}
