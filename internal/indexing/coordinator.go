package indexing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
	"github.com/localcode/indexer/internal/xerrors"
)

// State is the coordinator's single-flight state machine (spec §4.7).
type State int

const (
	Idle State = iota
	Running
)

// Params configures one indexing session.
type Params struct {
	Collection string
	Files      []string
	SkipHNSW   bool
}

// Stats is the per-session result payload returned to the caller.
type Stats struct {
	FilesProcessed int
	ChunksCreated  int
	FailedFiles    int
	DurationSeconds float64
	Cancelled      bool
	HNSWUpdate     string // "full", "incremental", or "skipped"
}

// Result is what Start returns once a session completes.
type Result struct {
	Status string // "completed", "cancelled", "failed"
	Stats  Stats
}

// Coordinator manages at most one background indexing job for the process
// (spec §4.7). The "thread" is whichever goroutine the caller runs Start
// in (typically the RPC connection goroutine at the DaemonService layer);
// Coordinator's own job is strictly the single-flight state machine and
// the end-of-session HNSW rebuild decision, not owning a dedicated
// goroutine - this keeps the critical Idle->Running transition a single
// synchronous call instead of a race between a spawner and a worker.
type Coordinator struct {
	mu    sync.Mutex
	state State

	fs      fs.FS
	hnsw    *hnsw.Store
	idIndex *idindex.Store
	fts     *fts.Store
	log     zerolog.Logger

	cancel atomic.Bool
}

// New returns a Coordinator backed by the given stores.
func New(fsys fs.FS, hnswStore *hnsw.Store, idStore *idindex.Store, ftsStore *fts.Store, log zerolog.Logger) *Coordinator {
	return &Coordinator{fs: fsys, hnsw: hnswStore, idIndex: idStore, fts: ftsStore, log: log.With().Str("component", "indexing").Logger()}
}

// Cancel requests cancellation of an in-flight session. Start polls this
// between files.
func (c *Coordinator) Cancel() {
	c.cancel.Store(true)
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Deps bundles what Start needs to actually do the per-file work; kept
// separate from Coordinator's fields so tests can supply fakes without
// constructing real stores.
type Deps struct {
	Chunker   collab.Chunker
	Embedder  collab.EmbeddingProvider
	ReadFile  func(path string) ([]byte, error)
	PointID   func(path string, chunkIndex int, content []byte) string
}

// Start runs one indexing session synchronously. The Idle->Running
// transition and the accompanying cache invalidation happen as a single
// critical section under both the cache entry's write lock and the
// coordinator's own lock - splitting them introduced a TOCTOU race in an
// earlier revision (spec §4.7). Lock order is cache_lock then
// indexing_lock, per the global ordering rule (spec §5): the write lock
// is acquired first via entry.Write, with the coordinator mutex taken
// only inside that closure.
func (c *Coordinator) Start(ctx context.Context, entry *cache.Entry, l point.Layout, deps Deps, params Params, progress collab.ProgressFunc) (result Result, err error) {
	var alreadyRunning bool

	invalidateErr := entry.Write(func(*cache.Stores) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.state == Running {
			alreadyRunning = true

			return nil
		}

		c.state = Running
		c.cancel.Store(false)
		entry.Invalidate()

		return nil
	})

	if alreadyRunning {
		return Result{}, xerrors.Wrap(xerrors.ErrAlreadyRunning, xerrors.WithCollection(params.Collection))
	}

	if invalidateErr != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()

		return Result{}, invalidateErr
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("indexing session panicked")
			result = Result{Status: "failed", Stats: Stats{}}
			err = nil
		}

		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
	}()

	return c.run(ctx, l, deps, params, progress)
}

func (c *Coordinator) run(ctx context.Context, l point.Layout, deps Deps, params Params, progress collab.ProgressFunc) (Result, error) {
	start := time.Now()
	tracker := NewChangeTracker()

	var existingIDIndex *idindex.Loaded

	if loaded, err := c.idIndex.Load(l); err == nil {
		existingIDIndex = loaded

		defer func() { _ = loaded.Close() }()
	}

	var (
		points       []point.Point
		docs         []fts.Document
		failedFiles  int
		chunksTotal  int
		cancelled    bool
		anySucceeded bool
	)

	total := len(params.Files)

	for i, path := range params.Files {
		if c.cancel.Load() {
			cancelled = true

			break
		}

		if progress != nil {
			progress(i+1, total, path, "indexing", nil)
		}

		filePoints, content, nChunks, ferr := c.indexFile(ctx, l.Name, path, deps, tracker, existingIDIndex)
		if ferr != nil {
			failedFiles++
			c.log.Warn().Err(ferr).Str("path", path).Msg("skipping file")

			continue
		}

		anySucceeded = true
		chunksTotal += nChunks
		points = append(points, filePoints...)

		lang := ""
		if len(filePoints) > 0 {
			lang = filePoints[0].Language
		}

		docs = append(docs, fts.Document{Path: path, Text: string(content), Language: lang})
	}

	if !anySucceeded && failedFiles > 0 && !cancelled {
		return Result{}, xerrors.Wrap(xerrors.ErrExternalFailure)
	}

	hnswUpdate := "skipped"

	if !params.SkipHNSW && tracker.HasChanges(l.Name) && !cancelled {
		var err error

		hnswUpdate, err = c.endIndexing(l, points, tracker, l.Name)
		if err != nil {
			return Result{}, err
		}
	}

	if len(points) > 0 {
		if err := c.idIndex.Rebuild(l, points); err != nil {
			return Result{}, err
		}
	}

	if len(docs) > 0 && !cancelled {
		if err := c.updateFTS(l, docs); err != nil {
			return Result{}, err
		}
	}

	status := "completed"
	if cancelled {
		status = "cancelled"
	}

	return Result{
		Status: status,
		Stats: Stats{
			FilesProcessed:  len(params.Files) - failedFiles,
			ChunksCreated:   chunksTotal,
			FailedFiles:     failedFiles,
			DurationSeconds: time.Since(start).Seconds(),
			Cancelled:       cancelled,
			HNSWUpdate:      hnswUpdate,
		},
	}, nil
}

func (c *Coordinator) indexFile(ctx context.Context, collection, path string, deps Deps, tracker *ChangeTracker, existingIDIndex *idindex.Loaded) ([]point.Point, []byte, int, error) {
	content, err := deps.ReadFile(path)
	if err != nil {
		return nil, nil, 0, err
	}

	chunks, err := deps.Chunker.Chunk(path, content)
	if err != nil {
		return nil, nil, 0, err
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, 0, err
	}

	points := make([]point.Point, 0, len(chunks))

	for i, ch := range chunks {
		id := deps.PointID(path, i, []byte(ch.Text))

		tracker.UpsertPoint(collection, id, existingIDIndex.Has(id))

		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}

		points = append(points, point.Point{
			ID: id, Vector: vec, Path: path,
			LineFrom: ch.LineStart, LineTo: ch.LineEnd, Language: ch.Language,
		})
	}

	return points, content, len(chunks), nil
}

// updateFTS applies this session's documents to the FTS index, choosing
// full rebuild or incremental update per spec §4.4's decision rule: reuse
// the existing index if it is present and openable, otherwise build fresh.
func (c *Coordinator) updateFTS(l point.Layout, docs []fts.Document) error {
	searcher, err := c.fts.Open(l)
	if err != nil {
		return c.fts.RebuildFromDocuments(l, docs)
	}

	defer func() { _ = searcher.Close() }()

	for _, doc := range docs {
		if err := c.fts.IncrementalUpdate(searcher, doc); err != nil {
			return err
		}
	}

	return nil
}

// endIndexing implements the end-of-session auto full-vs-incremental HNSW
// decision (spec §4.7). The source of truth for "was a vector just
// computed" is this session's own in-memory points, rather than a re-read
// through the ID index - the ID index only ever stores path, never the
// vector (spec §4.3), so "read its vector from disk via the IDIndex" is
// read here as "resolve it from this session's already-embedded points",
// which is the only vector source the ID index's own contract provides
// access to.
func (c *Coordinator) endIndexing(l point.Layout, points []point.Point, tracker *ChangeTracker, collection string) (string, error) {
	exists, err := c.fs.Exists(l.HNSWFile())
	if err != nil {
		return "", err
	}

	if !exists {
		if err := c.hnsw.RebuildFromVectors(l, points, vectorDim(points), 16, 200, "cosine"); err != nil {
			return "", err
		}

		return "full", nil
	}

	loaded, err := c.hnsw.Load(l)
	if err != nil {
		return "", err
	}

	defer func() { _ = loaded.Close() }()

	byID := make(map[string]point.Point, len(points))
	for _, p := range points {
		byID[p.ID] = p
	}

	added, updated, deleted := tracker.Changes(collection)

	for _, id := range append(added, updated...) {
		p, ok := byID[id]
		if !ok {
			continue
		}

		c.hnsw.AddOrUpdateVector(loaded, p.ID, p.Vector)
	}

	for _, id := range deleted {
		c.hnsw.RemoveVector(loaded, id)
	}

	if err := c.hnsw.SaveIncrementalUpdate(l, loaded); err != nil {
		return "", err
	}

	return "incremental", nil
}

func vectorDim(points []point.Point) int {
	for _, p := range points {
		if len(p.Vector) > 0 {
			return len(p.Vector)
		}
	}

	return 0
}
