// Package hnsw implements HNSWStore (spec §4.2): mmap-backed dense-index
// load/query/incremental-update/soft-delete, backed in memory by
// github.com/coder/hnsw and durable on disk via our own binary format and
// [rebuild.Rebuilder].
package hnsw

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/rebuild"
)

// ErrUnavailable indicates the index is missing or marked stale with no
// fresh file yet - the query-time "index unavailable, rebuild in progress"
// state from spec §4.2. Callers treat it as an empty semantic result.
var ErrUnavailable = errors.New("hnsw: unavailable")

// Loaded is one in-memory snapshot of a collection's HNSW index, as
// returned by [Store.Load]. It owns the mmap mapping and must be released
// via Close when the cache entry invalidates (spec §5 resource release).
type Loaded struct {
	mapping   *mapping
	graph     *graph
	vectors   map[uint32][]float32
	idToLabel map[string]uint32
	labelToID map[uint32]string
	nextLabel uint32
	dim       int
	m, ef     int
}

// Close releases the mmap mapping. Safe to call multiple times.
func (l *Loaded) Close() error {
	if l == nil || l.mapping == nil {
		return nil
	}

	return l.mapping.Close()
}

// Result is one nearest-neighbor hit.
type Result struct {
	PointID  string
	Distance float32
}

// Store is a stateless façade over one project's HNSW collections; pass the
// [point.Layout] for the collection on each call.
type Store struct {
	fs        fs.FS
	rebuilder *rebuild.Rebuilder
	writer    *fs.AtomicWriter
}

// New returns a Store backed by fsys.
func New(fsys fs.FS) *Store {
	return &Store{fs: fsys, rebuilder: rebuild.New(fsys), writer: fs.NewAtomicWriter(fsys)}
}

// Load mmaps hnsw_index.bin and rebuilds the in-memory graph from its live
// (non-deleted) records. Returns [ErrUnavailable] if the file is missing,
// or if metadata marks the index stale and no file exists to fall back to
// (spec §4.2's query invariant).
func (s *Store) Load(l point.Layout) (*Loaded, error) {
	meta, metaErr := point.LoadMeta(s.fs, l)

	exists, err := s.fs.Exists(l.HNSWFile())
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", l.HNSWFile(), err)
	}

	if !exists {
		return nil, ErrUnavailable
	}

	if metaErr == nil && meta.HNSW.IsStale {
		// A fresh file exists (checked above); go ahead and load it - the
		// caller (indexing path) may be mid-rebuild, but a pure query path
		// still prefers a possibly-slightly-stale index over none at all,
		// matching spec §4.2: "unavailable" is only for the no-file case.
		_ = metaErr
	}

	m, err := mapFile(l.HNSWFile())
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", l.HNSWFile(), err)
	}

	dim, count, nextLabel, err := decodeHeader(m.data)
	if err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("decode header: %w", err)
	}

	records, err := decodeAllRecords(m.data, dim, count)
	if err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("decode records: %w", err)
	}

	mCfg, efCfg := 16, 200
	if metaErr == nil {
		if meta.HNSW.M > 0 {
			mCfg = meta.HNSW.M
		}

		if meta.HNSW.EfConstruction > 0 {
			efCfg = meta.HNSW.EfConstruction
		}
	}

	g := newGraph(mCfg, efCfg)
	vectors := make(map[uint32][]float32, len(records))
	idToLabel := make(map[string]uint32, len(records))
	labelToID := make(map[uint32]string, len(records))

	for _, r := range records {
		if r.deleted {
			delete(idToLabel, r.pointID)

			continue
		}

		g.add(r.label, r.vector)
		vectors[r.label] = r.vector
		idToLabel[r.pointID] = r.label
		labelToID[r.label] = r.pointID
	}

	return &Loaded{
		mapping: m, graph: g, vectors: vectors,
		idToLabel: idToLabel, labelToID: labelToID,
		nextLabel: nextLabel, dim: dim, m: mCfg, ef: efCfg,
	}, nil
}

// Query runs a k-NN search. Does not acquire any lock: spec §4.2 requires
// the caller to already hold the CacheEntry read lock for the whole
// operation.
func (s *Store) Query(l *Loaded, vector []float32, k int) ([]Result, error) {
	if l == nil {
		return nil, ErrUnavailable
	}

	labels := l.graph.search(vector, k)

	results := make([]Result, 0, len(labels))
	for _, label := range labels {
		id, ok := l.labelToID[label]
		if !ok {
			continue
		}

		results = append(results, Result{PointID: id, Distance: l2Distance(vector, l.vectors[label])})
	}

	return results, nil
}

func l2Distance(a, b []float32) float32 {
	var sum float64

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := range n {
		d := float64(a[i] - b[i])
		sum += d * d
	}

	return float32(math.Sqrt(sum))
}

// AddOrUpdateVector implements spec §4.2's upsert rule: if point_id already
// has a label, the old label is marked deleted in-memory and a fresh label
// is assigned; the caller is responsible for persisting via
// [Store.SaveIncrementalUpdate].
func (s *Store) AddOrUpdateVector(l *Loaded, pointID string, vector []float32) {
	if old, ok := l.idToLabel[pointID]; ok {
		l.graph.delete(old)
		delete(l.labelToID, old)
		delete(l.vectors, old)
	}

	label := l.nextLabel
	l.nextLabel++

	l.graph.add(label, vector)
	l.vectors[label] = vector
	l.idToLabel[pointID] = label
	l.labelToID[label] = pointID
}

// RemoveVector soft-deletes point_id's current label. Hard removal
// requires a full rebuild.
func (s *Store) RemoveVector(l *Loaded, pointID string) {
	label, ok := l.idToLabel[pointID]
	if !ok {
		return
	}

	l.graph.delete(label)
	delete(l.idToLabel, pointID)
	delete(l.labelToID, label)
	delete(l.vectors, label)
}

// RebuildFromVectors constructs a fresh index from scratch and writes it
// through [rebuild.Rebuilder], minting a new index_rebuild_uuid in
// collection_meta.json under the same lock (spec §4.2).
func (s *Store) RebuildFromVectors(l point.Layout, points []point.Point, dim, m, efConstruction int, space string) error {
	if err := s.fs.MkdirAll(l.Dir(), 0o750); err != nil {
		return fmt.Errorf("mkdir %q: %w", l.Dir(), err)
	}

	var nextLabel uint32

	return s.rebuilder.RebuildFile(l.RebuildLock(), l.HNSWFile(), func(tmp string) error {
		return s.writeFile(tmp, points, dim, &nextLabel)
	}, func() error {
		return s.mintMeta(l, len(points), dim, m, efConstruction, space, false)
	})
}

// SaveIncrementalUpdate serializes the current in-memory state (including
// soft-deletes) to disk and mints a new UUID, without discarding history
// the way a full rebuild does.
func (s *Store) SaveIncrementalUpdate(l point.Layout, loaded *Loaded) error {
	records := make([]record, 0, len(loaded.labelToID))

	for label, id := range loaded.labelToID {
		records = append(records, record{pointID: id, label: label, vector: loaded.vectors[label]})
	}

	return s.rebuilder.RebuildFile(l.RebuildLock(), l.HNSWFile(), func(tmp string) error {
		return s.writeRecords(tmp, records, loaded.dim, loaded.nextLabel)
	}, func() error {
		return s.mintMeta(l, len(records), loaded.dim, loaded.m, loaded.ef, "", false)
	})
}

// MarkStale writes is_stale=true into collection_meta.json (spec §4.2).
// [Store.Load] does not consult the flag: it still loads the file when one
// exists. The next RebuildFromVectors or SaveIncrementalUpdate clears it.
func (s *Store) MarkStale(l point.Layout) error {
	meta, err := point.LoadMeta(s.fs, l)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load meta: %w", err)
	}

	meta.HNSW.IsStale = true
	meta.HNSW.LastMarkedStale = time.Now().UTC()

	return point.SaveMeta(s.fs, s.writer, l, meta)
}

func (s *Store) writeFile(path string, points []point.Point, dim int, nextLabel *uint32) error {
	records := make([]record, 0, len(points))

	for _, p := range points {
		label := *nextLabel
		*nextLabel++
		records = append(records, record{pointID: p.ID, label: label, vector: p.Vector})
	}

	return s.writeRecords(path, records, dim, *nextLabel)
}

func (s *Store) writeRecords(path string, records []record, dim int, nextLabel uint32) error {
	buf := encodeHeader(dim, len(records), nextLabel)
	for _, r := range records {
		buf = encodeRecord(buf, r)
	}

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}

	if _, err := f.Write(buf); err != nil {
		_ = f.Close()

		return fmt.Errorf("write %q: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return fmt.Errorf("sync %q: %w", path, err)
	}

	return f.Close()
}

func (s *Store) mintMeta(l point.Layout, count, dim, m, ef int, space string, stale bool) error {
	meta, err := point.LoadMeta(s.fs, l)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load meta: %w", err)
	}

	if space == "" {
		space = meta.HNSW.Space
	}

	if m == 0 {
		m = meta.HNSW.M
	}

	if ef == 0 {
		ef = meta.HNSW.EfConstruction
	}

	meta.HNSW = point.HNSWMeta{
		Version:          meta.HNSW.Version + 1,
		IndexRebuildUUID: uuid.NewString(),
		VectorCount:      count,
		VectorDim:        dim,
		M:                m,
		EfConstruction:   ef,
		Space:            space,
		LastRebuild:      time.Now().UTC(),
		IsStale:          stale,
		IDMapping:        point.IDIndexFileName,
	}

	return point.SaveMeta(s.fs, s.writer, l, meta)
}
