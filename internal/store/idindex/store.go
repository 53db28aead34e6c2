package idindex

import (
	"errors"
	"fmt"
	"os"

	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/rebuild"
)

// ErrUnavailable indicates no id_index.bin exists yet for this collection.
var ErrUnavailable = errors.New("idindex: unavailable")

// Loaded is one in-memory snapshot of a collection's id_index.bin.
type Loaded struct {
	mapping   *mapping
	idToPath  map[string]string
}

// Close releases the mmap mapping.
func (l *Loaded) Close() error {
	if l == nil || l.mapping == nil {
		return nil
	}

	return l.mapping.Close()
}

// Path looks up the relative path for a point id.
func (l *Loaded) Path(pointID string) (string, bool) {
	p, ok := l.idToPath[pointID]

	return p, ok
}

// Has reports whether pointID is present in the loaded index.
func (l *Loaded) Has(pointID string) bool {
	if l == nil {
		return false
	}

	_, ok := l.idToPath[pointID]

	return ok
}

// Entries returns a copy of the point_id -> path mapping. Since IDIndexStore
// has no incremental write path, callers that need to fold in a handful of
// new entries (the watch path, for one) start from this snapshot and pass
// the merged result to a fresh [Store.Rebuild].
func (l *Loaded) Entries() map[string]string {
	if l == nil {
		return map[string]string{}
	}

	out := make(map[string]string, len(l.idToPath))
	for k, v := range l.idToPath {
		out[k] = v
	}

	return out
}

// Store is a stateless façade over one project's IDIndex collections.
type Store struct {
	fs        fs.FS
	rebuilder *rebuild.Rebuilder
	writer    *fs.AtomicWriter
}

// New returns a Store backed by fsys.
func New(fsys fs.FS) *Store {
	return &Store{fs: fsys, rebuilder: rebuild.New(fsys), writer: fs.NewAtomicWriter(fsys)}
}

// Load mmaps id_index.bin. Returns [ErrUnavailable] if it does not exist.
func (s *Store) Load(l point.Layout) (*Loaded, error) {
	exists, err := s.fs.Exists(l.IDIndexFile())
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", l.IDIndexFile(), err)
	}

	if !exists {
		return nil, ErrUnavailable
	}

	m, err := mapFile(l.IDIndexFile())
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", l.IDIndexFile(), err)
	}

	count, err := decodeHeader(m.data)
	if err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("decode header: %w", err)
	}

	entries, err := decodeAllEntries(m.data, count)
	if err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("decode entries: %w", err)
	}

	idToPath := make(map[string]string, len(entries))
	for _, e := range entries {
		idToPath[e.pointID] = e.path
	}

	return &Loaded{mapping: m, idToPath: idToPath}, nil
}

// Rebuild replaces id_index.bin in full from points and mints a fresh
// index_rebuild_uuid. There is no incremental path (spec §4.3): any
// addition, update, or deletion triggers a full rebuild.
func (s *Store) Rebuild(l point.Layout, points []point.Point) error {
	if err := s.fs.MkdirAll(l.Dir(), 0o750); err != nil {
		return fmt.Errorf("mkdir %q: %w", l.Dir(), err)
	}

	return s.rebuilder.RebuildFile(l.RebuildLock(), l.IDIndexFile(), func(tmp string) error {
		return s.write(tmp, points)
	}, func() error {
		return s.mintMeta(l)
	})
}

func (s *Store) write(path string, points []point.Point) error {
	buf := encodeHeader(len(points))
	for _, p := range points {
		buf = encodeEntry(buf, entry{pointID: p.ID, path: p.Path})
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

func (s *Store) mintMeta(l point.Layout) error {
	meta, err := point.LoadMeta(s.fs, l)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load meta: %w", err)
	}

	// id_index has no dedicated meta section in collection_meta.json; its
	// presence is implied by hnsw_index.id_mapping, so only touch the file
	// if the field isn't already set, to avoid clobbering a concurrent
	// HNSW rebuild's fields.
	if meta.HNSW.IDMapping == "" {
		meta.HNSW.IDMapping = point.IDIndexFileName

		return point.SaveMeta(s.fs, s.writer, l, meta)
	}

	return nil
}
