package fts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"

	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/rebuild"
)

// ErrUnavailable indicates the FTS index directory is missing, or present
// without a valid bleve marker file, per spec §4.4.
var ErrUnavailable = errors.New("fts: unavailable")

// metaMarkerName is the marker file this package writes at the root of
// every FTS index directory once a build completes successfully (spec §6
// layout: "tantivy_index/meta.json # FTS marker file"). Its absence means
// the directory is missing, foreign, or from a build that never finished.
const metaMarkerName = "meta.json"

// Searcher is a cached handle on an open bleve index, returned by
// [Store.Open]. It is safe for concurrent reads; the caller still owns
// serializing writes the way CacheEntry does for the other stores.
type Searcher struct {
	index bleve.Index
	dir   string
}

// Close releases the underlying bleve index.
func (s *Searcher) Close() error {
	if s == nil || s.index == nil {
		return nil
	}

	return s.index.Close()
}

// Store is a stateless façade over one project's FTS collections.
type Store struct {
	fs        fs.FS
	rebuilder *rebuild.Rebuilder
	writer    *fs.AtomicWriter
}

// New returns a Store backed by fsys. fsys is used for directory
// bookkeeping and collection_meta.json (spec §3); the bleve index and its
// meta.json marker file always go through the real OS filesystem, as bleve
// does not accept an injected filesystem.
func New(fsys fs.FS) *Store {
	return &Store{fs: fsys, rebuilder: rebuild.New(fsys), writer: fs.NewAtomicWriter(fsys)}
}

// Open opens the on-disk FTS index directory read-write (bleve's index
// handle serves both search and incremental mutation). Reports
// [ErrUnavailable] if the directory is missing or lacks a valid marker.
func (s *Store) Open(l point.Layout) (*Searcher, error) {
	dir := l.FTSDir()

	exists, err := s.fs.Exists(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", dir, err)
	}

	if !exists {
		return nil, ErrUnavailable
	}

	if _, err := os.Stat(filepath.Join(dir, metaMarkerName)); err != nil {
		return nil, ErrUnavailable
	}

	idx, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrUnavailable, dir, err)
	}

	return &Searcher{index: idx, dir: dir}, nil
}

// Search runs a full-text query and extracts match line/column/snippet
// from the stored document text - bleve locates candidate documents,
// but line/column accounting and snippet framing are done against the
// indexed text ourselves (spec §4.4).
func (s *Store) Search(searcher *Searcher, query string, opts SearchOptions) ([]Match, error) {
	if searcher == nil {
		return nil, ErrUnavailable
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	bq := buildQuery(query, opts)
	req := bleve.NewSearchRequest(bq)
	req.Size = limit
	req.Fields = []string{fieldPath, fieldText, fieldLanguage}

	result, err := searcher.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	var matches []Match

	for _, hit := range result.Hits {
		path, _ := hit.Fields[fieldPath].(string)
		text, _ := hit.Fields[fieldText].(string)
		lang, _ := hit.Fields[fieldLanguage].(string)

		if !pathPasses(path, opts) || !languagePasses(lang, opts) {
			continue
		}

		matches = append(matches, findMatches(path, text, query, opts)...)

		if len(matches) >= limit {
			matches = matches[:limit]

			break
		}
	}

	return matches, nil
}

// IncrementalAdd indexes a new document.
func (s *Store) IncrementalAdd(searcher *Searcher, doc Document) error {
	return searcher.index.Index(doc.Path, toBleveDoc(doc))
}

// IncrementalUpdate re-indexes an existing document (bleve's Index call is
// itself an upsert keyed by document id, so this is the same operation as
// IncrementalAdd).
func (s *Store) IncrementalUpdate(searcher *Searcher, doc Document) error {
	return searcher.index.Index(doc.Path, toBleveDoc(doc))
}

// IncrementalDelete removes a document by path.
func (s *Store) IncrementalDelete(searcher *Searcher, path string) error {
	return searcher.index.Delete(path)
}

// RebuildFromDocuments performs a full rebuild into a temp directory, then
// swaps it in atomically via [rebuild.Rebuilder.RebuildDir] and mints a
// fresh index_rebuild_uuid in collection_meta.json.
func (s *Store) RebuildFromDocuments(l point.Layout, docs []Document) error {
	if err := s.fs.MkdirAll(l.Dir(), 0o750); err != nil {
		return fmt.Errorf("mkdir %q: %w", l.Dir(), err)
	}

	return s.rebuilder.RebuildDir(l.RebuildLock(), l.FTSDir(), func(tmpDir string) error {
		mapping := bleve.NewIndexMapping()

		idx, err := bleve.New(tmpDir, mapping)
		if err != nil {
			return fmt.Errorf("create fts index %q: %w", tmpDir, err)
		}

		batch := idx.NewBatch()

		for i, doc := range docs {
			if err := batch.Index(doc.Path, toBleveDoc(doc)); err != nil {
				_ = idx.Close()

				return fmt.Errorf("batch index %q: %w", doc.Path, err)
			}

			if i > 0 && i%200 == 0 {
				if err := idx.Batch(batch); err != nil {
					_ = idx.Close()

					return fmt.Errorf("submit batch: %w", err)
				}

				batch = idx.NewBatch()
			}
		}

		if batch.Size() > 0 {
			if err := idx.Batch(batch); err != nil {
				_ = idx.Close()

				return fmt.Errorf("submit final batch: %w", err)
			}
		}

		if err := idx.Close(); err != nil {
			return fmt.Errorf("close fts index %q: %w", tmpDir, err)
		}

		return os.WriteFile(filepath.Join(tmpDir, metaMarkerName), []byte(`{"document_count":`+fmt.Sprint(len(docs))+`}`), 0o644)
	}, func() error {
		return s.mintMeta(l, len(docs))
	})
}

func (s *Store) mintMeta(l point.Layout, count int) error {
	meta, err := point.LoadMeta(s.fs, l)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load meta: %w", err)
	}

	meta.FTS = point.FTSMeta{
		Version:          meta.FTS.Version + 1,
		IndexRebuildUUID: uuid.NewString(),
		DocumentCount:    count,
		LastRebuild:      time.Now().UTC(),
	}

	return point.SaveMeta(s.fs, s.writer, l, meta)
}

func pathPasses(path string, opts SearchOptions) bool {
	for _, excl := range opts.ExcludePaths {
		if strings.Contains(path, excl) {
			return false
		}
	}

	if len(opts.PathFilters) == 0 {
		return true
	}

	for _, f := range opts.PathFilters {
		if strings.Contains(path, f) {
			return true
		}
	}

	return false
}

func languagePasses(lang string, opts SearchOptions) bool {
	for _, l := range opts.ExcludeLanguages {
		if strings.EqualFold(l, lang) {
			return false
		}
	}

	if len(opts.Languages) == 0 {
		return true
	}

	for _, l := range opts.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}

	return false
}
