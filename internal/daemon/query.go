package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/store/hnsw"
	"github.com/localcode/indexer/internal/store/idindex"
	"github.com/localcode/indexer/internal/xerrors"
)

// Payload is the per-result metadata the spec's data model attaches to a
// point (§3). Only Path survives on disk today: the HNSW/ID-index binary
// formats this transformation built (spec §4.2/§4.3) persist
// id<->vector and id<->path, not the richer line-range/language fields a
// chunk carries transiently during indexing - a documented simplification
// (see DESIGN.md) rather than an oversight.
type Payload struct {
	Path string `json:"path"`
}

// SemanticResult is one hit from a semantic (HNSW) query.
type SemanticResult struct {
	PointID string  `json:"point_id"`
	Payload Payload `json:"payload"`
	Score   float64 `json:"score"`
}

// Timing is the per-query latency breakdown (spec §4.9).
type Timing struct {
	EmbeddingMS    float64 `json:"embedding_ms"`
	HNSWLoadMS     float64 `json:"hnsw_load_ms"`
	IDLoadMS       float64 `json:"id_load_ms"`
	VectorSearchMS float64 `json:"vector_search_ms"`
	TotalMS        float64 `json:"total_ms"`
	Path           string  `json:"path"` // "hnsw" | "rebuild"
}

// QueryResult is the response shape for Query and QueryTemporal.
type QueryResult struct {
	Results []SemanticResult `json:"results"`
	Timing  Timing           `json:"timing"`
}

// QueryFilters narrows a semantic query. Collection defaults to
// [point.DefaultCollection] when empty.
type QueryFilters struct {
	Collection string `json:"collection,omitempty"`
}

// HybridItem is one entry in a merged semantic+FTS result set.
type HybridItem struct {
	Kind  string  `json:"kind"` // "semantic" | "fts"
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// HybridResult is query_hybrid's response (spec §4.9).
type HybridResult struct {
	Results []HybridItem `json:"results"`
}

// ensureLoaded implements "ensure_cache_loaded": a lock-free check under
// the read lock, and only on a miss or detected staleness does it escalate
// to the write lock to actually (re)load the stores, re-checking under that
// lock before touching anything - the same double-checked pattern
// EvictionThread's sweep uses (spec §4.6), applied here to the load path
// instead of the evict path. Returns the hnsw/id load latencies so callers
// can report zero on a cache hit (spec §8 S1).
func (s *Service) ensureLoaded(entry *cache.Entry, l point.Layout) (hnswMs, idMs float64, err error) {
	if !s.needsLoad(entry, l) {
		return 0, 0, nil
	}

	writeErr := entry.Write(func(st *cache.Stores) error {
		if !s.staleUnlocked(entry, l, st) {
			return nil
		}

		entry.Invalidate()

		t0 := time.Now()

		loadedHNSW, herr := s.hnsw.Load(l)
		hnswMs = ms(t0)

		if herr != nil && !errors.Is(herr, hnsw.ErrUnavailable) {
			return fmt.Errorf("load hnsw index: %w", herr)
		}

		t1 := time.Now()

		loadedID, ierr := s.idIndex.Load(l)
		idMs = ms(t1)

		if ierr != nil && !errors.Is(ierr, idindex.ErrUnavailable) {
			return fmt.Errorf("load id index: %w", ierr)
		}

		var (
			searcher     *fts.Searcher
			ftsAvailable bool
		)

		if opened, ferr := s.fts.Open(l); ferr == nil {
			searcher = opened
			ftsAvailable = true
		}

		st.HNSW = loadedHNSW
		st.IDIndex = loadedID
		st.FTS = searcher

		meta, merr := point.LoadMeta(s.fs, l)
		if merr != nil && !os.IsNotExist(merr) {
			return fmt.Errorf("load collection meta: %w", merr)
		}

		entry.SetVersion(meta.HNSW.IndexRebuildUUID, ftsAvailable)

		return nil
	})

	return hnswMs, idMs, writeErr
}

func (s *Service) needsLoad(entry *cache.Entry, l point.Layout) bool {
	var need bool

	_ = entry.Read(func(st cache.Stores) error {
		need = st.HNSW == nil && st.IDIndex == nil && st.FTS == nil

		if !need {
			if stale, err := entry.IsStaleAfterRebuild(s.fs, l); err == nil && stale {
				need = true
			}
		}

		return nil
	})

	return need
}

// staleUnlocked re-evaluates the same condition as needsLoad, but against
// the *Stores already under the caller's write lock - required because a
// concurrent writer may have loaded (or reloaded) the entry between the
// lock-free check and this one.
func (s *Service) staleUnlocked(entry *cache.Entry, l point.Layout, st *cache.Stores) bool {
	if st.HNSW == nil && st.IDIndex == nil && st.FTS == nil {
		return true
	}

	stale, err := entry.IsStaleAfterRebuild(s.fs, l)

	return err == nil && stale
}

// Query runs a semantic (HNSW) search (spec §4.9). The lock scope covers
// both embedding generation and vector search per spec §4.5's invariant -
// it is acceptable because query-string embedding is milliseconds and the
// lock held here is the reader lock (spec §5).
func (s *Service) Query(ctx context.Context, project, queryText string, limit int, filters QueryFilters) (QueryResult, error) {
	l := s.layout(project, filters.Collection)
	entry := s.cacheMgr.GetOrCreate(project)

	hnswMs, idMs, err := s.ensureLoaded(entry, l)
	if err != nil {
		return QueryResult{}, xerrors.Wrap(err, xerrors.WithProject(project), xerrors.WithCollection(l.Name))
	}

	start := time.Now()

	var out QueryResult

	readErr := entry.Read(func(st cache.Stores) error {
		embedStart := time.Now()

		vectors, eerr := s.deps.Embedder.Embed(ctx, []string{queryText})
		embedMs := ms(embedStart)

		if eerr != nil {
			return xerrors.Wrap(fmt.Errorf("%w: %w", xerrors.ErrExternalFailure, eerr), xerrors.WithProject(project))
		}

		if len(vectors) == 0 {
			return xerrors.Wrap(xerrors.ErrInvalidInput, xerrors.WithProject(project))
		}

		if st.HNSW == nil {
			out = QueryResult{Timing: Timing{EmbeddingMS: embedMs, HNSWLoadMS: hnswMs, IDLoadMS: idMs, Path: "rebuild"}}

			return nil
		}

		k := limit
		if k <= 0 {
			k = 10
		}

		searchStart := time.Now()

		hits, serr := s.hnsw.Query(st.HNSW, vectors[0], k)
		searchMs := ms(searchStart)

		if serr != nil {
			return fmt.Errorf("vector search: %w", serr)
		}

		results := make([]SemanticResult, 0, len(hits))

		for _, h := range hits {
			payload := Payload{}

			if st.IDIndex != nil {
				if p, ok := st.IDIndex.Path(h.PointID); ok {
					payload.Path = p
				}
			}

			results = append(results, SemanticResult{PointID: h.PointID, Payload: payload, Score: 1 / (1 + float64(h.Distance))})
		}

		out = QueryResult{
			Results: results,
			Timing:  Timing{EmbeddingMS: embedMs, HNSWLoadMS: hnswMs, IDLoadMS: idMs, VectorSearchMS: searchMs, Path: "hnsw"},
		}

		return nil
	})
	if readErr != nil {
		return QueryResult{}, readErr
	}

	out.Timing.TotalMS = ms(start)

	return out, nil
}

// QueryFTS runs a full-text search (spec §4.9), under the same locking
// discipline as Query.
func (s *Service) QueryFTS(project, queryText string, filters QueryFilters, opts fts.SearchOptions) ([]fts.Match, error) {
	l := s.layout(project, filters.Collection)
	entry := s.cacheMgr.GetOrCreate(project)

	if _, _, err := s.ensureLoaded(entry, l); err != nil {
		return nil, xerrors.Wrap(err, xerrors.WithProject(project), xerrors.WithCollection(l.Name))
	}

	var out []fts.Match

	readErr := entry.Read(func(st cache.Stores) error {
		if st.FTS == nil {
			return xerrors.Wrap(xerrors.ErrUnavailable, xerrors.WithProject(project), xerrors.WithCollection(l.Name))
		}

		matches, err := s.fts.Search(st.FTS, queryText, opts)
		if err != nil {
			return err
		}

		out = matches

		return nil
	})

	return out, readErr
}

// QueryHybrid merges semantic and full-text result sets with a simple
// monotonic score normalisation (spec §9's Open Question: any documented
// monotonic combination is acceptable). Semantic scores are already in
// (0,1]; FTS hits are scored by 1/(1+rank) so earlier hits outrank later
// ones, then both lists are merged and sorted by score descending.
func (s *Service) QueryHybrid(ctx context.Context, project, queryText string, limit int, filters QueryFilters, ftsOpts fts.SearchOptions) (HybridResult, error) {
	semantic, semErr := s.Query(ctx, project, queryText, limit, filters)

	ftsOpts.Limit = limit

	matches, ftsErr := s.QueryFTS(project, queryText, filters, ftsOpts)

	if semErr != nil && ftsErr != nil {
		return HybridResult{}, semErr
	}

	var items []HybridItem

	for _, r := range semantic.Results {
		items = append(items, HybridItem{Kind: "semantic", Path: r.Payload.Path, Score: r.Score})
	}

	for i, m := range matches {
		items = append(items, HybridItem{Kind: "fts", Path: m.Path, Score: 1 / float64(1+i)})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return HybridResult{Results: items}, nil
}

// normalizeTimeRange converts the RPC-level time_range string into an
// inclusive date tuple (spec §4.9, §8 property 7). Passing the raw string
// through to a date parser caused a previously-shipped runtime crash on
// the literal "all" value, so this conversion is mandatory and happens
// before anything else in QueryTemporal.
func normalizeTimeRange(raw string) (from, to time.Time, err error) {
	if raw == "all" {
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2100, 12, 31, 23, 59, 59, 0, time.UTC), nil
	}

	parts := strings.SplitN(raw, "..", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, xerrors.Wrap(fmt.Errorf("%w: time_range %q must be \"all\" or \"YYYY-MM-DD..YYYY-MM-DD\"", xerrors.ErrInvalidInput, raw))
	}

	from, ferr := time.Parse("2006-01-02", parts[0])
	to, terr := time.Parse("2006-01-02", parts[1])

	if ferr != nil || terr != nil {
		return time.Time{}, time.Time{}, xerrors.Wrap(fmt.Errorf("%w: time_range %q has an invalid date", xerrors.ErrInvalidInput, raw))
	}

	return from, to.Add(24*time.Hour - time.Nanosecond), nil
}

// QueryTemporal runs a time-filtered semantic query (spec §4.9). The
// on-disk point formats carry no commit/index timestamp of their own (see
// Payload's doc comment), so filtering falls back to the indexed file's
// current mtime on the project tree - a best-effort proxy documented as
// an Open Question resolution rather than a full temporal index.
func (s *Service) QueryTemporal(ctx context.Context, project, queryText, timeRange string, limit int, filters QueryFilters) (QueryResult, error) {
	from, to, err := normalizeTimeRange(timeRange)
	if err != nil {
		return QueryResult{}, err
	}

	result, err := s.Query(ctx, project, queryText, limit, filters)
	if err != nil {
		return QueryResult{}, err
	}

	filtered := result.Results[:0]

	for _, r := range result.Results {
		if r.Payload.Path == "" {
			filtered = append(filtered, r)

			continue
		}

		info, statErr := os.Stat(filepath.Join(project, r.Payload.Path))
		if statErr != nil {
			filtered = append(filtered, r)

			continue
		}

		if !info.ModTime().Before(from) && !info.ModTime().After(to) {
			filtered = append(filtered, r)
		}
	}

	result.Results = filtered

	return result, nil
}
