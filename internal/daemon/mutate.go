package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/point"
)

// Index runs one indexing session (spec §4.9/§4.7). Cache invalidation
// brackets the session: IndexingCoordinator.Start invalidates atomically
// with the Idle->Running transition on entry; this method invalidates
// again on exit so readers never see the stale pre-build state once a
// build completes, matching spec §4.9's "on exit: invalidate cache again
// (post-build)".
func (s *Service) Index(ctx context.Context, project string, params indexing.Params, progress collab.ProgressFunc) (indexing.Result, error) {
	l := s.layout(project, params.Collection)
	entry := s.cacheMgr.GetOrCreate(project)

	deps := indexing.Deps{
		Chunker:  s.deps.Chunker,
		Embedder: s.deps.Embedder,
		ReadFile: func(path string) ([]byte, error) { return s.fs.ReadFile(s.resolvePath(project, path)) },
		PointID:  s.deps.PointID,
	}

	result, err := s.indexCoord.Start(ctx, entry, l, deps, params, progress)

	invalidateErr := entry.Write(func(*cache.Stores) error {
		entry.Invalidate()

		return nil
	})
	if err == nil && invalidateErr != nil {
		err = invalidateErr
	}

	if err != nil {
		return indexing.Result{}, err
	}

	if addErr := point.AddCollection(s.fs, project, l.Name); addErr != nil {
		s.log.Warn().Err(addErr).Str("project", project).Str("collection", l.Name).Msg("failed to record collection in registry")
	}

	return result, nil
}

// CleanParams scopes a clean/clean_data call to one collection (default if
// empty).
type CleanParams struct {
	Collection string `json:"collection,omitempty"`
}

// Clean deletes a collection's vectors (the HNSW and ID indexes) but keeps
// the FTS index and the collection directory itself, invalidating the
// cache BEFORE the filesystem mutation - the ordering spec §4.9 calls
// "non-negotiable".
func (s *Service) Clean(project string, params CleanParams) error {
	l := s.layout(project, params.Collection)
	entry := s.cacheMgr.GetOrCreate(project)

	if err := entry.Write(func(*cache.Stores) error { entry.Invalidate(); return nil }); err != nil {
		return err
	}

	if err := s.fs.Remove(l.HNSWFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clean: remove %q: %w", l.HNSWFile(), err)
	}

	if err := s.fs.Remove(l.IDIndexFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clean: remove %q: %w", l.IDIndexFile(), err)
	}

	meta, err := point.LoadMeta(s.fs, l)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clean: load meta: %w", err)
	}

	meta.HNSW = point.HNSWMeta{}

	return point.SaveMeta(s.fs, s.writer, l, meta)
}

// CleanData deletes the entire collection directory (vectors, FTS index,
// and metadata), again invalidating the cache first.
func (s *Service) CleanData(project string, params CleanParams) error {
	l := s.layout(project, params.Collection)
	entry := s.cacheMgr.GetOrCreate(project)

	if err := entry.Write(func(*cache.Stores) error { entry.Invalidate(); return nil }); err != nil {
		return err
	}

	if err := s.fs.RemoveAll(l.Dir()); err != nil {
		return fmt.Errorf("clean_data: remove %q: %w", l.Dir(), err)
	}

	return point.RemoveCollection(s.fs, project, l.Name)
}
