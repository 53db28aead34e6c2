package daemon

import (
	"context"

	"github.com/localcode/indexer/internal/cache"
	"github.com/localcode/indexer/internal/watch"
)

// WatchStart begins a watch session on project (spec §4.8/§4.9). The
// "watch_lock" the spec describes is the cache write lock itself - no
// separate lock exists, since watch state is logically part of the cache
// entry's state for this project.
func (s *Service) WatchStart(ctx context.Context, project, collection string) error {
	l := s.layout(project, collection)
	entry := s.cacheMgr.GetOrCreate(project)

	return entry.Write(func(*cache.Stores) error {
		return s.watchCoord.Start(ctx, project, l, entry)
	})
}

// WatchStop stops the active watch session, if any, consulting and
// mutating watch state under that project's cache write lock.
func (s *Service) WatchStop() watch.Status {
	before := s.watchCoord.Status()
	if !before.Running {
		return watch.Status{}
	}

	entry := s.cacheMgr.GetOrCreate(before.Project)

	var status watch.Status

	_ = entry.Write(func(*cache.Stores) error {
		status = s.watchCoord.Stop()

		return nil
	})

	return status
}

// WatchStatus returns the current watch state and counters.
func (s *Service) WatchStatus() watch.Status {
	return s.watchCoord.Status()
}
