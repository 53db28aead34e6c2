package client

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/watch"
)

// StandaloneNotice is the user-visible message cmd/codeindex prints when
// it falls back to running in-process rather than through a daemon (spec
// §4.11: the fallback must be visible, not silent, so a user isn't
// surprised cold-start latency returned).
const StandaloneNotice = "codeindexd unavailable; running without a background daemon (no caching between commands)"

// Standalone runs the same [daemon.Service] a daemon would, in-process,
// for the single command invocation that constructed it. It satisfies
// [API] so callers don't need to care which fallback path they got.
type Standalone struct {
	svc *daemon.Service
}

// NewStandalone wires a Service directly over fsys, bypassing the socket
// entirely.
func NewStandalone(fsys fs.FS, deps daemon.Deps, log zerolog.Logger) *Standalone {
	return &Standalone{svc: daemon.New(fsys, deps, 0, log)}
}

func (s *Standalone) Query(ctx context.Context, project, query string, limit int, filters daemon.QueryFilters) (daemon.QueryResult, error) {
	return s.svc.Query(ctx, project, query, limit, filters)
}

func (s *Standalone) QueryFTS(project, query string, filters daemon.QueryFilters, opts fts.SearchOptions) ([]fts.Match, error) {
	return s.svc.QueryFTS(project, query, filters, opts)
}

func (s *Standalone) QueryHybrid(ctx context.Context, project, query string, limit int, filters daemon.QueryFilters, opts fts.SearchOptions) (daemon.HybridResult, error) {
	return s.svc.QueryHybrid(ctx, project, query, limit, filters, opts)
}

func (s *Standalone) QueryTemporal(ctx context.Context, project, query, timeRange string, limit int, filters daemon.QueryFilters) (daemon.QueryResult, error) {
	return s.svc.QueryTemporal(ctx, project, query, timeRange, limit, filters)
}

func (s *Standalone) Index(ctx context.Context, project string, params indexing.Params, progress collab.ProgressFunc) (indexing.Result, error) {
	return s.svc.Index(ctx, project, params, progress)
}

func (s *Standalone) Clean(project string, params daemon.CleanParams) error {
	return s.svc.Clean(project, params)
}

func (s *Standalone) CleanData(project string, params daemon.CleanParams) error {
	return s.svc.CleanData(project, params)
}

func (s *Standalone) WatchStart(ctx context.Context, project, collection string) error {
	return s.svc.WatchStart(ctx, project, collection)
}

func (s *Standalone) WatchStop() watch.Status { return s.svc.WatchStop() }

func (s *Standalone) WatchStatus() watch.Status { return s.svc.WatchStatus() }

func (s *Standalone) Status(project string) (daemon.StatusResult, error) { return s.svc.Status(project) }

func (s *Standalone) ClearCache() { s.svc.ClearCache() }

func (s *Standalone) Shutdown() { s.svc.Shutdown() }

// Close is a no-op: a Standalone owns no network resource, only the
// in-memory Service state, which is discarded with the process.
func (s *Standalone) Close() error { return nil }
