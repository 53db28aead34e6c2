// Package client implements the codeindex CLI's connection to a
// codeindexd daemon (spec §4.11): discover an existing socket, spawn a
// daemon if none answers, retry the connection with backoff, and fall
// back to an in-process standalone pipeline if a daemon can never be
// reached. Both [Client] and [Standalone] satisfy [API], so cmd/codeindex
// can use either without knowing which one it got.
package client

import (
	"context"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/watch"
)

// API is the full DaemonService surface (spec §4.9) as seen by a caller,
// regardless of whether requests cross the Unix socket or run in-process.
type API interface {
	Query(ctx context.Context, project, query string, limit int, filters daemon.QueryFilters) (daemon.QueryResult, error)
	QueryFTS(project, query string, filters daemon.QueryFilters, opts fts.SearchOptions) ([]fts.Match, error)
	QueryHybrid(ctx context.Context, project, query string, limit int, filters daemon.QueryFilters, opts fts.SearchOptions) (daemon.HybridResult, error)
	QueryTemporal(ctx context.Context, project, query, timeRange string, limit int, filters daemon.QueryFilters) (daemon.QueryResult, error)
	Index(ctx context.Context, project string, params indexing.Params, progress collab.ProgressFunc) (indexing.Result, error)
	Clean(project string, params daemon.CleanParams) error
	CleanData(project string, params daemon.CleanParams) error
	WatchStart(ctx context.Context, project, collection string) error
	WatchStop() watch.Status
	WatchStatus() watch.Status
	Status(project string) (daemon.StatusResult, error)
	ClearCache()
	Shutdown()
	Close() error
}
