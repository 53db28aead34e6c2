package rpcserver

import (
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/store/fts"
)

// queryRequest is the common shape of query/query_fts/query_hybrid/
// query_temporal requests; unused fields are simply left zero by the
// client for methods that don't need them.
type queryRequest struct {
	Project    string            `json:"project"`
	Query      string            `json:"query"`
	Limit      int               `json:"limit,omitempty"`
	Filters    daemon.QueryFilters `json:"filters"`
	TimeRange  string            `json:"time_range,omitempty"`
	FTSOptions fts.SearchOptions `json:"fts_options,omitempty"`
}

type queryFTSResponse struct {
	Results []fts.Match `json:"results"`
}

type indexRequest struct {
	Project string          `json:"project"`
	Params  indexing.Params `json:"params"`
}

type cleanRequest struct {
	Project string             `json:"project"`
	Params  daemon.CleanParams `json:"params"`
}

type watchStartRequest struct {
	Project    string `json:"project"`
	Collection string `json:"collection,omitempty"`
}

type statusRequest struct {
	Project string `json:"project"`
}
