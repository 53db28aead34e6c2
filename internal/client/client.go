package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/indexing"
	"github.com/localcode/indexer/internal/rpcproto"
	"github.com/localcode/indexer/internal/store/fts"
	"github.com/localcode/indexer/internal/watch"
	"github.com/localcode/indexer/internal/xerrors"
)

// Client is a connection to a running codeindexd over its Unix socket. It
// implements [API] by marshalling each call into an [rpcproto.Message]
// and waiting for the matching response, while a single background reader
// goroutine dispatches any interleaved progress notifications to the
// call that requested them (spec §4.10).
type Client struct {
	connMu sync.RWMutex
	conn   net.Conn
	w      *rpcproto.Writer

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]*pendingCall

	// reconnect and maxRestarts, when set by Dial, let call retry a
	// connection-closed failure by respawning and redialing the daemon
	// (spec §4.11) instead of surfacing it immediately.
	reconnect   func(ctx context.Context) (net.Conn, error)
	maxRestarts int
}

type pendingCall struct {
	resp     chan rpcproto.Message
	progress collab.ProgressFunc
}

// newClient wraps an already-connected socket. Callers use [Dial], not
// this directly.
func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		w:       rpcproto.NewWriter(conn),
		pending: make(map[uint64]*pendingCall),
	}

	go c.readLoop()

	return c
}

func (c *Client) readLoop() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	r := rpcproto.NewReader(conn)

	for {
		msg, err := r.ReadMessage()
		if err != nil {
			c.failAllPending(fmt.Errorf("%w: %v", errConnectionClosed, err))
			return
		}

		c.pendingMu.Lock()
		call, ok := c.pending[msg.ID]
		c.pendingMu.Unlock()

		if !ok {
			continue
		}

		switch msg.Kind {
		case rpcproto.KindNotification:
			if call.progress != nil {
				deliverProgress(call.progress, msg)
			}
		case rpcproto.KindResponse:
			call.resp <- msg
		}
	}
}

// connectionClosedKind marks the error failAllPending delivers locally; it
// is not one of the daemon's error kinds, so a daemon-reported
// "Unavailable" error is never mistaken for a dropped connection.
const connectionClosedKind = "ConnectionClosed"

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, call := range c.pending {
		call.resp <- rpcproto.Message{Error: &rpcproto.ErrorPayload{Kind: connectionClosedKind, Message: fmt.Sprintf("connection closed: %v", err)}}
		delete(c.pending, id)
	}
}

type progressPayload struct {
	Current         int                 `json:"current"`
	Total           int                 `json:"total"`
	Path            string              `json:"path"`
	Info            string              `json:"info"`
	ConcurrentFiles []collab.FileStatus `json:"concurrent_files,omitempty"`
}

func deliverProgress(fn collab.ProgressFunc, msg rpcproto.Message) {
	var p progressPayload
	if err := rpcproto.DecodePayload(msg, &p); err != nil {
		return
	}

	fn(p.Current, p.Total, p.Path, p.Info, p.ConcurrentFiles)
}

// call sends method/req, waits for the response, and decodes it into
// result (nil if the caller doesn't need the payload). progress, if
// non-nil, receives any notifications tagged with this call's ID before
// the final response arrives. A connection-closed failure is retried by
// respawning+redialing up to maxRestarts times (spec §4.11) before it is
// surfaced to the caller.
func (c *Client) call(method string, req any, result any, progress collab.ProgressFunc) error {
	var lastErr error

	attempts := 1
	if c.reconnect != nil {
		attempts += c.maxRestarts
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := c.doCall(method, req, result, progress)
		if err == nil {
			return nil
		}

		lastErr = err

		if !errors.Is(err, errConnectionClosed) || c.reconnect == nil {
			return err
		}

		if rerr := c.restart(); rerr != nil {
			return xerrors.Wrap(fmt.Errorf("restart after connection closed: %w", rerr))
		}
	}

	return lastErr
}

func (c *Client) doCall(method string, req any, result any, progress collab.ProgressFunc) error {
	payload, err := rpcproto.EncodePayload(req)
	if err != nil {
		return xerrors.Wrap(err)
	}

	id := c.nextID.Add(1)

	call := &pendingCall{resp: make(chan rpcproto.Message, 1), progress: progress}

	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.connMu.RLock()
	w := c.w
	c.connMu.RUnlock()

	c.writeMu.Lock()
	werr := w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindRequest, ID: id, Method: method, Payload: payload})
	c.writeMu.Unlock()

	if werr != nil {
		return fmt.Errorf("%w: %v", errConnectionClosed, werr)
	}

	resp := <-call.resp

	if resp.Error != nil {
		if resp.Error.Kind == connectionClosedKind {
			return fmt.Errorf("%w: %s", errConnectionClosed, resp.Error.Message)
		}

		return xerrors.Wrap(fmt.Errorf("%s", resp.Error.Message))
	}

	if result == nil || len(resp.Payload) == 0 {
		return nil
	}

	return rpcproto.DecodePayload(resp, result)
}

// restart respawns/redials the daemon and swaps in the new connection,
// restarting the reader goroutine. Existing in-flight calls, if any, were
// already failed by the old readLoop before this runs.
func (c *Client) restart() error {
	conn, err := c.reconnect(context.Background())
	if err != nil {
		return err
	}

	c.connMu.Lock()
	_ = c.conn.Close()
	c.conn = conn
	c.w = rpcproto.NewWriter(conn)
	c.connMu.Unlock()

	go c.readLoop()

	return nil
}

// Close closes the underlying socket connection.
func (c *Client) Close() error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return c.conn.Close()
}

type queryWire struct {
	Project    string              `json:"project"`
	Query      string              `json:"query"`
	Limit      int                 `json:"limit,omitempty"`
	Filters    daemon.QueryFilters `json:"filters"`
	TimeRange  string              `json:"time_range,omitempty"`
	FTSOptions fts.SearchOptions   `json:"fts_options,omitempty"`
}

func (c *Client) Query(ctx context.Context, project, query string, limit int, filters daemon.QueryFilters) (daemon.QueryResult, error) {
	var out daemon.QueryResult
	err := c.call(rpcproto.MethodQuery, queryWire{Project: project, Query: query, Limit: limit, Filters: filters}, &out, nil)

	return out, err
}

func (c *Client) QueryFTS(project, query string, filters daemon.QueryFilters, opts fts.SearchOptions) ([]fts.Match, error) {
	var out struct {
		Results []fts.Match `json:"results"`
	}

	err := c.call(rpcproto.MethodQueryFTS, queryWire{Project: project, Query: query, Filters: filters, FTSOptions: opts}, &out, nil)

	return out.Results, err
}

func (c *Client) QueryHybrid(ctx context.Context, project, query string, limit int, filters daemon.QueryFilters, opts fts.SearchOptions) (daemon.HybridResult, error) {
	var out daemon.HybridResult
	err := c.call(rpcproto.MethodQueryHybrid, queryWire{Project: project, Query: query, Limit: limit, Filters: filters, FTSOptions: opts}, &out, nil)

	return out, err
}

func (c *Client) QueryTemporal(ctx context.Context, project, query, timeRange string, limit int, filters daemon.QueryFilters) (daemon.QueryResult, error) {
	var out daemon.QueryResult
	err := c.call(rpcproto.MethodQueryTemporal, queryWire{Project: project, Query: query, Limit: limit, Filters: filters, TimeRange: timeRange}, &out, nil)

	return out, err
}

func (c *Client) Index(ctx context.Context, project string, params indexing.Params, progress collab.ProgressFunc) (indexing.Result, error) {
	var out indexing.Result

	req := struct {
		Project string          `json:"project"`
		Params  indexing.Params `json:"params"`
	}{Project: project, Params: params}

	err := c.call(rpcproto.MethodIndex, req, &out, progress)

	return out, err
}

func (c *Client) Clean(project string, params daemon.CleanParams) error {
	req := struct {
		Project string             `json:"project"`
		Params  daemon.CleanParams `json:"params"`
	}{Project: project, Params: params}

	return c.call(rpcproto.MethodClean, req, nil, nil)
}

func (c *Client) CleanData(project string, params daemon.CleanParams) error {
	req := struct {
		Project string             `json:"project"`
		Params  daemon.CleanParams `json:"params"`
	}{Project: project, Params: params}

	return c.call(rpcproto.MethodCleanData, req, nil, nil)
}

func (c *Client) WatchStart(ctx context.Context, project, collection string) error {
	req := struct {
		Project    string `json:"project"`
		Collection string `json:"collection,omitempty"`
	}{Project: project, Collection: collection}

	return c.call(rpcproto.MethodWatchStart, req, nil, nil)
}

func (c *Client) WatchStop() watch.Status {
	var out watch.Status
	_ = c.call(rpcproto.MethodWatchStop, struct{}{}, &out, nil)

	return out
}

func (c *Client) WatchStatus() watch.Status {
	var out watch.Status
	_ = c.call(rpcproto.MethodWatchStatus, struct{}{}, &out, nil)

	return out
}

func (c *Client) Status(project string) (daemon.StatusResult, error) {
	var out daemon.StatusResult

	req := struct {
		Project string `json:"project"`
	}{Project: project}

	err := c.call(rpcproto.MethodStatus, req, &out, nil)

	return out, err
}

func (c *Client) ClearCache() { _ = c.call(rpcproto.MethodClearCache, struct{}{}, nil, nil) }

func (c *Client) Shutdown() { _ = c.call(rpcproto.MethodShutdown, struct{}{}, nil, nil) }
