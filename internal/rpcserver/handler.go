package rpcserver

import (
	"context"
	"net"
	"sync"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/rpcproto"
	"github.com/localcode/indexer/internal/xerrors"
)

// progressNotification is the wire shape of an "index" progress
// notification streamed over the same connection as the in-flight
// request (spec §4.10's bidirectional framing).
type progressNotification struct {
	Current         int                   `json:"current"`
	Total           int                   `json:"total"`
	Path            string                `json:"path"`
	Info            string                `json:"info"`
	ConcurrentFiles []collab.FileStatus   `json:"concurrent_files,omitempty"`
}

// connHandler serializes writes to one connection: the request/response
// for whatever call is in flight and any progress notifications it emits
// share the same underlying Writer, which is not safe for concurrent use
// on its own.
type connHandler struct {
	s    *Server
	conn net.Conn
	w    *rpcproto.Writer
	mu   sync.Mutex
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.untrackConn(conn)
	defer conn.Close()

	h := &connHandler{s: s, conn: conn, w: rpcproto.NewWriter(conn)}
	r := rpcproto.NewReader(conn)

	for {
		msg, err := r.ReadMessage()
		if err != nil {
			return
		}

		if msg.Kind != rpcproto.KindRequest {
			continue
		}

		h.dispatch(ctx, msg)
	}
}

func (h *connHandler) write(msg rpcproto.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.w.WriteMessage(msg)
}

func (h *connHandler) dispatch(ctx context.Context, req rpcproto.Message) {
	payload, err := h.call(ctx, req)

	resp := rpcproto.Message{Kind: rpcproto.KindResponse, ID: req.ID, Method: req.Method}

	if err != nil {
		resp.Error = &rpcproto.ErrorPayload{Kind: xerrors.Kind(err), Message: err.Error()}
	} else if payload != nil {
		encoded, encErr := rpcproto.EncodePayload(payload)
		if encErr != nil {
			resp.Error = &rpcproto.ErrorPayload{Kind: "internal", Message: encErr.Error()}
		} else {
			resp.Payload = encoded
		}
	}

	_ = h.write(resp)
}

// call routes req to the corresponding Service method and returns the
// payload to encode into the response, or an error.
func (h *connHandler) call(ctx context.Context, req rpcproto.Message) (any, error) {
	switch req.Method {
	case rpcproto.MethodQuery:
		return h.handleQuery(ctx, req)
	case rpcproto.MethodQueryFTS:
		return h.handleQueryFTS(req)
	case rpcproto.MethodQueryHybrid:
		return h.handleQueryHybrid(ctx, req)
	case rpcproto.MethodQueryTemporal:
		return h.handleQueryTemporal(ctx, req)
	case rpcproto.MethodIndex:
		return h.handleIndex(ctx, req)
	case rpcproto.MethodClean:
		return h.handleClean(req)
	case rpcproto.MethodCleanData:
		return h.handleCleanData(req)
	case rpcproto.MethodWatchStart:
		return h.handleWatchStart(ctx, req)
	case rpcproto.MethodWatchStop:
		return h.s.svc.WatchStop(), nil
	case rpcproto.MethodWatchStatus:
		return h.s.svc.WatchStatus(), nil
	case rpcproto.MethodStatus:
		return h.handleStatus(req)
	case rpcproto.MethodClearCache:
		h.s.svc.ClearCache()
		return nil, nil
	case rpcproto.MethodShutdown:
		go h.s.shutdown()
		return nil, nil
	default:
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput)
	}
}

func (h *connHandler) handleQuery(ctx context.Context, req rpcproto.Message) (any, error) {
	var qr queryRequest
	if err := rpcproto.DecodePayload(req, &qr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return h.s.svc.Query(ctx, qr.Project, qr.Query, qr.Limit, qr.Filters)
}

func (h *connHandler) handleQueryFTS(req rpcproto.Message) (any, error) {
	var qr queryRequest
	if err := rpcproto.DecodePayload(req, &qr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	matches, err := h.s.svc.QueryFTS(qr.Project, qr.Query, qr.Filters, qr.FTSOptions)
	if err != nil {
		return nil, err
	}

	return queryFTSResponse{Results: matches}, nil
}

func (h *connHandler) handleQueryHybrid(ctx context.Context, req rpcproto.Message) (any, error) {
	var qr queryRequest
	if err := rpcproto.DecodePayload(req, &qr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return h.s.svc.QueryHybrid(ctx, qr.Project, qr.Query, qr.Limit, qr.Filters, qr.FTSOptions)
}

func (h *connHandler) handleQueryTemporal(ctx context.Context, req rpcproto.Message) (any, error) {
	var qr queryRequest
	if err := rpcproto.DecodePayload(req, &qr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return h.s.svc.QueryTemporal(ctx, qr.Project, qr.Query, qr.TimeRange, qr.Limit, qr.Filters)
}

// handleIndex runs Index synchronously on the connection goroutine,
// streaming progress notifications back over the same connection as the
// build proceeds (spec §4.10) - the RPC response only arrives once the
// whole session completes.
func (h *connHandler) handleIndex(ctx context.Context, req rpcproto.Message) (any, error) {
	var ir indexRequest
	if err := rpcproto.DecodePayload(req, &ir); err != nil {
		return nil, xerrors.Wrap(err)
	}

	progress := func(current, total int, path, info string, concurrentFiles []collab.FileStatus) {
		payload, err := rpcproto.EncodePayload(progressNotification{
			Current: current, Total: total, Path: path, Info: info, ConcurrentFiles: concurrentFiles,
		})
		if err != nil {
			return
		}

		_ = h.write(rpcproto.Message{Kind: rpcproto.KindNotification, ID: req.ID, Method: "progress", Payload: payload})
	}

	return h.s.svc.Index(ctx, ir.Project, ir.Params, progress)
}

func (h *connHandler) handleClean(req rpcproto.Message) (any, error) {
	var cr cleanRequest
	if err := rpcproto.DecodePayload(req, &cr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return nil, h.s.svc.Clean(cr.Project, cr.Params)
}

func (h *connHandler) handleCleanData(req rpcproto.Message) (any, error) {
	var cr cleanRequest
	if err := rpcproto.DecodePayload(req, &cr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return nil, h.s.svc.CleanData(cr.Project, cr.Params)
}

func (h *connHandler) handleWatchStart(ctx context.Context, req rpcproto.Message) (any, error) {
	var wr watchStartRequest
	if err := rpcproto.DecodePayload(req, &wr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return nil, h.s.svc.WatchStart(ctx, wr.Project, wr.Collection)
}

func (h *connHandler) handleStatus(req rpcproto.Message) (any, error) {
	var sr statusRequest
	if err := rpcproto.DecodePayload(req, &sr); err != nil {
		return nil, xerrors.Wrap(err)
	}

	return h.s.svc.Status(sr.Project)
}
