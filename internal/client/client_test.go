package client

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/rpcproto"
)

// fakeServer is a minimal stand-in for rpcserver.Server: enough request
// handling to exercise Client's call/retry/progress-notification paths
// without pulling in the real daemon.Service.
type fakeServer struct {
	ln      net.Listener
	sockPath string
	flaky   atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "test.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)

	fs := &fakeServer{ln: ln, sockPath: sockPath}
	go fs.serve()

	return fs
}

func (fs *fakeServer) serve() {
	for {
		conn, err := fs.ln.Accept()
		if err != nil {
			return
		}

		go fs.handle(conn)
	}
}

func (fs *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	r := rpcproto.NewReader(conn)
	w := rpcproto.NewWriter(conn)

	for {
		msg, err := r.ReadMessage()
		if err != nil {
			return
		}

		switch msg.Method {
		case "boom":
			return
		case "flaky":
			if fs.flaky.Add(1) == 1 {
				return
			}

			respond(w, msg.ID, map[string]bool{"pong": true})
		case "withProgress":
			payload, _ := rpcproto.EncodePayload(progressPayload{Current: 1, Total: 2, Path: "a.go"})
			_ = w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindNotification, ID: msg.ID, Method: "progress", Payload: payload})

			respond(w, msg.ID, map[string]bool{"pong": true})
		default:
			respond(w, msg.ID, map[string]bool{"pong": true})
		}
	}
}

func respond(w *rpcproto.Writer, id uint64, v any) {
	payload, err := rpcproto.EncodePayload(v)
	if err != nil {
		return
	}

	_ = w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindResponse, ID: id, Payload: payload})
}

func dialFakeServer(t *testing.T, sockPath string) net.Conn {
	t.Helper()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)

	return conn
}

func TestClient_CallRoundTrip(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()

	c := newClient(dialFakeServer(t, srv.sockPath))
	defer c.Close()

	var out map[string]bool
	require.NoError(t, c.call("ping", struct{}{}, &out, nil))
	require.True(t, out["pong"])
}

func TestClient_ProgressNotificationDelivered(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()

	c := newClient(dialFakeServer(t, srv.sockPath))
	defer c.Close()

	var got []collab.FileStatus

	progress := func(current, total int, path, info string, concurrentFiles []collab.FileStatus) {
		got = concurrentFiles
		require.Equal(t, 1, current)
		require.Equal(t, 2, total)
		require.Equal(t, "a.go", path)
	}

	var out map[string]bool
	require.NoError(t, c.call("withProgress", struct{}{}, &out, progress))
	require.True(t, out["pong"])
	require.Empty(t, got)
}

func TestClient_CallSurfacesConnectionClosedWithoutReconnect(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()

	c := newClient(dialFakeServer(t, srv.sockPath))
	defer c.Close()

	err := c.call("boom", struct{}{}, nil, nil)
	require.Error(t, err)
}

func TestClient_RestartOnConnectionClosedRetriesSucceeds(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.ln.Close()

	c := newClient(dialFakeServer(t, srv.sockPath))
	defer c.Close()

	c.maxRestarts = 1
	c.reconnect = func(ctx context.Context) (net.Conn, error) {
		return net.DialTimeout("unix", srv.sockPath, time.Second)
	}

	var out map[string]bool
	require.NoError(t, c.call("flaky", struct{}{}, &out, nil))
	require.True(t, out["pong"])
}
