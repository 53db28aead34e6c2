package rpcserver_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/collab"
	"github.com/localcode/indexer/internal/daemon"
	indexerfs "github.com/localcode/indexer/internal/fs"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/rpcproto"
	"github.com/localcode/indexer/internal/rpcserver"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}

	return out, nil
}

type fakeChunker struct{}

func (fakeChunker) Chunk(_ string, content []byte) ([]collab.Chunk, error) {
	return []collab.Chunk{{Text: string(content), LineStart: 1, LineEnd: 1}}, nil
}

type fakeGit struct{}

func (fakeGit) AnalyzeBranchChange(context.Context, collab.BranchChange) (collab.BranchChangeResult, error) {
	return collab.BranchChangeResult{}, nil
}

func newTestServer(t *testing.T, maxConns int) (*rpcserver.Server, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".code-indexer"), 0o755))

	deps := daemon.Deps{
		Embedder: fakeEmbedder{},
		Chunker:  fakeChunker{},
		Git:      fakeGit{},
		PointID:  func(path string, i int, _ []byte) string { return path },
	}

	svc := daemon.New(indexerfs.NewReal(), deps, time.Minute, zerolog.Nop())
	srv := rpcserver.New(dir, svc, maxConns, zerolog.Nop())

	return srv, dir
}

func TestServer_ListenCleansStaleSocket(t *testing.T) {
	srv, dir := newTestServer(t, 0)

	sockPath := point.SocketPath(dir)
	require.NoError(t, os.WriteFile(sockPath, []byte("not a socket"), 0o644))

	require.NoError(t, srv.Listen())
}

func TestServer_ListenFailsWhenLivePeerPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".code-indexer"), 0o755))

	sockPath := point.SocketPath(dir)

	live, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer live.Close()

	deps := daemon.Deps{Embedder: fakeEmbedder{}, Chunker: fakeChunker{}, Git: fakeGit{}, PointID: func(p string, i int, _ []byte) string { return p }}
	svc := daemon.New(indexerfs.NewReal(), deps, time.Minute, zerolog.Nop())
	srv := rpcserver.New(dir, svc, 0, zerolog.Nop())

	require.Error(t, srv.Listen())
}

func dialAndCall(t *testing.T, sockPath string, id uint64, method string, payload any) rpcproto.Message {
	t.Helper()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	encoded, err := rpcproto.EncodePayload(payload)
	require.NoError(t, err)

	w := rpcproto.NewWriter(conn)
	require.NoError(t, w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindRequest, ID: id, Method: method, Payload: encoded}))

	r := rpcproto.NewReader(conn)

	for {
		msg, err := r.ReadMessage()
		require.NoError(t, err)

		if msg.Kind == rpcproto.KindResponse {
			return msg
		}
	}
}

func TestServer_StatusRoundTrip(t *testing.T) {
	srv, dir := newTestServer(t, 0)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Serve(ctx) }()

	sockPath := point.SocketPath(dir)
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		conn.Close()

		return true
	}, time.Second, 10*time.Millisecond)

	resp := dialAndCall(t, sockPath, 1, rpcproto.MethodStatus, map[string]string{"project": dir})
	require.Nil(t, resp.Error)
	require.NotEmpty(t, resp.Payload)
}

func TestServer_ConnSemaphoreBoundsConcurrentConnections(t *testing.T) {
	srv, dir := newTestServer(t, 1)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Serve(ctx) }()

	sockPath := point.SocketPath(dir)
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		conn.Close()

		return true
	}, time.Second, 10*time.Millisecond)

	conn1, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn1.Close()

	// Keep the accept loop's single slot occupied by conn1 without it ever
	// sending a request, so the second connection's request cannot be
	// served until conn1 closes.
	conn2, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn2.Close()

	encoded, err := rpcproto.EncodePayload(map[string]string{"project": dir})
	require.NoError(t, err)

	w2 := rpcproto.NewWriter(conn2)
	require.NoError(t, w2.WriteMessage(rpcproto.Message{Kind: rpcproto.KindRequest, ID: 1, Method: rpcproto.MethodStatus, Payload: encoded}))

	respCh := make(chan rpcproto.Message, 1)

	go func() {
		r2 := rpcproto.NewReader(conn2)

		msg, err := r2.ReadMessage()
		if err == nil {
			respCh <- msg
		}
	}()

	select {
	case <-respCh:
		t.Fatal("conn2 got a response while conn1 still held the only connection slot")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, conn1.Close())

	select {
	case msg := <-respCh:
		require.Nil(t, msg.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("conn2 never got a response after conn1 closed")
	}
}

func TestServer_ShutdownUnlinksSocket(t *testing.T) {
	srv, dir := newTestServer(t, 0)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = srv.Serve(ctx) }()

	sockPath := point.SocketPath(dir)
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		conn.Close()

		return true
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server never finished shutting down")
	}

	_, err := os.Stat(sockPath)
	require.True(t, os.IsNotExist(err))
}
