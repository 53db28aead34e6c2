// Package rpcserver implements DaemonService's transport (spec §4.10):
// one Unix-domain socket per project, accepted thread-per-connection, with
// [internal/rpcproto] framing carrying requests, responses, and
// daemon-to-client progress notifications. Binding the socket is the
// single-daemon lock itself - there is no separate PID file.
package rpcserver

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/localcode/indexer/internal/daemon"
	"github.com/localcode/indexer/internal/point"
)

// Server binds one project's socket and dispatches requests to a
// [daemon.Service]. One Server exists per daemon process.
type Server struct {
	projectPath string
	socketPath  string
	svc         *daemon.Service
	log         zerolog.Logger

	listener net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	// connSemaphore bounds concurrent connections (config.Daemon's
	// max_concurrent_connections), the same guard the beads rpc server's
	// connSemaphore channel provides against an unbounded thread-per-
	// connection fan-out.
	connSemaphore chan struct{}

	shutdownOnce sync.Once
	done         chan struct{}
}

// New returns a Server for projectPath, not yet bound, accepting at most
// maxConns connections concurrently (0 means unbounded).
func New(projectPath string, svc *daemon.Service, maxConns int, log zerolog.Logger) *Server {
	var sem chan struct{}
	if maxConns > 0 {
		sem = make(chan struct{}, maxConns)
	}

	return &Server{
		projectPath:   projectPath,
		socketPath:    point.SocketPath(projectPath),
		svc:           svc,
		log:           log.With().Str("component", "rpcserver").Logger(),
		conns:         make(map[net.Conn]struct{}),
		connSemaphore: sem,
		done:          make(chan struct{}),
	}
}

// probeTimeout bounds how long Listen waits for a live peer to answer a
// stale-socket probe (spec §4.10: "100 ms").
const probeTimeout = 100 * time.Millisecond

// Listen binds the project's Unix socket, unlinking and retrying once if
// the path exists but nothing answers within probeTimeout - the socket
// file alone does not mean a daemon is alive; a prior process can crash
// and leave it behind.
func (s *Server) Listen() error {
	l, err := net.Listen("unix", s.socketPath)
	if err == nil {
		s.listener = l
		return nil
	}

	if !errors.Is(err, syscall.EADDRINUSE) {
		return err
	}

	if probeLive(s.socketPath) {
		return err // a live daemon really is holding this socket
	}

	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return err
	}

	s.log.Warn().Str("socket", s.socketPath).Msg("removed stale socket with no live peer")

	l, err = net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}

	s.listener = l

	return nil
}

// probeLive reports whether some process is actually listening on path.
func probeLive(path string) bool {
	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

// Serve accepts connections until the listener closes or a termination
// signal arrives, then unlinks the socket and calls Service.Shutdown
// through the normal return path - no os.Exit inside Serve itself, so
// deferred cleanup always runs (spec §9: abrupt exit bypasses cleanup).
func (s *Server) Serve(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	acceptErrCh := make(chan error, 1)

	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				acceptErrCh <- err
				return
			}

			if s.connSemaphore != nil {
				s.connSemaphore <- struct{}{}
			}

			s.trackConn(conn)

			go s.handleConn(ctx, conn)
		}
	}()

	var serveErr error

	select {
	case <-ctx.Done():
	case <-sigCh:
		s.log.Info().Msg("received termination signal")
	case serveErr = <-acceptErrCh:
	}

	s.shutdown()

	if serveErr != nil && !errors.Is(serveErr, net.ErrClosed) {
		return serveErr
	}

	return nil
}

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		if s.listener != nil {
			_ = s.listener.Close()
		}

		_ = os.Remove(s.socketPath)

		s.svc.Shutdown()

		s.connsMu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.connsMu.Unlock()

		close(s.done)
	})
}

// Done returns a channel closed once shutdown has run to completion, for
// tests and for cmd/codeindexd to wait on before exiting.
func (s *Server) Done() <-chan struct{} { return s.done }

func (s *Server) trackConn(c net.Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()

	if s.connSemaphore != nil {
		<-s.connSemaphore
	}
}
