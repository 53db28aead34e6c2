package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/localcode/indexer/internal/config"
	"github.com/localcode/indexer/internal/point"
	"github.com/localcode/indexer/internal/xerrors"
)

// startupBudget bounds how long Dial spends before the caller should fall
// back to [NewStandalone] (spec §4.11: "the CLI's own startup budget is
// under 50ms when a daemon already answers"; spawning one and waiting on
// it is necessarily slower, so the budget only gates the no-daemon-yet
// path, not a hard deadline on the whole dial).
const startupBudget = 50 * time.Millisecond

// Dial connects to the codeindexd daemon for projectPath, spawning one if
// none is listening and retrying the connection with the project's
// configured backoff schedule (spec §4.11). daemonBinary is the path to
// the codeindexd executable to spawn; cmd/codeindex passes its own
// sibling binary's path.
func Dial(ctx context.Context, projectPath, daemonBinary string) (*Client, error) {
	sockPath := point.SocketPath(projectPath)

	if conn, err := tryConnect(sockPath); err == nil {
		return newClientWithReconnect(conn, projectPath, daemonBinary), nil
	}

	cfg, err := config.Load(projectPath)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.WithProject(projectPath))
	}

	if !cfg.Daemon.Enabled {
		return nil, xerrors.Wrap(xerrors.ErrUnavailable, xerrors.WithProject(projectPath))
	}

	if err := spawnDaemon(projectPath, daemonBinary); err != nil {
		return nil, xerrors.Wrap(err, xerrors.WithProject(projectPath))
	}

	conn, err := connectWithBackoff(ctx, sockPath, cfg.Daemon.RetryDelays())
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.WithProject(projectPath))
	}

	return newClientWithReconnect(conn, projectPath, daemonBinary), nil
}

func tryConnect(sockPath string) (net.Conn, error) {
	return net.DialTimeout("unix", sockPath, startupBudget)
}

func connectWithBackoff(ctx context.Context, sockPath string, delays []time.Duration) (net.Conn, error) {
	var lastErr error

	for attempt := 0; attempt < len(delays)+1; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delayFor(delays, attempt-1)):
			}
		}

		conn, err := tryConnect(sockPath)
		if err == nil {
			return conn, nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("dial %q after %d attempts: %w", sockPath, len(delays)+1, lastErr)
}

// spawnDaemon launches codeindexd as a detached background process bound
// to projectPath, the way the teacher's tk-bench spawns helper processes
// via os/exec, except left running rather than waited on.
func spawnDaemon(projectPath, daemonBinary string) error {
	logPath := filepath.Join(projectPath, ".code-indexer", "daemon.log")

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.Command(daemonBinary, "--project", projectPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}

	return cmd.Process.Release()
}

// newClientWithReconnect wires a Client that, on detecting its connection
// closed mid-call, retries by respawning+redialing up to the project's
// configured restart-attempt count (spec §4.11's "two-attempt restart
// recovery") before surfacing the failure to the caller.
func newClientWithReconnect(conn net.Conn, projectPath, daemonBinary string) *Client {
	c := newClient(conn)

	c.reconnect = func(ctx context.Context) (net.Conn, error) {
		cfg, err := config.Load(projectPath)
		if err != nil {
			return nil, err
		}

		if err := spawnDaemon(projectPath, daemonBinary); err != nil {
			return nil, err
		}

		return connectWithBackoff(ctx, point.SocketPath(projectPath), cfg.Daemon.RetryDelays())
	}

	c.maxRestarts = func() int {
		cfg, err := config.Load(projectPath)
		if err != nil {
			return 2
		}

		return cfg.Daemon.RestartAttempts()
	}()

	return c
}

var errConnectionClosed = errors.New("connection closed")
