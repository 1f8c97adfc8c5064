package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/twistedxcom/statusdeck/internal/event"
	"github.com/twistedxcom/statusdeck/internal/logging"
	"github.com/twistedxcom/statusdeck/internal/registry"
)

var ingestLog = logging.ForComponent(logging.CompIngest)

const (
	// ingestReadLimit bounds the single read per connection. One event
	// document per connection, no framing beyond that.
	ingestReadLimit = 4096

	// acceptPollInterval is how long an accept waits before re-checking for
	// cancellation. A blocking accept would be equivalent; the short timeout
	// trades minor latency for a simple shutdown path.
	acceptPollInterval = 10 * time.Millisecond
)

// IngestListener accepts one hook event per unix-socket connection and
// applies it to the registry. The transport is fire-and-forget: nothing is
// ever written back, and malformed input is logged and dropped.
type IngestListener struct {
	socketPath string
	reg        *registry.Registry
	listener   *net.UnixListener
}

// NewIngestListener creates a listener for the given socket path.
func NewIngestListener(socketPath string, reg *registry.Registry) *IngestListener {
	return &IngestListener{socketPath: socketPath, reg: reg}
}

// Bind claims the socket path, removing a stale socket file if one exists.
// Bind failures are fatal to the daemon; there is no retry.
func (l *IngestListener) Bind() error {
	if st, err := os.Lstat(l.socketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("socket path exists and is not a unix socket: %s", l.socketPath)
		}
		if err := os.Remove(l.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat socket path: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unix", l.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve socket address: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to bind ingest socket: %w", err)
	}
	if err := os.Chmod(l.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("failed to chmod socket: %w", err)
	}
	l.listener = ln
	ingestLog.Info("ingest_listening", slog.String("socket", l.socketPath))
	return nil
}

// Serve runs the accept loop until ctx is canceled. Each accepted connection
// is dispatched to its own goroutine so one slow sender cannot block others.
func (l *IngestListener) Serve(ctx context.Context) error {
	defer l.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := l.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return fmt.Errorf("failed to arm accept deadline: %w", err)
		}
		conn, err := l.listener.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			ingestLog.Warn("accept_failed", slog.String("error", err.Error()))
			continue
		}

		go l.handleConn(conn)
	}
}

// Close shuts the listener and removes the socket file.
func (l *IngestListener) Close() {
	if l.listener != nil {
		_ = l.listener.Close()
		l.listener = nil
	}
	if err := os.Remove(l.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		ingestLog.Warn("socket_cleanup_failed", slog.String("error", err.Error()))
	}
}

func (l *IngestListener) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, ingestReadLimit)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		ingestLog.Debug("read_failed", slog.String("error", err.Error()))
		return
	}
	if n == 0 {
		return
	}

	ev, err := event.Decode(buf[:n])
	if err != nil {
		// Dropped silently as far as the sender is concerned.
		ingestLog.Warn("event_dropped", slog.String("error", err.Error()))
		return
	}

	l.reg.Apply(ev)
	logging.Aggregate(logging.CompIngest, "event_ingested",
		slog.String("kind", string(ev.Kind)))
}
