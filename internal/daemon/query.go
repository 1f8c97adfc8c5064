package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/twistedxcom/statusdeck/internal/logging"
	"github.com/twistedxcom/statusdeck/internal/registry"
)

var queryLog = logging.ForComponent(logging.CompQuery)

// queryReadLimit bounds the single read used to extract the request line.
// Requests that do not fit in one chunk are unsupported; the two request
// forms we serve are far below this limit.
const queryReadLimit = 1024

// StateResponse is the snapshot document returned by GET /state.
type StateResponse struct {
	Sessions   []registry.SessionRecord `json:"sessions"`
	ServerTime int64                    `json:"server_time"`
}

// SnapshotServer serves the registry over a line-oriented protocol on a
// local TCP port:
//
//	GET /state            -> 200, JSON {sessions, server_time}
//	DELETE /sessions/{id} -> 200, empty (whether or not {id} existed)
//	anything else         -> 404
type SnapshotServer struct {
	addr        string
	reg         *registry.Registry
	idleTimeout time.Duration
	listener    *net.TCPListener
}

// NewSnapshotServer creates a server bound to addr when Bind is called.
func NewSnapshotServer(addr string, reg *registry.Registry, idleTimeout time.Duration) *SnapshotServer {
	return &SnapshotServer{addr: addr, reg: reg, idleTimeout: idleTimeout}
}

// Bind claims the TCP port. Failure is fatal to the daemon.
func (s *SnapshotServer) Bind() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve query address: %w", err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind query port: %w", err)
	}
	s.listener = ln
	queryLog.Info("query_listening", slog.String("addr", s.addr))
	return nil
}

// Addr returns the bound address (useful when the port was chosen by the OS).
func (s *SnapshotServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve runs the accept loop until ctx is canceled.
func (s *SnapshotServer) Serve(ctx context.Context) error {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return fmt.Errorf("failed to arm accept deadline: %w", err)
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			queryLog.Warn("accept_failed", slog.String("error", err.Error()))
			continue
		}

		go s.handleConn(conn)
	}
}

// Close shuts the listener.
func (s *SnapshotServer) Close() {
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *SnapshotServer) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, queryReadLimit)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	line, ok := requestLine(string(buf[:n]))
	if !ok {
		writeResponse(conn, 400, "Bad Request", nil)
		return
	}

	method, path, ok := splitRequestLine(line)
	if !ok {
		writeResponse(conn, 400, "Bad Request", nil)
		return
	}

	switch {
	case method == "GET" && path == "/state":
		s.serveState(conn)
	case method == "DELETE" && strings.HasPrefix(path, "/sessions/"):
		id := strings.TrimPrefix(path, "/sessions/")
		s.reg.Delete(id)
		writeResponse(conn, 200, "OK", nil)
	default:
		writeResponse(conn, 404, "Not Found", nil)
	}

	logging.Aggregate(logging.CompQuery, "request",
		slog.String("method", method))
}

func (s *SnapshotServer) serveState(conn net.Conn) {
	sessions, serverTime := s.reg.Snapshot(s.idleTimeout)
	resp := StateResponse{
		Sessions:   sessions,
		ServerTime: serverTime.Unix(),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		queryLog.Error("encode_failed", slog.String("error", err.Error()))
		writeResponse(conn, 500, "Internal Server Error", nil)
		return
	}
	writeResponse(conn, 200, "OK", body)
}

// requestLine extracts the first line from the read chunk.
func requestLine(raw string) (string, bool) {
	idx := strings.IndexAny(raw, "\r\n")
	if idx == -1 {
		// No line terminator within the read limit: either a truncated
		// oversized request or garbage. Both are malformed here.
		return "", false
	}
	line := raw[:idx]
	if line == "" {
		return "", false
	}
	return line, true
}

// splitRequestLine parses "METHOD /path [HTTP/x.y]".
func splitRequestLine(line string) (method, path string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	if !strings.HasPrefix(fields[1], "/") {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func writeResponse(conn net.Conn, code int, status string, body []byte) {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", code, status)
	b.WriteString("Content-Type: application/json\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	if _, err := conn.Write(append([]byte(b.String()), body...)); err != nil {
		queryLog.Debug("write_failed", slog.String("error", err.Error()))
	}
}
