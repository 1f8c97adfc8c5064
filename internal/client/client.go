// Package client talks to the snapshot server over its line-oriented TCP
// protocol. One request per connection, mirroring the server side.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/twistedxcom/statusdeck/internal/registry"
)

// State is one decoded GET /state response.
type State struct {
	Sessions   []registry.SessionRecord `json:"sessions"`
	ServerTime int64                    `json:"server_time"`
}

// SnapshotClient fetches registry snapshots and issues deletions.
type SnapshotClient struct {
	addr    string
	timeout time.Duration

	// dial is injectable for tests.
	dial func(network, addr string) (net.Conn, error)
}

// New creates a client for the given snapshot server address.
func New(addr string) *SnapshotClient {
	return &SnapshotClient{
		addr:    addr,
		timeout: 2 * time.Second,
		dial:    net.Dial,
	}
}

// FetchState retrieves the full snapshot. Any transport or decode failure is
// an error; the caller treats that as a full disconnect.
func (c *SnapshotClient) FetchState() (*State, error) {
	body, err := c.roundTrip("GET /state HTTP/1.1\r\n\r\n")
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &st, nil
}

// DeleteSession asks the server to drop a session unconditionally.
func (c *SnapshotClient) DeleteSession(sessionID string) error {
	_, err := c.roundTrip(fmt.Sprintf("DELETE /sessions/%s HTTP/1.1\r\n\r\n", sessionID))
	return err
}

func (c *SnapshotClient) roundTrip(request string) ([]byte, error) {
	conn, err := c.dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(request)); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	code, body, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	if code != 200 {
		return nil, fmt.Errorf("server returned status %d", code)
	}
	return body, nil
}

// parseResponse splits an HTTP-style response into status code and body.
func parseResponse(raw []byte) (int, []byte, error) {
	head, body, found := strings.Cut(string(raw), "\r\n\r\n")
	if !found {
		return 0, nil, fmt.Errorf("malformed response: no header terminator")
	}

	statusLine, _, _ := strings.Cut(head, "\r\n")
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return 0, nil, fmt.Errorf("malformed status line: %q", statusLine)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, nil, fmt.Errorf("malformed status code: %q", fields[1])
	}
	return code, []byte(body), nil
}
