// Package event defines the hook event wire format.
//
// Hook processes are short-lived and fire-and-forget: they connect to the
// ingest socket, write one JSON document, and exit. Fields they omit get
// explicit defaults here rather than ad hoc zero values at use sites.
package event

import (
	"encoding/json"
	"fmt"
)

// Kind is a session lifecycle event name.
type Kind string

const (
	KindStart      Kind = "start"
	KindRunning    Kind = "running"
	KindReady      Kind = "ready"
	KindAsking     Kind = "asking"
	KindPermission Kind = "permission"
	KindIdle       Kind = "idle"
	KindEnd        Kind = "end"

	// KindUnknown is the default when the event field is missing. Unrecognized
	// values are kept as-is, not rejected; only "end" has removal semantics.
	KindUnknown Kind = "unknown"
)

// Event is one decoded lifecycle notification.
//
// Optional fields are pointers so "absent" is distinguishable from zero.
type Event struct {
	// Kind defaults to "unknown" when missing.
	Kind Kind `json:"event"`

	// SessionID defaults to "unknown" when missing.
	SessionID string `json:"session_id"`

	// CWD defaults to "" when missing.
	CWD string `json:"cwd"`

	// TTY may be empty when the hook could not determine its terminal.
	TTY string `json:"tty"`

	// Timestamp is the event-declared unix time in seconds, default 0. The
	// server keeps its own receive clock; this one is only used as an
	// ordering hint for newly-seen sessions.
	Timestamp int64 `json:"timestamp"`

	// ContextPercentage is the fraction of context window used, in [0,1].
	ContextPercentage *float64 `json:"context_percentage,omitempty"`

	// InputTokens is the cumulative input token count.
	InputTokens *int64 `json:"input_tokens,omitempty"`

	// ToolName is set on tool-related events.
	ToolName string `json:"tool_name,omitempty"`
}

// Decode parses a single event document and applies field defaults.
// Only malformed JSON is an error; missing fields never are.
func Decode(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	if ev.Kind == "" {
		ev.Kind = KindUnknown
	}
	if ev.SessionID == "" {
		ev.SessionID = "unknown"
	}
	return &ev, nil
}

// IsEnd reports whether this event removes the session instead of updating it.
func (e *Event) IsEnd() bool {
	return e.Kind == KindEnd
}
