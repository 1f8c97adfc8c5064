// Package registry holds the authoritative in-memory session map.
//
// All mutation goes through one mutex-guarded owner; the map is never handed
// out, only copies of records. Concurrent ingests for the same session id
// resolve last-writer-wins by arrival order at the lock, not by the event's
// own declared timestamp.
package registry

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/twistedxcom/statusdeck/internal/event"
	"github.com/twistedxcom/statusdeck/internal/logging"
)

var regLog = logging.ForComponent(logging.CompRegistry)

// State is a session's server-side display state.
type State string

const (
	StateStart      State = "start"
	StateRunning    State = "running"
	StateReady      State = "ready"
	StateAsking     State = "asking"
	StatePermission State = "permission"
	StateIdle       State = "idle"
)

// SessionRecord is the authoritative per-session state. "end" events are
// never stored; they remove the record.
type SessionRecord struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	TTY       string `json:"tty,omitempty"`
	CWD       string `json:"cwd,omitempty"`
	Project   string `json:"project,omitempty"`

	// Timestamp is the event-declared unix time.
	Timestamp int64 `json:"timestamp"`

	// LastUpdate is the server-receive time, used for idle promotion.
	LastUpdate time.Time `json:"last_update"`

	ContextPercentage *float64 `json:"context_percentage,omitempty"`
	InputTokens       *int64   `json:"input_tokens,omitempty"`
	ToolName          string   `json:"tool_name,omitempty"`
}

// Registry is the single-owner map of session id to record.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord

	// now is injectable for idle-promotion tests.
	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*SessionRecord),
		now:      time.Now,
	}
}

// NewWithClock creates a registry with an injected clock.
func NewWithClock(now func() time.Time) *Registry {
	r := New()
	r.now = now
	return r
}

// Apply ingests one event. An "end" event removes the record (no-op if
// absent); anything else fully replaces it, refreshing LastUpdate.
func (r *Registry) Apply(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.IsEnd() {
		delete(r.sessions, ev.SessionID)
		regLog.Debug("session_removed", slog.String("session_id", ev.SessionID))
		return
	}

	rec := &SessionRecord{
		SessionID:         ev.SessionID,
		State:             State(ev.Kind),
		TTY:               ev.TTY,
		CWD:               ev.CWD,
		Project:           projectFromCWD(ev.CWD),
		Timestamp:         ev.Timestamp,
		LastUpdate:        r.now(),
		ContextPercentage: ev.ContextPercentage,
		InputTokens:       ev.InputTokens,
		ToolName:          ev.ToolName,
	}
	r.sessions[ev.SessionID] = rec

	logging.Aggregate(logging.CompRegistry, "event_applied",
		slog.String("session_id", ev.SessionID),
		slog.String("state", string(rec.State)))
}

// Snapshot promotes overdue sessions to idle (sticky, mutated in place) and
// returns copies of all records plus the server time.
func (r *Registry) Snapshot(idleTimeout time.Duration) ([]SessionRecord, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]SessionRecord, 0, len(r.sessions))
	for _, rec := range r.sessions {
		if rec.State != StateIdle && now.Sub(rec.LastUpdate) > idleTimeout {
			// Sticky: the stored record changes, not just the returned view.
			rec.State = StateIdle
			regLog.Debug("session_idle", slog.String("session_id", rec.SessionID))
		}
		out = append(out, *rec)
	}
	return out, now
}

// Delete removes a session unconditionally, regardless of state or age.
func (r *Registry) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		regLog.Debug("session_deleted", slog.String("session_id", sessionID))
	}
}

// Len returns the number of stored sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// projectFromCWD derives the display project name from a working directory.
func projectFromCWD(cwd string) string {
	if cwd == "" {
		return ""
	}
	return filepath.Base(cwd)
}
