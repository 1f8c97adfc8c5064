// Package recon polls the snapshot server and turns raw registry state into
// the stable, enriched, grouped view the presentation layer renders.
package recon

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/twistedxcom/statusdeck/internal/client"
	"github.com/twistedxcom/statusdeck/internal/logging"
	"github.com/twistedxcom/statusdeck/internal/memprobe"
	"github.com/twistedxcom/statusdeck/internal/names"
	"github.com/twistedxcom/statusdeck/internal/registry"
	"github.com/twistedxcom/statusdeck/internal/termtab"
)

var reconLog = logging.ForComponent(logging.CompRecon)

// Session is one registry record enriched for display.
type Session struct {
	registry.SessionRecord

	// CustomName is the user-chosen override from the session name store.
	CustomName string

	// TabTitle and WindowID come from terminal introspection; both empty
	// when introspection was unavailable or the tty was not found.
	TabTitle string
	WindowID string

	// MemoryRSS is the probed memory usage in bytes, 0 when unknown.
	MemoryRSS uint64
}

// DisplayName returns the name to render: custom override, then project,
// then the raw session id.
func (s *Session) DisplayName() string {
	if s.CustomName != "" {
		return s.CustomName
	}
	if s.Project != "" {
		return s.Project
	}
	return s.SessionID
}

// Snapshotter is the transport the engine polls. Satisfied by
// client.SnapshotClient; faked in tests.
type Snapshotter interface {
	FetchState() (*client.State, error)
	DeleteSession(sessionID string) error
}

// Engine runs the reconciliation loop: fetch, enrich, hysteresis, order,
// group, publish. One pass at a time, never overlapping.
type Engine struct {
	snap         Snapshotter
	sessionNames *names.Store
	windowNames  *names.Store
	tabs         termtab.Provider
	probe        memprobe.Prober

	interval       time.Duration
	staleThreshold int

	// onUpdate, if set, is called after every published pass.
	onUpdate func()

	mu           sync.RWMutex
	sessions     []*Session
	groups       []*WindowGroup
	disconnected bool
	lastErr      error

	// passMu serializes passes; a pass never overlaps another.
	passMu sync.Mutex

	// Cross-pass bookkeeping. Guarded by passMu.
	prevOrder      []string
	prevGroupOrder []string
	staleCounts    map[string]int
}

// Options configure an Engine beyond its collaborators.
type Options struct {
	Interval       time.Duration
	StaleThreshold int
	OnUpdate       func()
}

// NewEngine wires an engine. Nil tabs/probe are allowed and behave as
// permanently unavailable providers.
func NewEngine(snap Snapshotter, sessionNames, windowNames *names.Store, tabs termtab.Provider, probe memprobe.Prober, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 3
	}
	return &Engine{
		snap:           snap,
		sessionNames:   sessionNames,
		windowNames:    windowNames,
		tabs:           tabs,
		probe:          probe,
		interval:       opts.Interval,
		staleThreshold: opts.StaleThreshold,
		onUpdate:       opts.OnUpdate,
		staleCounts:    make(map[string]int),
	}
}

// Start runs one immediate pass and then ticks forever until ctx is
// canceled. Passes never overlap: the ticker is consumed by this single
// goroutine and each pass completes before the next select.
func (e *Engine) Start(ctx context.Context) {
	e.RunOnce(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconciliation pass. Safe to call from any
// goroutine; concurrent calls queue behind the running pass.
func (e *Engine) RunOnce(ctx context.Context) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	st, err := e.snap.FetchState()
	if err != nil {
		// Full disconnect: drop everything, including ordering and
		// hysteresis bookkeeping. Deliberately not a partial degradation.
		e.prevOrder = nil
		e.prevGroupOrder = nil
		e.staleCounts = make(map[string]int)

		e.mu.Lock()
		e.sessions = nil
		e.groups = nil
		e.disconnected = true
		e.lastErr = err
		e.mu.Unlock()

		reconLog.Warn("disconnected", slog.String("error", err.Error()))
		e.notify()
		return
	}

	sessions := make([]*Session, 0, len(st.Sessions))
	for i := range st.Sessions {
		sessions = append(sessions, &Session{SessionRecord: st.Sessions[i]})
	}

	// Enrich: custom names by session id.
	overrides := e.sessionNames.GetAllNames()
	for _, s := range sessions {
		s.CustomName = overrides[s.SessionID]
	}

	// Enrich: terminal introspection, keyed by tty. Unavailable is not an
	// error; it just disables tab enrichment and stale detection this pass.
	var activeTabs map[string]termtab.Tab
	tabsAvailable := false
	if e.tabs != nil {
		tabs, err := e.tabs.ActiveTabs(ctx)
		switch {
		case err == nil:
			activeTabs = tabs
			tabsAvailable = true
		case errors.Is(err, termtab.ErrUnavailable):
			logging.Aggregate(logging.CompRecon, "introspection_unavailable")
		default:
			reconLog.Warn("introspection_failed", slog.String("error", err.Error()))
		}
	}
	if tabsAvailable {
		for _, s := range sessions {
			if tab, ok := activeTabs[s.TTY]; ok {
				s.TabTitle = tab.Title
				s.WindowID = tab.WindowID
			}
		}
	}

	// Enrich: memory usage, best-effort.
	if e.probe != nil {
		ttys := make([]string, 0, len(sessions))
		for _, s := range sessions {
			if s.TTY != "" {
				ttys = append(ttys, s.TTY)
			}
		}
		mem := e.probe.MemoryByTTY(ctx, ttys)
		for _, s := range sessions {
			s.MemoryRSS = mem[s.TTY]
		}
	}

	if tabsAvailable {
		sessions = e.expireStale(sessions, activeTabs)
	}

	ordered := e.stableOrder(sessions)
	groups := e.buildGroups(ordered)

	e.mu.Lock()
	e.sessions = ordered
	e.groups = groups
	e.disconnected = false
	e.lastErr = nil
	e.mu.Unlock()

	logging.Aggregate(logging.CompRecon, "pass",
		slog.Int("sessions", len(ordered)),
		slog.Int("groups", len(groups)))
	e.notify()
}

// expireStale applies the hysteresis counters and deletes sessions whose tty
// has been missing from the active set for staleThreshold consecutive
// passes. Only called when introspection succeeded this pass.
func (e *Engine) expireStale(sessions []*Session, activeTabs map[string]termtab.Tab) []*Session {
	kept := sessions[:0]
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		seen[s.SessionID] = true

		if s.TTY == "" {
			kept = append(kept, s)
			continue
		}
		if _, active := activeTabs[s.TTY]; active {
			delete(e.staleCounts, s.SessionID)
			kept = append(kept, s)
			continue
		}

		e.staleCounts[s.SessionID]++
		if e.staleCounts[s.SessionID] < e.staleThreshold {
			kept = append(kept, s)
			continue
		}

		// Gone for long enough: remove server-side and drop locally.
		delete(e.staleCounts, s.SessionID)
		if err := e.snap.DeleteSession(s.SessionID); err != nil {
			reconLog.Warn("stale_delete_failed",
				slog.String("session_id", s.SessionID),
				slog.String("error", err.Error()))
		} else {
			reconLog.Info("stale_session_removed",
				slog.String("session_id", s.SessionID),
				slog.String("tty", s.TTY))
		}
	}

	// Counters for sessions no longer in the snapshot are dead weight.
	for id := range e.staleCounts {
		if !seen[id] {
			delete(e.staleCounts, id)
		}
	}
	return kept
}

// stableOrder keeps previously-known sessions in their prior relative order
// and appends newly-seen ones ordered by ascending event timestamp.
func (e *Engine) stableOrder(sessions []*Session) []*Session {
	byID := make(map[string]*Session, len(sessions))
	for _, s := range sessions {
		byID[s.SessionID] = s
	}

	ordered := make([]*Session, 0, len(sessions))
	placed := make(map[string]bool, len(sessions))
	for _, id := range e.prevOrder {
		if s, ok := byID[id]; ok {
			ordered = append(ordered, s)
			placed[id] = true
		}
	}

	fresh := make([]*Session, 0)
	for _, s := range sessions {
		if !placed[s.SessionID] {
			fresh = append(fresh, s)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp < fresh[j].Timestamp
	})
	ordered = append(ordered, fresh...)

	e.prevOrder = make([]string, len(ordered))
	for i, s := range ordered {
		e.prevOrder[i] = s.SessionID
	}
	return ordered
}

func (e *Engine) notify() {
	if e.onUpdate != nil {
		e.onUpdate()
	}
}

// View is the published result of the most recent pass.
type View struct {
	Sessions     []*Session
	Groups       []*WindowGroup
	Disconnected bool
	Err          error
}

// View returns the currently published view.
func (e *Engine) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return View{
		Sessions:     e.sessions,
		Groups:       e.groups,
		Disconnected: e.disconnected,
		Err:          e.lastErr,
	}
}

// RenameSession writes a session name through the store and updates the
// published view immediately, without waiting for the next pass.
func (e *Engine) RenameSession(sessionID, name string) error {
	if err := e.sessionNames.SetName(sessionID, name); err != nil {
		return err
	}

	e.mu.Lock()
	for _, s := range e.sessions {
		if s.SessionID == sessionID {
			s.CustomName = nameOrEmpty(e.sessionNames, sessionID)
		}
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// RenameWindow writes a window-group name through the store and updates the
// published view immediately.
func (e *Engine) RenameWindow(groupID, name string) error {
	if err := e.windowNames.SetName(groupID, name); err != nil {
		return err
	}

	e.mu.Lock()
	for _, g := range e.groups {
		if g.ID == groupID {
			g.CustomName = nameOrEmpty(e.windowNames, groupID)
			g.Name = resolveGroupName(g)
		}
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// DeleteSession removes a session server-side and drops it from the
// published view immediately. The next pass confirms the removal.
func (e *Engine) DeleteSession(sessionID string) error {
	if err := e.snap.DeleteSession(sessionID); err != nil {
		return err
	}

	e.mu.Lock()
	kept := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		if s.SessionID != sessionID {
			kept = append(kept, s)
		}
	}
	e.sessions = kept
	e.mu.Unlock()
	e.notify()
	return nil
}

// FocusSession asks the terminal to bring the session's window to front.
// Failures are logged and returned for display; they are never fatal.
func (e *Engine) FocusSession(ctx context.Context, sessionID string) error {
	e.mu.RLock()
	var tty string
	for _, s := range e.sessions {
		if s.SessionID == sessionID {
			tty = s.TTY
			break
		}
	}
	e.mu.RUnlock()

	if tty == "" || e.tabs == nil {
		return nil
	}
	if err := e.tabs.Focus(ctx, tty); err != nil {
		reconLog.Warn("focus_failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func nameOrEmpty(store *names.Store, id string) string {
	if name, ok := store.GetName(id); ok {
		return name
	}
	return ""
}
