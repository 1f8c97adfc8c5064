package recon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistedxcom/statusdeck/internal/client"
	"github.com/twistedxcom/statusdeck/internal/names"
	"github.com/twistedxcom/statusdeck/internal/registry"
	"github.com/twistedxcom/statusdeck/internal/termtab"
)

type fakeSnapshotter struct {
	state   *client.State
	err     error
	deleted []string
}

func (f *fakeSnapshotter) FetchState() (*client.State, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func (f *fakeSnapshotter) DeleteSession(sessionID string) error {
	f.deleted = append(f.deleted, sessionID)
	return nil
}

type fakeTabs struct {
	tabs    map[string]termtab.Tab
	err     error
	focused []string
}

func (f *fakeTabs) ActiveTabs(ctx context.Context) (map[string]termtab.Tab, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tabs, nil
}

func (f *fakeTabs) Focus(ctx context.Context, tty string) error {
	f.focused = append(f.focused, tty)
	return nil
}

type fakeProbe struct {
	mem map[string]uint64
}

func (f *fakeProbe) MemoryByTTY(ctx context.Context, ttys []string) map[string]uint64 {
	return f.mem
}

func record(id, tty string, ts int64) registry.SessionRecord {
	return registry.SessionRecord{SessionID: id, State: registry.StateRunning, TTY: tty, Timestamp: ts}
}

func testStores(t *testing.T) (*names.Store, *names.Store) {
	t.Helper()
	dir := t.TempDir()
	sessions, err := names.Open(filepath.Join(dir, "session_names.json"))
	require.NoError(t, err)
	windows, err := names.Open(filepath.Join(dir, "window_names.json"))
	require.NoError(t, err)
	return sessions, windows
}

func newTestEngine(t *testing.T, snap Snapshotter, tabs termtab.Provider) *Engine {
	t.Helper()
	sessions, windows := testStores(t)
	return NewEngine(snap, sessions, windows, tabs, &fakeProbe{}, Options{})
}

func sessionIDs(view View) []string {
	ids := make([]string, len(view.Sessions))
	for i, s := range view.Sessions {
		ids[i] = s.SessionID
	}
	return ids
}

func TestFetchFailureClearsEverything(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "", 1),
		record("b", "", 2),
	}}}
	eng := newTestEngine(t, snap, nil)

	eng.RunOnce(context.Background())
	require.Len(t, eng.View().Sessions, 2)

	snap.err = errors.New("connection refused")
	eng.RunOnce(context.Background())

	view := eng.View()
	assert.Empty(t, view.Sessions)
	assert.Empty(t, view.Groups)
	assert.True(t, view.Disconnected)
	assert.Error(t, view.Err)
}

func TestReconnectClearsDisconnected(t *testing.T) {
	snap := &fakeSnapshotter{err: errors.New("down")}
	eng := newTestEngine(t, snap, nil)

	eng.RunOnce(context.Background())
	require.True(t, eng.View().Disconnected)

	snap.err = nil
	snap.state = &client.State{Sessions: []registry.SessionRecord{record("a", "", 1)}}
	eng.RunOnce(context.Background())

	view := eng.View()
	assert.False(t, view.Disconnected)
	assert.NoError(t, view.Err)
	assert.Len(t, view.Sessions, 1)
}

func TestOrderStableAcrossPasses(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "", 1),
		record("b", "", 2),
		record("c", "", 3),
	}}}
	eng := newTestEngine(t, snap, nil)
	eng.RunOnce(context.Background())
	require.Equal(t, []string{"a", "b", "c"}, sessionIDs(eng.View()))

	// Server returns a different order plus a new session; known sessions
	// keep their relative order, the new one appends.
	snap.state = &client.State{Sessions: []registry.SessionRecord{
		record("c", "", 3),
		record("a", "", 1),
		record("b", "", 2),
		record("d", "", 4),
	}}
	eng.RunOnce(context.Background())
	assert.Equal(t, []string{"a", "b", "c", "d"}, sessionIDs(eng.View()))
}

func TestNewSessionsOrderedByTimestamp(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("late", "", 30),
		record("early", "", 10),
		record("mid", "", 20),
	}}}
	eng := newTestEngine(t, snap, nil)
	eng.RunOnce(context.Background())
	assert.Equal(t, []string{"early", "mid", "late"}, sessionIDs(eng.View()))
}

func TestStaleHysteresis(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{}}
	eng := newTestEngine(t, snap, tabs)

	// Two passes with the tty missing: still visible, nothing deleted.
	eng.RunOnce(context.Background())
	eng.RunOnce(context.Background())
	assert.Len(t, eng.View().Sessions, 1)
	assert.Empty(t, snap.deleted)

	// Third consecutive miss crosses the threshold.
	eng.RunOnce(context.Background())
	assert.Empty(t, eng.View().Sessions)
	assert.Equal(t, []string{"a"}, snap.deleted)
}

func TestStaleCounterResetsWhenTTYReturns(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{}}
	eng := newTestEngine(t, snap, tabs)

	eng.RunOnce(context.Background())
	eng.RunOnce(context.Background())

	// The tty comes back: counter resets, so two more misses are tolerated.
	tabs.tabs = map[string]termtab.Tab{"/dev/ttys001": {WindowID: "@1", Title: "work"}}
	eng.RunOnce(context.Background())

	tabs.tabs = map[string]termtab.Tab{}
	eng.RunOnce(context.Background())
	eng.RunOnce(context.Background())
	assert.Len(t, eng.View().Sessions, 1)
	assert.Empty(t, snap.deleted)
}

func TestIntrospectionUnavailableSkipsStaleDetection(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
	}}}
	tabs := &fakeTabs{err: termtab.ErrUnavailable}
	eng := newTestEngine(t, snap, tabs)

	for i := 0; i < 10; i++ {
		eng.RunOnce(context.Background())
	}

	view := eng.View()
	require.Len(t, view.Sessions, 1)
	assert.Empty(t, snap.deleted)
	assert.Empty(t, view.Sessions[0].WindowID)
}

func TestSessionsWithoutTTYNeverExpire(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "", 1),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{}}
	eng := newTestEngine(t, snap, tabs)

	for i := 0; i < 5; i++ {
		eng.RunOnce(context.Background())
	}
	assert.Len(t, eng.View().Sessions, 1)
	assert.Empty(t, snap.deleted)
}

func TestWindowGrouping(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
		record("b", "/dev/ttys002", 2),
		record("c", "/dev/ttys003", 3),
		record("d", "", 4),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{
		"/dev/ttys001": {WindowID: "@1", Title: "left"},
		"/dev/ttys002": {WindowID: "@1", Title: "right"},
		"/dev/ttys003": {WindowID: "@2", Title: "solo"},
	}}
	eng := newTestEngine(t, snap, tabs)
	eng.RunOnce(context.Background())

	groups := eng.View().Groups
	require.Len(t, groups, 3)

	assert.Equal(t, "@1", groups[0].ID)
	assert.Equal(t, "Window @1", groups[0].Name)
	assert.False(t, groups[0].Singleton())
	assert.Len(t, groups[0].Sessions, 2)

	// A window holding one session does not get a window wrapper.
	assert.Equal(t, "single_c", groups[1].ID)
	assert.True(t, groups[1].Singleton())

	// No window id at all.
	assert.Equal(t, "single_d", groups[2].ID)
	assert.True(t, groups[2].Singleton())
}

func TestGroupOrderStable(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
		record("b", "/dev/ttys002", 2),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{
		"/dev/ttys001": {WindowID: "@1"},
		"/dev/ttys002": {WindowID: "@2"},
	}}
	eng := newTestEngine(t, snap, tabs)
	eng.RunOnce(context.Background())

	require.Equal(t, "single_a", eng.View().Groups[0].ID)

	// Session order flips server-side; the published group order holds.
	snap.state = &client.State{Sessions: []registry.SessionRecord{
		record("b", "/dev/ttys002", 2),
		record("a", "/dev/ttys001", 1),
	}}
	eng.RunOnce(context.Background())

	groups := eng.View().Groups
	assert.Equal(t, "single_a", groups[0].ID)
	assert.Equal(t, "single_b", groups[1].ID)
}

func TestRenameSessionImmediate(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "", 1),
	}}}
	eng := newTestEngine(t, snap, nil)
	eng.RunOnce(context.Background())

	require.NoError(t, eng.RenameSession("a", "billing fix"))
	assert.Equal(t, "billing fix", eng.View().Sessions[0].CustomName)
	assert.Equal(t, "billing fix", eng.View().Sessions[0].DisplayName())

	// Whitespace clears the override.
	require.NoError(t, eng.RenameSession("a", "   "))
	assert.Empty(t, eng.View().Sessions[0].CustomName)
	assert.Equal(t, "a", eng.View().Sessions[0].DisplayName())
}

func TestRenameWindowImmediate(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
		record("b", "/dev/ttys002", 2),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{
		"/dev/ttys001": {WindowID: "@1"},
		"/dev/ttys002": {WindowID: "@1"},
	}}
	eng := newTestEngine(t, snap, tabs)
	eng.RunOnce(context.Background())

	require.NoError(t, eng.RenameWindow("@1", "deploy"))
	assert.Equal(t, "deploy", eng.View().Groups[0].Name)

	// The override survives the next pass via the store.
	eng.RunOnce(context.Background())
	assert.Equal(t, "deploy", eng.View().Groups[0].Name)
}

func TestFocusSession(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
	}}}
	tabs := &fakeTabs{tabs: map[string]termtab.Tab{
		"/dev/ttys001": {WindowID: "@1"},
	}}
	eng := newTestEngine(t, snap, tabs)
	eng.RunOnce(context.Background())

	require.NoError(t, eng.FocusSession(context.Background(), "a"))
	assert.Equal(t, []string{"/dev/ttys001"}, tabs.focused)
}

func TestMemoryEnrichment(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: []registry.SessionRecord{
		record("a", "/dev/ttys001", 1),
	}}}
	sessions, windows := testStores(t)
	probe := &fakeProbe{mem: map[string]uint64{"/dev/ttys001": 256 << 20}}
	eng := NewEngine(snap, sessions, windows, nil, probe, Options{})
	eng.RunOnce(context.Background())

	assert.Equal(t, uint64(256<<20), eng.View().Sessions[0].MemoryRSS)
}

func TestOnUpdateFires(t *testing.T) {
	snap := &fakeSnapshotter{state: &client.State{Sessions: nil}}
	sessions, windows := testStores(t)
	updates := 0
	eng := NewEngine(snap, sessions, windows, nil, nil, Options{OnUpdate: func() { updates++ }})

	eng.RunOnce(context.Background())
	assert.Equal(t, 1, updates)

	snap.err = errors.New("down")
	eng.RunOnce(context.Background())
	assert.Equal(t, 2, updates)
}
