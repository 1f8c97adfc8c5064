package recon

import "fmt"

// WindowGroup is a set of sessions sharing one terminal window. Sessions
// with no window, and windows that hold only one session, become singleton
// groups keyed "single_<session_id>".
type WindowGroup struct {
	// ID is the terminal window id for multi-session groups, or
	// "single_<session_id>" for singletons.
	ID string

	// CustomName is the user-chosen override from the window name store.
	CustomName string

	// Name is the resolved display name.
	Name string

	Sessions []*Session
}

// Singleton reports whether the group wraps exactly one windowless or
// lone-window session.
func (g *WindowGroup) Singleton() bool {
	return len(g.Sessions) == 1 && g.ID == singletonID(g.Sessions[0])
}

func singletonID(s *Session) string {
	return "single_" + s.SessionID
}

// buildGroups groups the already-ordered sessions by window id, unwraps
// windows with a single member into singleton groups, and keeps group
// order stable across passes the same way session order is kept stable:
// known groups hold their prior relative position, new groups append in
// the order their first session appears.
func (e *Engine) buildGroups(sessions []*Session) []*WindowGroup {
	byWindow := make(map[string]*WindowGroup)
	var arrival []*WindowGroup

	for _, s := range sessions {
		if s.WindowID == "" {
			g := &WindowGroup{ID: singletonID(s), Sessions: []*Session{s}}
			arrival = append(arrival, g)
			continue
		}
		g, ok := byWindow[s.WindowID]
		if !ok {
			g = &WindowGroup{ID: s.WindowID}
			byWindow[s.WindowID] = g
			arrival = append(arrival, g)
		}
		g.Sessions = append(g.Sessions, s)
	}

	// Lone-window sessions do not get a window wrapper.
	for i, g := range arrival {
		if len(g.Sessions) == 1 && g.ID != singletonID(g.Sessions[0]) {
			arrival[i] = &WindowGroup{ID: singletonID(g.Sessions[0]), Sessions: g.Sessions}
		}
	}

	for _, g := range arrival {
		g.CustomName = nameOrEmpty(e.windowNames, g.ID)
		g.Name = resolveGroupName(g)
	}

	ordered := e.stableGroupOrder(arrival)
	return ordered
}

// resolveGroupName picks the display name: custom override first, then
// "Window <id>" for multi-session groups, then the lone session's own name.
func resolveGroupName(g *WindowGroup) string {
	if g.CustomName != "" {
		return g.CustomName
	}
	if len(g.Sessions) > 1 {
		return fmt.Sprintf("Window %s", g.ID)
	}
	if len(g.Sessions) == 1 {
		return g.Sessions[0].DisplayName()
	}
	return g.ID
}

func (e *Engine) stableGroupOrder(groups []*WindowGroup) []*WindowGroup {
	byID := make(map[string]*WindowGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	ordered := make([]*WindowGroup, 0, len(groups))
	placed := make(map[string]bool, len(groups))
	for _, id := range e.prevGroupOrder {
		if g, ok := byID[id]; ok {
			ordered = append(ordered, g)
			placed[id] = true
		}
	}
	for _, g := range groups {
		if !placed[g.ID] {
			ordered = append(ordered, g)
		}
	}

	e.prevGroupOrder = make([]string, len(ordered))
	for i, g := range ordered {
		e.prevGroupOrder[i] = g.ID
	}
	return ordered
}
