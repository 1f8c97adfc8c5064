// Package ui renders the live session deck: a grouped, filterable list of
// sessions that refreshes as the reconciliation engine publishes passes.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/twistedxcom/statusdeck/internal/logging"
	"github.com/twistedxcom/statusdeck/internal/recon"
)

var uiLog = logging.ForComponent(logging.CompUI)

// RefreshMsg tells the model to re-read the engine view. Sent by the engine's
// OnUpdate hook via Program.Send.
type RefreshMsg struct{}

type mode int

const (
	modeList mode = iota
	modeFilter
	modeRename
)

type rowKind int

const (
	rowGroup rowKind = iota
	rowSession
)

// row is one selectable line: a window-group header or a session.
type row struct {
	kind    rowKind
	group   *recon.WindowGroup
	session *recon.Session
	indent  bool
}

// Watch is the bubbletea model for the live view.
type Watch struct {
	engine *recon.Engine

	width  int
	height int

	view   recon.View
	rows   []row
	cursor int

	mode        mode
	filterInput textinput.Model
	renameInput textinput.Model
	// renameRow is the row being renamed while in modeRename.
	renameRow row

	status string
}

// NewWatch creates the model. The engine must already be running.
func NewWatch(engine *recon.Engine) *Watch {
	filter := textinput.New()
	filter.Placeholder = "Filter sessions..."
	filter.CharLimit = 100
	filter.Width = 40

	rename := textinput.New()
	rename.CharLimit = 50
	rename.Width = 40

	w := &Watch{
		engine:      engine,
		filterInput: filter,
		renameInput: rename,
	}
	w.reload()
	return w
}

// Init implements tea.Model.
func (w *Watch) Init() tea.Cmd {
	return nil
}

// reload re-reads the engine view and rebuilds the row list, keeping the
// cursor on the same row when it still exists.
func (w *Watch) reload() {
	var selectedID string
	if w.cursor < len(w.rows) {
		selectedID = rowID(w.rows[w.cursor])
	}

	w.view = w.engine.View()
	w.rows = w.buildRows()

	if selectedID != "" {
		for i, r := range w.rows {
			if rowID(r) == selectedID {
				w.cursor = i
				break
			}
		}
	}
	if w.cursor >= len(w.rows) {
		w.cursor = max(0, len(w.rows)-1)
	}
}

func rowID(r row) string {
	if r.kind == rowGroup {
		return "g:" + r.group.ID
	}
	return "s:" + r.session.SessionID
}

// buildRows flattens groups into selectable lines. Multi-session groups get
// a header line with their sessions indented beneath; singletons are a bare
// session line. With an active filter, the grouping is dropped and matching
// sessions render flat.
func (w *Watch) buildRows() []row {
	if query := strings.TrimSpace(w.filterInput.Value()); w.mode == modeFilter && query != "" {
		return w.filteredRows(query)
	}

	var rows []row
	for _, g := range w.view.Groups {
		if g.Singleton() {
			rows = append(rows, row{kind: rowSession, group: g, session: g.Sessions[0]})
			continue
		}
		rows = append(rows, row{kind: rowGroup, group: g})
		for _, s := range g.Sessions {
			rows = append(rows, row{kind: rowSession, group: g, session: s, indent: true})
		}
	}
	return rows
}

func (w *Watch) filteredRows(query string) []row {
	targets := make([]string, len(w.view.Sessions))
	for i, s := range w.view.Sessions {
		targets[i] = s.DisplayName() + " " + s.Project + " " + s.TabTitle
	}
	matches := fuzzy.Find(query, targets)

	rows := make([]row, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, row{kind: rowSession, session: w.view.Sessions[m.Index]})
	}
	return rows
}

func (w *Watch) selected() (row, bool) {
	if w.cursor >= len(w.rows) {
		return row{}, false
	}
	return w.rows[w.cursor], true
}

// Update implements tea.Model.
func (w *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
		return w, nil

	case RefreshMsg:
		w.reload()
		return w, nil

	case tea.KeyMsg:
		switch w.mode {
		case modeFilter:
			return w.updateFilter(msg)
		case modeRename:
			return w.updateRename(msg)
		default:
			return w.updateList(msg)
		}
	}
	return w, nil
}

func (w *Watch) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w.status = ""
	switch msg.String() {
	case "q", "ctrl+c":
		return w, tea.Quit
	case "up", "k":
		if w.cursor > 0 {
			w.cursor--
		}
	case "down", "j":
		if w.cursor < len(w.rows)-1 {
			w.cursor++
		}
	case "/":
		w.mode = modeFilter
		w.filterInput.SetValue("")
		w.filterInput.Focus()
		w.reload()
	case "r":
		if r, ok := w.selected(); ok {
			w.mode = modeRename
			w.renameRow = r
			if r.kind == rowGroup {
				w.renameInput.SetValue(r.group.CustomName)
			} else {
				w.renameInput.SetValue(r.session.CustomName)
			}
			w.renameInput.Focus()
			w.renameInput.CursorEnd()
		}
	case "d":
		if r, ok := w.selected(); ok && r.kind == rowSession {
			if err := w.engine.DeleteSession(r.session.SessionID); err != nil {
				w.status = "delete failed: " + err.Error()
			}
		}
	case "enter":
		if r, ok := w.selected(); ok && r.kind == rowSession {
			if err := w.engine.FocusSession(context.Background(), r.session.SessionID); err != nil {
				w.status = "focus failed: " + err.Error()
			}
		}
	}
	return w, nil
}

func (w *Watch) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		w.mode = modeList
		w.filterInput.Blur()
		w.filterInput.SetValue("")
		w.reload()
		return w, nil
	case "enter":
		// Keep the selection, drop the filter overlay.
		r, ok := w.selected()
		w.mode = modeList
		w.filterInput.Blur()
		w.filterInput.SetValue("")
		w.reload()
		if ok {
			for i, candidate := range w.rows {
				if rowID(candidate) == rowID(r) {
					w.cursor = i
					break
				}
			}
		}
		return w, nil
	}

	var cmd tea.Cmd
	w.filterInput, cmd = w.filterInput.Update(msg)
	w.rows = w.buildRows()
	if w.cursor >= len(w.rows) {
		w.cursor = max(0, len(w.rows)-1)
	}
	return w, cmd
}

func (w *Watch) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		w.mode = modeList
		w.renameInput.Blur()
		return w, nil
	case "enter":
		name := w.renameInput.Value()
		var err error
		if w.renameRow.kind == rowGroup {
			err = w.engine.RenameWindow(w.renameRow.group.ID, name)
		} else {
			err = w.engine.RenameSession(w.renameRow.session.SessionID, name)
		}
		if err != nil {
			w.status = "rename failed: " + err.Error()
			uiLog.Warn("rename failed", "error", err.Error())
		}
		w.mode = modeList
		w.renameInput.Blur()
		w.reload()
		return w, nil
	}

	var cmd tea.Cmd
	w.renameInput, cmd = w.renameInput.Update(msg)
	return w, cmd
}

// View implements tea.Model.
func (w *Watch) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("statusdeck"))
	b.WriteString("\n\n")

	if w.view.Disconnected {
		msg := "daemon unreachable"
		if w.view.Err != nil {
			msg = "daemon unreachable: " + w.view.Err.Error()
		}
		b.WriteString(BannerStyle.Render(msg))
		b.WriteString("\n\n")
	}

	if w.mode == modeFilter {
		b.WriteString(SearchBoxStyle.Render(w.filterInput.View()))
		b.WriteString("\n\n")
	}
	if w.mode == modeRename {
		label := "rename session"
		if w.renameRow.kind == rowGroup {
			label = "rename window"
		}
		b.WriteString(SearchBoxStyle.Render(label + ": " + w.renameInput.View()))
		b.WriteString("\n\n")
	}

	if len(w.rows) == 0 && !w.view.Disconnected {
		b.WriteString(DimStyle.Render("  no active sessions"))
		b.WriteString("\n")
	}

	for i, r := range w.rows {
		b.WriteString(w.renderRow(r, i == w.cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if w.status != "" {
		b.WriteString(ErrorStyle.Render(w.status))
		b.WriteString("\n")
	}
	b.WriteString(w.renderMenu())
	return b.String()
}

func (w *Watch) renderRow(r row, active bool) string {
	if r.kind == rowGroup {
		line := fmt.Sprintf("▸ %s (%d)", r.group.Name, len(r.group.Sessions))
		if active {
			return ItemActiveStyle.Render(line)
		}
		return GroupStyle.Render(line)
	}

	s := r.session
	indent := ""
	if r.indent {
		indent = "  "
	}

	name := runewidth.Truncate(s.DisplayName(), 28, "…")
	state := fmt.Sprintf("%-10s", s.State)

	extras := make([]string, 0, 3)
	if s.TabTitle != "" && s.TabTitle != s.DisplayName() {
		extras = append(extras, runewidth.Truncate(s.TabTitle, 20, "…"))
	}
	if s.ContextPercentage != nil {
		// Stored as a fraction in [0,1].
		extras = append(extras, fmt.Sprintf("ctx %.0f%%", *s.ContextPercentage*100))
	}
	if s.MemoryRSS > 0 {
		extras = append(extras, formatMemory(s.MemoryRSS))
	}

	line := fmt.Sprintf("%s%s %s %s", indent, "●", runewidth.FillRight(name, 28), state)
	if active {
		// The row style owns the whole line; no per-column colors inside.
		if len(extras) > 0 {
			line += "  " + strings.Join(extras, "  ")
		}
		return ItemActiveStyle.Render(line)
	}

	dot := StateStyle(string(s.State)).Render("●")
	line = fmt.Sprintf("%s%s %s %s", indent, dot, runewidth.FillRight(name, 28), state)
	if len(extras) > 0 {
		line += "  " + DimStyle.Render(strings.Join(extras, "  "))
	}
	return ItemStyle.Render(line)
}

func (w *Watch) renderMenu() string {
	entries := []struct{ key, desc string }{
		{"↑/↓", "navigate"},
		{"enter", "focus"},
		{"r", "rename"},
		{"d", "remove"},
		{"/", "filter"},
		{"q", "quit"},
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = MenuKeyStyle.Render(e.key) + " " + MenuDescStyle.Render(e.desc)
	}
	return strings.Join(parts, DimStyle.Render(" · "))
}

// formatMemory renders a byte count the way top does: one decimal below
// 10G, whole numbers otherwise.
func formatMemory(bytes uint64) string {
	const (
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= 10*gb:
		return fmt.Sprintf("%dG", bytes/gb)
	case bytes >= gb:
		return fmt.Sprintf("%.1fG", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%dM", bytes/mb)
	default:
		return fmt.Sprintf("%dK", bytes/(1<<10))
	}
}
