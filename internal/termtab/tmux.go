package termtab

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/twistedxcom/statusdeck/internal/logging"
)

var tabLog = logging.ForComponent(logging.CompTermTab)

// listPanesFormat yields one tab-separated line per pane.
const listPanesFormat = "#{pane_tty}\t#{window_id}\t#{window_name}\t#{pane_id}"

// TmuxProvider introspects tmux panes. Every pane has a pty, so the pane
// list doubles as the active-tty set.
type TmuxProvider struct {
	// runTmux is injectable for tests.
	runTmux func(ctx context.Context, args ...string) (string, error)

	// Introspection spawns a subprocess on the polling path; the limiter
	// caps that at a few spawns per second, serving cached data in between.
	limiter *rate.Limiter

	mu         sync.Mutex
	cached     map[string]Tab
	cachedPane map[string]string // tty -> pane_id, for Focus
	haveCache  bool
}

// NewTmuxProvider creates a provider backed by the tmux CLI.
func NewTmuxProvider() *TmuxProvider {
	return &TmuxProvider{
		runTmux: runTmuxCommand,
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
	}
}

// ActiveTabs lists every pane's tty with its window correlation key and
// title. Returns ErrUnavailable when no tmux server is running.
func (p *TmuxProvider) ActiveTabs(ctx context.Context) (map[string]Tab, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.limiter.Allow() && p.haveCache {
		return copyTabs(p.cached), nil
	}

	out, err := p.runTmux(ctx, "list-panes", "-a", "-F", listPanesFormat)
	if err != nil {
		p.haveCache = false
		tabLog.Debug("tmux_unavailable", slog.String("error", err.Error()))
		return nil, ErrUnavailable
	}

	tabs, panes := parsePaneList(out)
	p.cached = tabs
	p.cachedPane = panes
	p.haveCache = true
	return copyTabs(tabs), nil
}

// Focus selects the window and pane owning tty and brings the tmux client
// to it.
func (p *TmuxProvider) Focus(ctx context.Context, tty string) error {
	p.mu.Lock()
	paneID, ok := p.cachedPane[tty]
	p.mu.Unlock()

	if !ok {
		// Cache may be stale; refresh once before giving up.
		if _, err := p.ActiveTabs(ctx); err != nil {
			return fmt.Errorf("cannot focus %s: %w", tty, err)
		}
		p.mu.Lock()
		paneID, ok = p.cachedPane[tty]
		p.mu.Unlock()
		if !ok {
			return fmt.Errorf("no pane found for tty %s", tty)
		}
	}

	if _, err := p.runTmux(ctx, "switch-client", "-t", paneID); err != nil {
		return fmt.Errorf("failed to focus pane %s: %w", paneID, err)
	}
	return nil
}

// parsePaneList decodes list-panes output into tty -> tab and tty -> pane id
// mappings. Malformed lines are skipped.
func parsePaneList(out string) (map[string]Tab, map[string]string) {
	tabs := make(map[string]Tab)
	panes := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}
		tty := fields[0]
		if tty == "" {
			continue
		}
		tabs[tty] = Tab{WindowID: fields[1], Title: fields[2]}
		panes[tty] = fields[3]
	}
	return tabs, panes
}

func copyTabs(in map[string]Tab) map[string]Tab {
	out := make(map[string]Tab, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func runTmuxCommand(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
