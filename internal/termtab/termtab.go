// Package termtab maps terminal devices to the tabs and windows that own
// them. Introspection is best-effort: the terminal multiplexer may not be
// running at all, which is reported as ErrUnavailable rather than a failure.
package termtab

import (
	"context"
	"errors"
)

// ErrUnavailable means the terminal application is not running. Callers skip
// enrichment and stale-detection for the pass instead of treating it as an
// error.
var ErrUnavailable = errors.New("terminal introspection unavailable")

// Tab describes one terminal tab as seen by introspection.
type Tab struct {
	// WindowID is an opaque correlation key; ttys sharing it live in the
	// same terminal window.
	WindowID string

	// Title is the tab's display title.
	Title string
}

// Provider exposes terminal introspection. Implementations must return
// ErrUnavailable (not an empty map) when the terminal application is absent,
// since "no active ttys" and "cannot see ttys" have different consequences
// for stale detection.
type Provider interface {
	// ActiveTabs returns the current tty -> tab mapping.
	ActiveTabs(ctx context.Context) (map[string]Tab, error)

	// Focus brings the window owning tty to the front.
	Focus(ctx context.Context, tty string) error
}
