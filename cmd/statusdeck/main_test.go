package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/twistedxcom/statusdeck/internal/names"
)

func TestFormatAge(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s ago"},
		{90 * time.Second, "1m ago"},
		{45 * time.Minute, "45m ago"},
		{3 * time.Hour, "3h ago"},
		{-10 * time.Second, "0s ago"},
	}
	for _, tc := range cases {
		if got := formatAge(tc.d); got != tc.want {
			t.Errorf("formatAge(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestStartNameWatcher(t *testing.T) {
	dir := t.TempDir()
	store, err := names.Open(filepath.Join(dir, "session_names.json"))
	if err != nil {
		t.Fatal(err)
	}

	watcher := startNameWatcher(func() {}, store)
	if watcher == nil {
		t.Fatal("watcher should start for an existing directory")
	}
	watcher.Stop()
}

func TestStartNameWatcherMissingDir(t *testing.T) {
	dir := t.TempDir()
	store, err := names.Open(filepath.Join(dir, "gone", "session_names.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	// Setup fails because the watched directory does not exist; the TUI
	// must keep working without live reload.
	if watcher := startNameWatcher(func() {}, store); watcher != nil {
		watcher.Stop()
		t.Fatal("watcher should be nil when setup fails")
	}
}
