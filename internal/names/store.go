// Package names persists user-chosen display names for sessions and windows.
//
// Each store is one flat JSON document mapping id -> name, loaded once at
// construction and rewritten in full on every mutation. Access is
// single-threaded from the reconciliation client's perspective; the mutex
// only guards against the UI goroutine racing a reload.
package names

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/twistedxcom/statusdeck/internal/logging"
)

var namesLog = logging.ForComponent(logging.CompNames)

// Store is a durable string -> string mapping.
type Store struct {
	path string

	mu    sync.RWMutex
	names map[string]string
}

// Open loads the store from path. A missing document yields an empty store;
// an unreadable or corrupt one is an error so the caller can decide.
func Open(path string) (*Store, error) {
	s := &Store{path: path, names: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read name store: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.names); err != nil {
		return nil, fmt.Errorf("failed to parse name store %s: %w", path, err)
	}
	return s, nil
}

// GetName returns the stored override for id, if any.
func (s *Store) GetName(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[id]
	return name, ok
}

// SetName stores a name for id and writes the document through. An empty or
// whitespace-only name removes the entry entirely.
func (s *Store) SetName(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		delete(s.names, id)
	} else {
		s.names[id] = name
	}
	return s.writeLocked()
}

// ClearName removes the entry for id and writes through.
func (s *Store) ClearName(id string) error {
	return s.SetName(id, "")
}

// GetAllNames returns a copy of the full mapping for bulk merge.
func (s *Store) GetAllNames() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

// Reload re-reads the document from disk, replacing the in-memory mapping.
// Used when the file watcher reports an external edit.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.names = make(map[string]string)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to reload name store: %w", err)
	}

	fresh := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fresh); err != nil {
			return fmt.Errorf("failed to parse name store %s: %w", s.path, err)
		}
	}

	s.mu.Lock()
	s.names = fresh
	s.mu.Unlock()
	return nil
}

// Path returns the backing document path.
func (s *Store) Path() string {
	return s.path
}

// writeLocked rewrites the full document atomically (tmp + rename).
func (s *Store) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create name store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.names, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal name store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write name store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace name store: %w", err)
	}

	namesLog.Debug("name_store_written",
		slog.String("path", s.path),
		slog.Int("entries", len(s.names)))
	return nil
}
