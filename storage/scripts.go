package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ScriptStore keeps the scripts imported by a session, one file per
// execution context, so they can be prepended to later executions.
type ScriptStore struct {
	dir       string
	persister FilePersister

	mu sync.Mutex
}

// NewScriptStore returns a store writing below dir. An empty dir creates a
// fresh temporary directory.
func NewScriptStore(dir string) (*ScriptStore, error) {
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "marionette-scripts-*"); err != nil {
			return nil, fmt.Errorf("creating script directory: %w", err)
		}
	}
	return &ScriptStore{
		dir:       dir,
		persister: &LocalFilePersister{Append: true},
	}, nil
}

// Dir returns the directory the scripts are stored in.
func (s *ScriptStore) Dir() string { return s.dir }

func (s *ScriptStore) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name)+".js")
}

// Append adds script to the scripts stored under name.
func (s *ScriptStore) Append(ctx context.Context, name, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persister.Persist(ctx, s.path(name), strings.NewReader(script+"\n"))
}

// Read returns the scripts stored under name, or an empty string when none
// were imported.
func (s *ScriptStore) Read(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bb, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading imported scripts %q: %w", name, err)
	}
	return string(bb), nil
}

// Remove deletes the scripts stored under name.
func (s *ScriptStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing imported scripts %q: %w", name, err)
	}
	return nil
}

// Close removes the store's directory.
func (s *ScriptStore) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing script directory: %w", err)
	}
	return nil
}
