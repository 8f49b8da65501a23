package common

import (
	"context"
	"crypto/md5" //nolint:gosec
	"fmt"
	"sync"

	"github.com/grafana/xk6-marionette/storage"
)

const (
	chromeScripts  = "marionetteChromeScripts"
	contentScripts = "marionetteContentScripts"
)

// ImportedScripts are the scripts clients imported per context.
// Duplicates are detected by the md5 of the script text.
type ImportedScripts struct {
	store *storage.ScriptStore

	mu     sync.Mutex
	hashes map[Context]map[[md5.Size]byte]struct{}
}

// NewImportedScripts returns imported scripts persisted in store.
func NewImportedScripts(store *storage.ScriptStore) *ImportedScripts {
	return &ImportedScripts{
		store:  store,
		hashes: make(map[Context]map[[md5.Size]byte]struct{}),
	}
}

func fileFor(c Context) string {
	if c == ContextChrome {
		return chromeScripts
	}
	return contentScripts
}

// Import records script for c and reports whether it was not imported
// before. Chrome scripts are persisted, content scripts are kept by the
// listener.
func (s *ImportedScripts) Import(ctx context.Context, c Context, script string) (bool, error) {
	sum := md5.Sum([]byte(script)) //nolint:gosec

	s.mu.Lock()
	hs, ok := s.hashes[c]
	if !ok {
		hs = make(map[[md5.Size]byte]struct{})
		s.hashes[c] = hs
	}
	if _, dup := hs[sum]; dup {
		s.mu.Unlock()
		return false, nil
	}
	hs[sum] = struct{}{}
	s.mu.Unlock()

	if c != ContextChrome {
		return true, nil
	}
	if err := s.store.Append(ctx, fileFor(c), script); err != nil {
		s.mu.Lock()
		delete(hs, sum)
		s.mu.Unlock()
		return false, fmt.Errorf("importing script: %w", err)
	}
	return true, nil
}

// Chrome returns the scripts imported in chrome context.
func (s *ImportedScripts) Chrome() (string, error) {
	src, err := s.store.Read(fileFor(ContextChrome))
	if err != nil {
		return "", fmt.Errorf("reading imported scripts: %w", err)
	}
	return src, nil
}

// Clear forgets the scripts imported in c.
func (s *ImportedScripts) Clear(c Context) error {
	s.mu.Lock()
	delete(s.hashes, c)
	s.mu.Unlock()

	if err := s.store.Remove(fileFor(c)); err != nil {
		return fmt.Errorf("clearing imported scripts: %w", err)
	}
	return nil
}

// ClearAll forgets the scripts imported in every context.
func (s *ImportedScripts) ClearAll() error {
	for _, c := range []Context{ContextChrome, ContextContent} {
		if err := s.Clear(c); err != nil {
			return err
		}
	}
	return nil
}
