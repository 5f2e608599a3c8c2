// Package manifest persists the server manifest and serialises every
// read-modify-write of it.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// Store owns the manifest file. All access goes through a Session, which
// holds the lock for its whole lifetime.
type Store struct {
	path string
	lock *lock

	mu       sync.Mutex
	loaded   bool
	lastSeen *time.Time
}

// NewStore creates a store for the manifest at path. wait bounds the lock
// acquire.
func NewStore(path string, wait time.Duration) *Store {
	return &Store{path: path, lock: newLock(wait)}
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Session is an exclusive view of the manifest. Manifest has tokens applied.
type Session struct {
	Manifest *models.ServerManifest
	// ChangedExternally is set when LastUpdateCheck on disk differs from the
	// value this process last loaded or saved.
	ChangedExternally bool

	store    *Store
	released bool
}

// Acquire takes the lock and loads the manifest. A missing manifest is
// created empty and persisted. The caller must call Release.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	if err := s.lock.acquire(ctx); err != nil {
		return nil, err
	}

	m, err := s.load()
	if err != nil {
		s.lock.release()
		return nil, err
	}

	s.mu.Lock()
	changed := s.loaded && !sameTime(s.lastSeen, m.LastUpdateCheck)
	s.loaded = true
	s.lastSeen = copyTime(m.LastUpdateCheck)
	s.mu.Unlock()

	if changed {
		log.Info().Str("path", s.path).Msg("Manifest changed since it was last read")
	}

	m.ApplyTokens()
	return &Session{Manifest: m, ChangedExternally: changed, store: s}, nil
}

// Read returns a detached copy of the manifest with tokens applied.
func (s *Store) Read(ctx context.Context) (*models.ServerManifest, error) {
	sess, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	return sess.Manifest.Clone(), nil
}

// Save persists the session's manifest. Secrets are replaced by their
// placeholders for the write and restored afterwards.
func (sess *Session) Save() error {
	if sess.released {
		return errors.New("manifest session already released")
	}
	return sess.store.save(sess.Manifest)
}

// Release drops the lock. It is safe to call more than once.
func (sess *Session) Release() {
	if sess.released {
		return
	}
	sess.released = true
	sess.store.lock.release()
}

// ChangedOnDisk reports whether the persisted LastUpdateCheck differs from
// the value this process last loaded or saved. It does not take the lock.
func (s *Store) ChangedOnDisk() (bool, error) {
	s.mu.Lock()
	loaded, lastSeen := s.loaded, copyTime(s.lastSeen)
	s.mu.Unlock()
	if !loaded {
		return false, nil
	}

	m, err := s.readFile()
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return !sameTime(lastSeen, m.LastUpdateCheck), nil
}

func (s *Store) load() (*models.ServerManifest, error) {
	m, err := s.readFile()
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}

	log.Info().Str("path", s.path).Msg("No manifest found, creating an empty one")
	m = models.NewServerManifest()
	if err := s.save(m); err != nil {
		return nil, err
	}
	return m, nil
}

// readFile returns nil without error when the manifest does not exist.
func (s *Store) readFile() (*models.ServerManifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m models.ServerManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", s.path, err)
	}
	return &m, nil
}

func (s *Store) save(m *models.ServerManifest) error {
	applied := m.TokensApplied()
	m.UnapplyTokens()
	if applied {
		defer m.ApplyTokens()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	// Record what we are about to write so the watcher does not report
	// our own save as an external change.
	s.mu.Lock()
	prevLoaded, prevSeen := s.loaded, s.lastSeen
	s.loaded, s.lastSeen = true, copyTime(m.LastUpdateCheck)
	s.mu.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		s.mu.Lock()
		s.loaded, s.lastSeen = prevLoaded, prevSeen
		s.mu.Unlock()
		return err
	}
	return nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
