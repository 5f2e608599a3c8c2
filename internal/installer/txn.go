// Package installer performs every mutation of the live plugin and
// dependency directories through a staged transaction.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/manifest"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// ErrTxnClosed is returned by operations on a committed or reverted transaction.
var ErrTxnClosed = errors.New("transaction already closed")

// Paths are the live directories and the staging root.
type Paths struct {
	Plugins      string
	Dependencies string
	Staging      string
}

type txnState int

const (
	stateStaging txnState = iota
	stateCommitting
	stateReverting
	stateClosed
)

type fileKey struct {
	kind models.FileKind
	name string
}

type undoOp int

const (
	undoAdd undoOp = iota
	undoRemove
	undoUnstage
)

type undoEntry struct {
	op  undoOp
	key fileKey
	// parked holds the staged content an add replaced or an unstage
	// dropped, so a rollback can bring it back.
	parked string
}

// Savepoint marks a position a transaction can be rolled back to.
type Savepoint int

// Txn is one staged operation. It holds the manifest lock from Begin until
// Commit or Revert. Files are only written to the live directories during
// Commit.
type Txn struct {
	ID       string
	Manifest *models.ServerManifest

	sess   *manifest.Session
	paths  Paths
	state  txnState
	logger zerolog.Logger

	adds    map[fileKey]string
	removes map[fileKey]string
	undo    []undoEntry
	parkSeq int
	// visited tracks remote manifests already resolved in this operation.
	visited map[string]bool
}

// Begin acquires the manifest and prepares empty staging directories.
func Begin(ctx context.Context, store *manifest.Store, paths Paths) (*Txn, error) {
	sess, err := store.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	t := &Txn{
		ID:       uuid.NewString(),
		Manifest: sess.Manifest,
		sess:     sess,
		paths:    paths,
		adds:     make(map[fileKey]string),
		removes:  make(map[fileKey]string),
		visited:  make(map[string]bool),
	}
	t.logger = log.With().Str("txn", t.ID).Logger()

	// Leftovers belong to an operation that never finished; the live
	// directories are authoritative.
	if err := t.resetStaging(); err != nil {
		sess.Release()
		return nil, fmt.Errorf("failed to prepare staging directory: %w", err)
	}
	return t, nil
}

// ChangedExternally reports whether the manifest was modified by another
// process since this one last read it.
func (t *Txn) ChangedExternally() bool {
	return t.sess.ChangedExternally
}

// stagingSubdir keeps each kind in its own directory so no file name can
// collide with another kind's directory.
func stagingSubdir(kind models.FileKind) string {
	if kind == models.KindDependency {
		return "dependencies"
	}
	return "plugins"
}

func (t *Txn) addDir(kind models.FileKind) string {
	return filepath.Join(t.paths.Staging, "add", stagingSubdir(kind))
}

func (t *Txn) removeDir(kind models.FileKind) string {
	return filepath.Join(t.paths.Staging, "remove", stagingSubdir(kind))
}

func (t *Txn) liveDir(kind models.FileKind) string {
	if kind == models.KindDependency {
		return t.paths.Dependencies
	}
	return t.paths.Plugins
}

func (t *Txn) parkDir() string {
	return filepath.Join(t.paths.Staging, "park")
}

func (t *Txn) resetStaging() error {
	for _, dir := range []string{
		filepath.Join(t.paths.Staging, "add"),
		filepath.Join(t.paths.Staging, "remove"),
		t.parkDir(),
	} {
		if err := clearDir(dir); err != nil {
			return err
		}
	}
	for _, dir := range []string{
		t.addDir(models.KindPlugin),
		t.addDir(models.KindDependency),
		t.removeDir(models.KindPlugin),
		t.removeDir(models.KindDependency),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) park(path string) (string, error) {
	t.parkSeq++
	parked := filepath.Join(t.parkDir(), strconv.Itoa(t.parkSeq))
	if err := moveFile(path, parked); err != nil {
		return "", err
	}
	return parked, nil
}

func (t *Txn) open() error {
	if t.state != stateStaging {
		return ErrTxnClosed
	}
	return nil
}

// StageFile moves src into add-staging as the file name of kind. A file
// already staged under the same key is replaced.
func (t *Txn) StageFile(kind models.FileKind, name, src string) error {
	if err := t.open(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}

	key := fileKey{kind, name}
	entry := undoEntry{op: undoAdd, key: key}
	if prev, ok := t.adds[key]; ok {
		parked, err := t.park(prev)
		if err != nil {
			return fmt.Errorf("failed to replace staged %s: %w", name, err)
		}
		entry.parked = parked
	}

	dst := filepath.Join(t.addDir(kind), name)
	if err := moveFile(src, dst); err != nil {
		if entry.parked != "" {
			moveFile(entry.parked, dst)
		}
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	t.adds[key] = dst
	t.undo = append(t.undo, entry)
	t.logger.Debug().Str("file", name).Stringer("kind", kind).Msg("Staged file")
	return nil
}

// IsStaged reports whether a file of kind is pending addition.
func (t *Txn) IsStaged(kind models.FileKind, name string) bool {
	_, ok := t.adds[fileKey{kind, name}]
	return ok
}

// Unstage drops a pending addition. It is a no-op if nothing is staged.
func (t *Txn) Unstage(kind models.FileKind, name string) error {
	if err := t.open(); err != nil {
		return err
	}
	key := fileKey{kind, name}
	path, ok := t.adds[key]
	if !ok {
		return nil
	}
	parked, err := t.park(path)
	if err != nil {
		return fmt.Errorf("failed to unstage %s: %w", name, err)
	}
	delete(t.adds, key)
	t.undo = append(t.undo, undoEntry{op: undoUnstage, key: key, parked: parked})
	return nil
}

// Remove moves the live file of kind into remove-staging. It reports false
// when there is no live file to remove.
func (t *Txn) Remove(kind models.FileKind, name string) (bool, error) {
	if err := t.open(); err != nil {
		return false, err
	}
	if err := validName(name); err != nil {
		return false, err
	}
	key := fileKey{kind, name}
	if _, ok := t.removes[key]; ok {
		return true, nil
	}

	live := filepath.Join(t.liveDir(kind), name)
	if !exists(live) {
		return false, nil
	}
	staged := filepath.Join(t.removeDir(kind), name)
	if err := moveFile(live, staged); err != nil {
		return false, fmt.Errorf("failed to stage removal of %s: %w", name, err)
	}
	t.removes[key] = staged
	t.undo = append(t.undo, undoEntry{op: undoRemove, key: key})
	t.logger.Debug().Str("file", name).Stringer("kind", kind).Msg("Staged removal")
	return true, nil
}

// EvictDependency stages the removal of a dependency that lost its last
// owner, including any pending addition of it. A missing live file only
// logs a warning.
func (t *Txn) EvictDependency(rec *models.DependencyRecord) error {
	if err := t.Unstage(models.KindDependency, rec.FileName); err != nil {
		return err
	}
	removed, err := t.Remove(models.KindDependency, rec.FileName)
	if err != nil {
		return err
	}
	if !removed {
		t.logger.Warn().Str("dependency", rec.FileName).Msg("Dependency file already missing from disk")
	}
	return nil
}

// Mark returns a savepoint for RollbackTo.
func (t *Txn) Mark() Savepoint {
	return Savepoint(len(t.undo))
}

// RollbackTo undoes every staging step taken after sp. The manifest is not
// touched.
func (t *Txn) RollbackTo(sp Savepoint) error {
	if t.state == stateClosed {
		return ErrTxnClosed
	}
	var errs []error
	for len(t.undo) > int(sp) {
		e := t.undo[len(t.undo)-1]
		t.undo = t.undo[:len(t.undo)-1]
		if err := t.undoOne(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Txn) undoOne(e undoEntry) error {
	switch e.op {
	case undoAdd:
		path := t.adds[e.key]
		delete(t.adds, e.key)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if e.parked != "" {
			if err := moveFile(e.parked, path); err != nil {
				return err
			}
			t.adds[e.key] = path
		}
	case undoUnstage:
		path := filepath.Join(t.addDir(e.key.kind), e.key.name)
		if err := moveFile(e.parked, path); err != nil {
			return err
		}
		t.adds[e.key] = path
	case undoRemove:
		staged := t.removes[e.key]
		delete(t.removes, e.key)
		if err := moveFile(staged, filepath.Join(t.liveDir(e.key.kind), e.key.name)); err != nil {
			return fmt.Errorf("failed to restore %s: %w", e.key.name, err)
		}
	}
	return nil
}

// Commit copies every staged addition into the live directories, saves the
// manifest and clears staging. Live files it overwrites are backed up first;
// on any failure the live directories and manifest file are restored.
func (t *Txn) Commit() error {
	if err := t.open(); err != nil {
		return err
	}
	t.state = stateCommitting
	defer t.close()

	var copied []string
	backups := make(map[string]string)
	restore := func() {
		for _, live := range copied {
			os.Remove(live)
		}
		for live, backup := range backups {
			if err := moveFile(backup, live); err != nil {
				t.logger.Error().Err(err).Str("file", live).Msg("Failed to restore overwritten file")
			}
		}
		if err := t.RollbackTo(0); err != nil {
			t.logger.Error().Err(err).Msg("Failed to restore removed files")
		}
	}

	for key, staged := range t.adds {
		live := filepath.Join(t.liveDir(key.kind), key.name)
		if exists(live) {
			backup := filepath.Join(t.paths.Staging, "backup", strconv.Itoa(len(backups)))
			if err := moveFile(live, backup); err != nil {
				restore()
				return fmt.Errorf("failed to back up %s: %w", live, err)
			}
			backups[live] = backup
		}
		if err := copyFile(staged, live); err != nil {
			restore()
			return fmt.Errorf("failed to install %s: %w", key.name, err)
		}
		copied = append(copied, live)
	}

	if err := t.sess.Save(); err != nil {
		restore()
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	t.logger.Info().Int("added", len(t.adds)).Int("removed", len(t.removes)).Msg("Transaction committed")
	return nil
}

// Revert discards every staged change and releases the manifest. It is a
// no-op on a closed transaction, so it can be deferred unconditionally.
func (t *Txn) Revert() error {
	if t.state != stateStaging {
		return nil
	}
	t.state = stateReverting
	defer t.close()

	err := t.RollbackTo(0)
	if err != nil {
		t.logger.Error().Err(err).Msg("Revert could not restore every file")
	} else {
		t.logger.Debug().Msg("Transaction reverted")
	}
	return err
}

func (t *Txn) close() {
	if err := t.cleanStaging(); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to clean staging directory")
	}
	t.adds = map[fileKey]string{}
	t.removes = map[fileKey]string{}
	t.undo = nil
	t.state = stateClosed
	t.sess.Release()
}

func (t *Txn) cleanStaging() error {
	return errors.Join(
		clearDir(filepath.Join(t.paths.Staging, "add")),
		clearDir(filepath.Join(t.paths.Staging, "remove")),
		os.RemoveAll(t.parkDir()),
		os.RemoveAll(filepath.Join(t.paths.Staging, "backup")),
	)
}
