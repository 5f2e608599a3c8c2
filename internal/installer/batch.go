package installer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vrsandeep/mango-updater/internal/models"
)

type batchFile struct {
	kind models.FileKind
	name string
	path string
}

// Batch collects downloaded files outside any transaction, so the manifest
// lock is only needed once they are staged.
type Batch struct {
	dir   string
	files []batchFile
}

func (in *Installer) pendingDir() string {
	return filepath.Join(in.paths.Staging, "pending")
}

// NewBatch creates an empty batch below the staging root. The caller must
// call Discard.
func (in *Installer) NewBatch() (*Batch, error) {
	if err := os.MkdirAll(in.pendingDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pending directory: %w", err)
	}
	dir, err := os.MkdirTemp(in.pendingDir(), "batch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create pending directory: %w", err)
	}
	return &Batch{dir: dir}, nil
}

// Add moves src into the batch as the file name of kind.
func (b *Batch) Add(kind models.FileKind, name, src string) error {
	if err := validName(name); err != nil {
		return err
	}
	dst := filepath.Join(b.dir, strconv.Itoa(len(b.files)))
	if err := moveFile(src, dst); err != nil {
		return fmt.Errorf("failed to keep %s: %w", name, err)
	}
	b.files = append(b.files, batchFile{kind: kind, name: name, path: dst})
	return nil
}

// Len is the number of files collected.
func (b *Batch) Len() int {
	return len(b.files)
}

// StageInto stages every collected file into txn in the order added. On
// failure nothing of the batch stays staged.
func (b *Batch) StageInto(txn *Txn) error {
	sp := txn.Mark()
	for _, f := range b.files {
		if err := txn.StageFile(f.kind, f.name, f.path); err != nil {
			return errors.Join(err, txn.RollbackTo(sp))
		}
	}
	b.files = nil
	return nil
}

// Discard deletes whatever is left of the batch.
func (b *Batch) Discard() error {
	b.files = nil
	return os.RemoveAll(b.dir)
}
