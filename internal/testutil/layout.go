package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/vrsandeep/mango-updater/internal/config"
)

// NewLayout returns a default configuration rooted in a fresh temporary
// directory, with the plugin, dependency and updater directories created.
func NewLayout(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults(t.TempDir())
	cfg.Updater.LockTimeout = 1
	cfg.Updater.HTTPTimeout = 5
	for _, dir := range []string{cfg.Paths.Plugins, cfg.Paths.Dependencies, cfg.Paths.Updater} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	return cfg
}

// Snapshot records the content of every regular file under the live plugin
// and dependency directories plus the manifest file. The staging directory
// is excluded. Two equal snapshots mean the observable state is identical.
func Snapshot(t *testing.T, cfg *config.Config) map[string]string {
	t.Helper()
	snap := make(map[string]string)
	staging := cfg.Paths.StagingDir()

	err := filepath.WalkDir(cfg.Paths.Plugins, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == staging {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(cfg.Paths.Plugins, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		snap[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to snapshot %s: %v", cfg.Paths.Plugins, err)
	}
	return snap
}
