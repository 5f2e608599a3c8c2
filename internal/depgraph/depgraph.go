// Package depgraph maintains the reference counts of shared dependencies.
package depgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// ErrMalformedManifest marks a plugin that declares a dependency for which
// the manifest holds no record.
var ErrMalformedManifest = errors.New("malformed manifest")

// Evictor uninstalls a dependency that no plugin requires any longer.
type Evictor func(rec *models.DependencyRecord) error

// Result describes one regeneration pass.
type Result struct {
	// Evicted lists the dependency records removed, in name order.
	Evicted []string
	// Problems holds one ErrMalformedManifest per missing record.
	Problems []error
}

// Regenerate recomputes every RequiredBy set from the plugins' declared
// non-plugin dependencies, then evicts the records left without owners.
// Missing records are reported and skipped. An eviction error aborts the
// pass with the manifest holding every record not yet evicted.
func Regenerate(m *models.ServerManifest, evict Evictor) (Result, error) {
	var res Result

	for _, rec := range m.Dependencies {
		rec.RequiredBy = nil
	}

	for _, name := range m.PluginNames() {
		plugin := m.Plugins[name]
		for _, dep := range plugin.Dependencies {
			if dep.IsPlugin {
				continue
			}
			rec, ok := m.Dependencies[dep.FileName]
			if !ok {
				err := fmt.Errorf("%w: plugin %s requires %s which has no dependency record", ErrMalformedManifest, name, dep.FileName)
				log.Error().Str("plugin", name).Str("dependency", dep.FileName).Msg("Dependency record missing from manifest")
				res.Problems = append(res.Problems, err)
				continue
			}
			rec.AddOwner(name)
		}
	}

	for _, fileName := range orphans(m) {
		rec := m.Dependencies[fileName]
		if evict != nil {
			if err := evict(rec); err != nil {
				return res, fmt.Errorf("failed to evict dependency %s: %w", fileName, err)
			}
		}
		delete(m.Dependencies, fileName)
		res.Evicted = append(res.Evicted, fileName)
		log.Info().Str("dependency", fileName).Msg("Dependency no longer required, uninstalled")
	}
	return res, nil
}

func orphans(m *models.ServerManifest) []string {
	var names []string
	for name, rec := range m.Dependencies {
		if len(rec.RequiredBy) == 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Dependents returns the plugins other than exclude that list fileName in
// their dependencies, whether as a plugin or as a shared file.
func Dependents(m *models.ServerManifest, fileName, exclude string) []string {
	var out []string
	for _, name := range m.PluginNames() {
		if name == exclude {
			continue
		}
		if m.Plugins[name].DeclaresFile(fileName) {
			out = append(out, name)
		}
	}
	return out
}
