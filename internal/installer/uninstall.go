package installer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/depgraph"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// Uninstall removes a plugin and every dependency left without an owner.
// It refuses when another installed plugin declares the plugin itself or
// any of its shared dependencies.
func (in *Installer) Uninstall(ctx context.Context, name string) (code models.ResultCode, msg string) {
	var txn *Txn
	defer in.guard("uninstall", &txn, &code, &msg)

	txn, err := in.Begin(ctx)
	if err != nil {
		code, msg = models.ResultUnexpected, fmt.Sprintf("failed to open manifest: %v", err)
		in.report("uninstall", name, code, msg)
		return code, msg
	}
	defer txn.Revert()

	if f := in.uninstall(txn, name); f != nil {
		in.report("uninstall", name, f.code, f.msg)
		return f.code, f.msg
	}
	if err := txn.Commit(); err != nil {
		code, msg = models.ResultFailedToDeleteAssembly, err.Error()
		in.report("uninstall", name, code, msg)
		return code, msg
	}

	msg = fmt.Sprintf("Uninstalled %s", name)
	in.report("uninstall", name, models.ResultSuccess, msg)
	return models.ResultSuccess, msg
}

func (in *Installer) uninstall(txn *Txn, name string) *failure {
	m := txn.Manifest
	pm, ok := m.Plugins[name]
	if !ok {
		return fail(models.ResultFailedToFindPlugin, "plugin %s is not installed", name)
	}

	if users := depgraph.Dependents(m, pm.FileName, name); len(users) > 0 {
		return fail(models.ResultDependencyRequiredByAnother, "%s is required by %s", name, strings.Join(users, ", "))
	}
	for _, dep := range pm.Dependencies {
		if dep.IsPlugin {
			continue
		}
		if users := depgraph.Dependents(m, dep.FileName, name); len(users) > 0 {
			return fail(models.ResultDependencyRequiredByAnother, "dependency %s of %s is required by %s", dep.FileName, name, strings.Join(users, ", "))
		}
	}

	delete(m.Plugins, name)
	if f := in.regenerate(txn); f != nil {
		return f
	}

	if pm.FileName == "" {
		log.Warn().Str("plugin", name).Msg("Plugin has no file name recorded, only the manifest entry is removed")
		return nil
	}
	removed, err := txn.Remove(models.KindPlugin, pm.FileName)
	if err != nil {
		return fail(models.ResultFailedToDeleteAssembly, "%v", err)
	}
	if !removed {
		log.Warn().Str("plugin", name).Str("file", pm.FileName).Msg("Plugin file already missing from disk")
	}
	return nil
}
