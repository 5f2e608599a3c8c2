package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/depgraph"
	"github.com/vrsandeep/mango-updater/internal/fetcher"
	"github.com/vrsandeep/mango-updater/internal/manifest"
	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources/remote"
)

// Reporter receives the outcome of every install and uninstall.
type Reporter interface {
	Report(operation, plugin string, code models.ResultCode, message string)
}

// Installer installs plugins from remote manifests and uninstalls them.
type Installer struct {
	store    *manifest.Store
	fetcher  *fetcher.Fetcher
	paths    Paths
	reporter Reporter
	now      func() time.Time
}

// New creates an Installer.
func New(store *manifest.Store, f *fetcher.Fetcher, paths Paths) *Installer {
	return &Installer{store: store, fetcher: f, paths: paths, now: time.Now}
}

// SetReporter installs r as the outcome observer.
func (in *Installer) SetReporter(r Reporter) {
	in.reporter = r
}

// Begin starts a transaction on the installer's manifest and directories.
func (in *Installer) Begin(ctx context.Context) (*Txn, error) {
	return Begin(ctx, in.store, in.paths)
}

// Paths returns the directories the installer operates on.
func (in *Installer) Paths() Paths {
	return in.paths
}

// Fetcher returns the fetcher used for downloads.
func (in *Installer) Fetcher() *fetcher.Fetcher {
	return in.fetcher
}

type failure struct {
	code models.ResultCode
	msg  string
}

func fail(code models.ResultCode, format string, args ...any) *failure {
	return &failure{code: code, msg: fmt.Sprintf(format, args...)}
}

func (in *Installer) report(op, plugin string, code models.ResultCode, msg string) {
	ev := log.Info()
	if !code.Satisfied() {
		ev = log.Warn()
	}
	ev.Str("op", op).Str("plugin", plugin).Str("code", string(code)).Msg(msg)
	if in.reporter != nil {
		in.reporter.Report(op, plugin, code, msg)
	}
}

// guard converts a panic into UNEXPECTED_EXCEPTION after reverting txn.
func (in *Installer) guard(op string, txn **Txn, code *models.ResultCode, msg *string) {
	r := recover()
	if r == nil {
		return
	}
	if *txn != nil {
		(*txn).Revert()
	}
	log.Error().Str("op", op).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Unexpected failure")
	*code = models.ResultUnexpected
	*msg = fmt.Sprintf("unexpected error: %v", r)
	in.report(op, "", *code, *msg)
}

// InstallFromManifestURL installs the plugin described by the remote
// manifest at url together with its dependency closure. token is sent as
// Private-Token and kept as the plugin's update token.
func (in *Installer) InstallFromManifestURL(ctx context.Context, url, token string) (code models.ResultCode, msg string) {
	var txn *Txn
	defer in.guard("install", &txn, &code, &msg)

	txn, err := in.Begin(ctx)
	if err != nil {
		code, msg = models.ResultUnexpected, fmt.Sprintf("failed to open manifest: %v", err)
		in.report("install", "", code, msg)
		return code, msg
	}
	defer txn.Revert()

	name, already, f := in.installManifest(ctx, txn, url, token)
	if f != nil {
		in.report("install", name, f.code, f.msg)
		return f.code, f.msg
	}
	if already {
		// Same plugin from the same URL: nothing to commit.
		msg = fmt.Sprintf("%s is already installed", name)
		in.report("install", name, models.ResultAlreadyInstalled, msg)
		return models.ResultAlreadyInstalled, msg
	}

	if f := in.regenerate(txn); f != nil {
		in.report("install", name, f.code, f.msg)
		return f.code, f.msg
	}
	if err := txn.Commit(); err != nil {
		code, msg = models.ResultFailedToStoreAssembly, err.Error()
		in.report("install", name, code, msg)
		return code, msg
	}

	pm := txn.Manifest.Plugins[name]
	msg = fmt.Sprintf("Installed %s %s", name, pm.CurrentVersion)
	in.report("install", name, models.ResultSuccess, msg)
	return models.ResultSuccess, msg
}

// installManifest resolves one remote manifest depth first. already is set
// when the plugin is installed from url and nothing was staged for it.
func (in *Installer) installManifest(ctx context.Context, txn *Txn, url, token string) (name string, already bool, f *failure) {
	req, err := in.fetcher.Client().NewRequest(ctx, url)
	if err != nil {
		return "", false, fail(models.ResultFailedToDownloadManifest, "%v", err)
	}
	if token != "" {
		req.Header.Set("Private-Token", token)
	}
	data, err := in.fetcher.Client().Get(req)
	if err != nil {
		return "", false, fail(models.ResultFailedToDownloadManifest, "failed to download manifest from %s: %v", url, err)
	}
	rm, err := remote.Decode(data)
	if err != nil {
		log.Warn().Str("url", url).Str("payload", truncate(string(data), 512)).Msg("Malformed plugin manifest")
		return "", false, fail(models.ResultFailedToParseManifest, "%v", err)
	}

	name = rm.PluginName()
	if txn.visited[name] {
		return name, false, nil
	}
	txn.visited[name] = true

	existing := txn.Manifest.Plugins[name]
	if existing != nil && existing.UpdateURL == url {
		return name, true, nil
	}
	if existing != nil {
		log.Info().Str("plugin", name).Str("old_url", existing.UpdateURL).Str("new_url", url).Msg("Plugin already installed from another source, updating")
	}

	for _, dep := range rm.Dependencies {
		if f := in.installDependency(ctx, txn, name, dep, token); f != nil {
			return name, false, f
		}
	}

	if f := in.stagePlugin(ctx, txn, rm, token); f != nil {
		return name, false, f
	}
	if existing != nil && existing.FileName != "" && existing.FileName != rm.FileName {
		if _, err := txn.Remove(models.KindPlugin, existing.FileName); err != nil {
			return name, false, fail(models.ResultFailedToDeleteAssembly, "failed to remove previous binary %s: %v", existing.FileName, err)
		}
		log.Info().Str("plugin", name).Str("old_file", existing.FileName).Str("new_file", rm.FileName).Msg("Replacing plugin binary")
	}

	pm := existing
	if pm == nil {
		pm = &models.PluginManifest{PluginName: name}
		txn.Manifest.Plugins[name] = pm
	}
	pm.SourceType = models.SourceManifest
	pm.Development = false
	pm.UpdateURL = url
	pm.Token = token
	pm.FileName = rm.FileName
	pm.Dependencies = append([]models.PluginDependency(nil), rm.Dependencies...)
	build := rm.BuildID
	if build == "" {
		build = rm.LatestVersion
	}
	pm.MarkUpdated(rm.LatestVersion, build, in.now())
	return name, false, nil
}

func (in *Installer) installDependency(ctx context.Context, txn *Txn, owner string, dep models.PluginDependency, token string) *failure {
	if dep.IsPlugin {
		if dep.DownloadURL == "" {
			if _, ok := findPluginByFile(txn.Manifest, dep.FileName); ok {
				return nil
			}
			return fail(models.ResultFailedToFindDependency, "plugin dependency %s of %s has no download url and is not installed", dep.FileName, owner)
		}
		_, _, f := in.installManifest(ctx, txn, dep.DownloadURL, token)
		if f != nil {
			return fail(models.ResultFailedToInstallDependency, "dependency %s of %s: %s: %s", dep.FileName, owner, f.code, f.msg)
		}
		return nil
	}

	if txn.IsStaged(models.KindDependency, dep.FileName) {
		return nil
	}
	if rec, ok := txn.Manifest.Dependencies[dep.FileName]; ok && exists(in.livePath(models.KindDependency, dep.FileName)) {
		log.Debug().Str("plugin", owner).Str("dependency", rec.FileName).Msg("Dependency already installed")
		return nil
	}
	if dep.DownloadURL == "" {
		return fail(models.ResultFailedToFindDependency, "dependency %s of %s has no download url and is not installed", dep.FileName, owner)
	}

	req, err := in.fetcher.Client().NewRequest(ctx, dep.DownloadURL)
	if err != nil {
		return fail(models.ResultFailedToInstallDependency, "dependency %s of %s: %v", dep.FileName, owner, err)
	}
	var stageErr error
	err = in.fetcher.FetchFile(req, models.KindDependency, dep.FileName, func(kind models.FileKind, name, path string) error {
		stageErr = txn.StageFile(kind, name, path)
		return stageErr
	})
	switch {
	case stageErr != nil:
		return fail(models.ResultFailedToInstallDependency, "dependency %s of %s: %s: %v", dep.FileName, owner, models.ResultFailedToStoreAssembly, stageErr)
	case err != nil:
		return fail(models.ResultFailedToInstallDependency, "dependency %s of %s: %s: %v", dep.FileName, owner, models.ResultFailedToDownloadAssembly, err)
	}

	if _, ok := txn.Manifest.Dependencies[dep.FileName]; !ok {
		txn.Manifest.Dependencies[dep.FileName] = &models.DependencyRecord{FileName: dep.FileName, DownloadURL: dep.DownloadURL}
	}
	return nil
}

func (in *Installer) stagePlugin(ctx context.Context, txn *Txn, rm *models.RemoteManifest, token string) *failure {
	req, err := in.fetcher.Client().NewRequest(ctx, rm.UpdateURL)
	if err != nil {
		return fail(models.ResultFailedToDownloadAssembly, "%v", err)
	}
	if token != "" {
		req.Header.Set("Private-Token", token)
	}
	var stageErr error
	err = in.fetcher.FetchFile(req, models.KindPlugin, rm.FileName, func(kind models.FileKind, name, path string) error {
		stageErr = txn.StageFile(kind, name, path)
		return stageErr
	})
	switch {
	case stageErr != nil:
		return fail(models.ResultFailedToStoreAssembly, "failed to store %s: %v", rm.FileName, stageErr)
	case err != nil:
		return fail(models.ResultFailedToDownloadAssembly, "failed to download %s: %v", rm.FileName, err)
	}
	return nil
}

func (in *Installer) regenerate(txn *Txn) *failure {
	res, err := depgraph.Regenerate(txn.Manifest, txn.EvictDependency)
	if err != nil {
		return fail(models.ResultFailedToUninstallDependency, "%v", err)
	}
	for _, p := range res.Problems {
		log.Error().Err(p).Str("txn", txn.ID).Msg("Dependency graph inconsistency")
	}
	return nil
}

func (in *Installer) livePath(kind models.FileKind, name string) string {
	if kind == models.KindDependency {
		return filepath.Join(in.paths.Dependencies, name)
	}
	return filepath.Join(in.paths.Plugins, name)
}

func findPluginByFile(m *models.ServerManifest, fileName string) (string, bool) {
	for _, name := range m.PluginNames() {
		if m.Plugins[name].FileName == fileName {
			return name, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
