// Package updater runs the periodic update pass: it resolves every installed
// plugin against its source, stages whatever changed and tells the host
// when a restart is needed.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/installer"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// ErrPluginNotFound is returned by CheckAndUpdateOne for an unknown plugin.
var ErrPluginNotFound = errors.New("plugin not found in manifest")

// Host is the process that loads plugins. It decides when to restart.
type Host interface {
	LoadedPlugins() []models.LoadedPlugin
	RequestRestart(reason string)
}

// Notifier receives update events.
type Notifier interface {
	Notify(ev models.Event)
}

// Updater ties the resolver, fetcher and installer transaction together.
type Updater struct {
	installer *installer.Installer
	resolver  *Resolver
	host      Host
	notifier  Notifier
	now       func() time.Time
}

// New creates an Updater. host may be nil when no plugin host is attached,
// as with the CLI.
func New(in *installer.Installer, resolver *Resolver, host Host) *Updater {
	return &Updater{installer: in, resolver: resolver, host: host, now: time.Now}
}

// SetNotifier installs n as the event observer.
func (u *Updater) SetNotifier(n Notifier) {
	u.notifier = n
}

func (u *Updater) notify(typ, plugin, msg string) {
	if u.notifier == nil {
		return
	}
	u.notifier.Notify(models.Event{Type: typ, Plugin: plugin, Message: msg, Time: u.now()})
}

func (u *Updater) requestRestart(reason string) {
	log.Info().Str("reason", reason).Msg("Requesting host restart")
	u.notify(models.EventRestartRequested, "", reason)
	if u.host != nil {
		u.host.RequestRestart(reason)
	}
}

// errChangedExternally aborts a pass when another process rewrote the
// manifest between two of its transactions.
var errChangedExternally = errors.New("manifest changed externally")

// CheckAndUpdateAll checks every installed plugin and commits each update in
// its own short transaction. Release queries and downloads run without the
// manifest lock. It reports whether the host should restart.
func (u *Updater) CheckAndUpdateAll(ctx context.Context, force bool) (bool, error) {
	snapshot, loaded, err := u.prepare(ctx)
	if errors.Is(err, errChangedExternally) {
		u.manifestChanged()
		return true, nil
	}
	if err != nil {
		return false, err
	}

	var restart bool
	updated := 0
	for _, name := range snapshot.PluginNames() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		action, err := u.checkPlugin(ctx, snapshot.Plugins[name], loaded, force)
		if errors.Is(err, errChangedExternally) {
			u.manifestChanged()
			return true, nil
		}
		if err != nil {
			return false, err
		}
		switch action {
		case models.ActionUpdated:
			restart = true
			updated++
		case models.ActionRestartPending:
			restart = true
		}
	}

	if updated > 0 {
		log.Info().Int("updated", updated).Msg("Update pass committed")
	} else {
		log.Debug().Msg("Update pass finished, nothing changed")
	}
	if restart {
		u.requestRestart("plugins updated")
	}
	return restart, nil
}

// CheckAndUpdateOne checks a single plugin.
func (u *Updater) CheckAndUpdateOne(ctx context.Context, name string, force bool) (models.Action, error) {
	snapshot, loaded, err := u.prepare(ctx)
	if errors.Is(err, errChangedExternally) {
		u.manifestChanged()
		return models.ActionRestartPending, nil
	}
	if err != nil {
		return models.ActionNone, err
	}

	pm, ok := snapshot.Plugins[name]
	if !ok {
		return models.ActionNone, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	action, err := u.checkPlugin(ctx, pm, loaded, force)
	if errors.Is(err, errChangedExternally) {
		u.manifestChanged()
		return models.ActionRestartPending, nil
	}
	if err != nil {
		return models.ActionNone, fmt.Errorf("failed to update %s: %w", name, err)
	}

	switch action {
	case models.ActionUpdated:
		u.requestRestart(fmt.Sprintf("%s updated", name))
	case models.ActionRestartPending:
		u.requestRestart(fmt.Sprintf("%s restart pending", name))
	}
	return action, nil
}

func (u *Updater) manifestChanged() {
	u.notify(models.EventManifestChanged, "", "manifest changed externally")
	u.requestRestart("manifest changed externally")
}

// prepare runs discovery and manual build corrections in a short
// transaction and returns a detached copy of the manifest to resolve
// against.
func (u *Updater) prepare(ctx context.Context) (*models.ServerManifest, map[string]models.LoadedPlugin, error) {
	txn, err := u.installer.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer txn.Revert()

	if txn.ChangedExternally() {
		return nil, nil, errChangedExternally
	}

	m := txn.Manifest
	loaded := u.loadedPlugins()
	// Discovery and manual build corrections persist without a restart.
	adopted := discover(m, loaded) + reconcileManual(m, loaded)
	snapshot := m.Clone()
	if adopted > 0 {
		if err := txn.Commit(); err != nil {
			return nil, nil, fmt.Errorf("failed to commit discovered plugins: %w", err)
		}
		log.Info().Int("adopted", adopted).Msg("Manifest entries adopted from host")
	}
	return snapshot, loaded, nil
}

// loadedPlugins returns nil when no host is attached.
func (u *Updater) loadedPlugins() map[string]models.LoadedPlugin {
	if u.host == nil {
		return nil
	}
	out := make(map[string]models.LoadedPlugin)
	for _, lp := range u.host.LoadedPlugins() {
		out[lp.Name] = lp
	}
	return out
}

// discover adds a manifest entry for every loaded plugin that declares an
// update configuration but is not tracked yet.
func discover(m *models.ServerManifest, loaded map[string]models.LoadedPlugin) int {
	n := 0
	for name, lp := range loaded {
		if lp.Config == nil {
			continue
		}
		if _, ok := m.Plugins[name]; ok {
			continue
		}
		m.Plugins[name] = &models.PluginManifest{
			PluginName:     name,
			CurrentVersion: lp.Version,
			SourceType:     lp.Config.Type,
			Development:    lp.Config.Development,
			UpdateURL:      lp.Config.URL,
			Token:          lp.Config.Token,
			FileName:       lp.FileName,
		}
		log.Info().Str("plugin", name).Stringer("source", lp.Config.Type).Msg("Discovered plugin with update configuration")
		n++
	}
	return n
}

// reconcileManual records the manual build id for every loaded plugin that
// reports the placeholder version.
func reconcileManual(m *models.ServerManifest, loaded map[string]models.LoadedPlugin) int {
	n := 0
	for name, lp := range loaded {
		pm, ok := m.Plugins[name]
		if !ok || !IsManualPlaceholder(lp.Version) {
			continue
		}
		if build := ManualBuildID(pm.CurrentVersion); pm.CurrentBuildID != build {
			pm.CurrentBuildID = build
			n++
		}
	}
	return n
}

// runningOptions applies the host's view of pm to the resolver options.
func runningOptions(pm *models.PluginManifest, loaded map[string]models.LoadedPlugin, force bool) Options {
	opts := Options{Force: force, PreferDevelopment: pm.Development, RunningVersion: pm.CurrentVersion}
	if loaded == nil {
		return opts
	}
	lp, ok := loaded[pm.PluginName]
	switch {
	case !ok:
		// Not running: nothing to compare against, fetch it again.
		opts.Force = true
	case IsManualPlaceholder(lp.Version):
	default:
		opts.RunningVersion = lp.Version
	}
	return opts
}

// checkPlugin resolves pm, a detached copy, and downloads its update
// before taking the lock to commit it. A failed download or a plugin that
// changed meanwhile is skipped with ActionNone; only lock and commit
// failures are returned.
func (u *Updater) checkPlugin(ctx context.Context, pm *models.PluginManifest, loaded map[string]models.LoadedPlugin, force bool) (models.Action, error) {
	plan := u.resolver.Resolve(ctx, pm, runningOptions(pm, loaded, force))
	switch plan.Action {
	case models.ActionRestartPending:
		u.notify(models.EventRestartPending, pm.PluginName, fmt.Sprintf("%s %s is waiting for a restart", pm.PluginName, plan.Release.Tag))
		return plan.Action, nil
	case models.ActionUpdated:
	default:
		return models.ActionNone, nil
	}

	batch, err := u.installer.NewBatch()
	if err != nil {
		return models.ActionNone, err
	}
	defer batch.Discard()

	fileName, err := u.download(ctx, batch, pm, plan)
	if err != nil {
		log.Error().Err(err).Str("plugin", pm.PluginName).Str("version", plan.Release.Tag).Msg("Failed to download update")
		return models.ActionNone, nil
	}

	txn, err := u.installer.Begin(ctx)
	if err != nil {
		return models.ActionNone, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer txn.Revert()

	if txn.ChangedExternally() {
		return models.ActionNone, errChangedExternally
	}
	live, ok := txn.Manifest.Plugins[pm.PluginName]
	if !ok || live.CurrentVersion != pm.CurrentVersion || live.CurrentBuildID != pm.CurrentBuildID {
		log.Info().Str("plugin", pm.PluginName).Msg("Plugin changed during the update pass, skipping")
		return models.ActionNone, nil
	}
	if err := batch.StageInto(txn); err != nil {
		log.Error().Err(err).Str("plugin", pm.PluginName).Msg("Failed to stage update")
		return models.ActionNone, nil
	}

	if fileName != "" && live.FileName == "" {
		live.FileName = fileName
	}
	now := u.now()
	live.MarkUpdated(plan.Release.Version(), plan.Release.BuildID(), now)
	txn.Manifest.LastUpdateCheck = &now
	if err := txn.Commit(); err != nil {
		return models.ActionNone, fmt.Errorf("failed to commit update of %s: %w", pm.PluginName, err)
	}

	msg := fmt.Sprintf("%s updated to %s", live.PluginName, live.CurrentBuildID)
	log.Info().Str("plugin", live.PluginName).Str("version", live.CurrentVersion).Str("build", live.CurrentBuildID).Msg("Plugin update committed")
	u.notify(models.EventPluginUpdated, live.PluginName, msg)
	return models.ActionUpdated, nil
}

// download fetches every file of plan into batch. It returns the name of
// the first plugin binary.
func (u *Updater) download(ctx context.Context, batch *installer.Batch, pm *models.PluginManifest, plan Plan) (string, error) {
	f := u.installer.Fetcher()
	var pluginFile string
	sink := func(kind models.FileKind, name, path string) error {
		if kind == models.KindPlugin && pluginFile == "" {
			pluginFile = name
		}
		return batch.Add(kind, name, path)
	}

	for _, asset := range plan.Release.Assets {
		req, err := f.Client().NewRequest(ctx, asset.URL)
		if err != nil {
			return "", err
		}
		plan.Provider.Authorize(req, pm.Token)
		if plan.Release.Artifact {
			err = f.FetchArtifact(ctx, req, sink)
		} else {
			err = f.FetchAsset(req, asset.Name, sink)
		}
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", asset.Name, err)
		}
	}
	return pluginFile, nil
}
