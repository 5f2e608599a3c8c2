package core

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/assets"
	"github.com/vrsandeep/mango-updater/internal/config"
	"github.com/vrsandeep/mango-updater/internal/db"
	"github.com/vrsandeep/mango-updater/internal/fetcher"
	"github.com/vrsandeep/mango-updater/internal/installer"
	"github.com/vrsandeep/mango-updater/internal/jobs"
	"github.com/vrsandeep/mango-updater/internal/logging"
	"github.com/vrsandeep/mango-updater/internal/manifest"
	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
	"github.com/vrsandeep/mango-updater/internal/sources/github"
	"github.com/vrsandeep/mango-updater/internal/sources/gitlab"
	"github.com/vrsandeep/mango-updater/internal/sources/remote"
	"github.com/vrsandeep/mango-updater/internal/sources/web"
	"github.com/vrsandeep/mango-updater/internal/store"
	"github.com/vrsandeep/mango-updater/internal/updater"
	"github.com/vrsandeep/mango-updater/internal/websocket"
)

// App holds the core components of the application that are shared
// between the daemon and the CLI.
type App struct {
	Version string

	config     *config.Config
	db         *sql.DB
	store      *store.Store
	manifest   *manifest.Store
	installer  *installer.Installer
	updater    *updater.Updater
	wsHub      *websocket.Hub
	jobManager *jobs.JobManager
	host       updater.Host

	watcher          *manifest.Watcher
	scheduler        *gocron.Scheduler
	restartRequested atomic.Bool
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.Updater.Verbose)
	return NewWithConfig(cfg, nil)
}

// NewWithConfig wires an App from cfg. host may be nil when no plugin host
// is attached.
func NewWithConfig(cfg *config.Config, host updater.Host) (*App, error) {
	for _, dir := range []string{cfg.Paths.Plugins, cfg.Paths.Dependencies, cfg.Paths.Updater} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	a := &App{
		Version:  "dev",
		config:   cfg,
		db:       database,
		store:    store.New(database),
		manifest: manifest.NewStore(cfg.Paths.ManifestFile(), cfg.Updater.LockWait()),
		wsHub:    websocket.NewHub(),
		host:     host,
	}

	client := fetcher.NewClient(cfg.Updater.UserAgent, cfg.Updater.RequestTimeout())
	f := fetcher.New(client, fetcher.Rules{
		DependencyPrefix: cfg.Updater.DependencyPrefix,
		ModuleExtension:  cfg.Updater.ModuleExtension,
		MaxDepth:         cfg.Updater.MaxArtifactDepth,
	}, filepath.Join(cfg.Paths.StagingDir(), "download"))

	a.installer = installer.New(a.manifest, f, installer.Paths{
		Plugins:      cfg.Paths.Plugins,
		Dependencies: cfg.Paths.Dependencies,
		Staging:      cfg.Paths.StagingDir(),
	})
	a.installer.SetReporter(a)

	registry := sources.NewRegistry(gitlab.New(), github.New(), web.New(), remote.New())
	a.updater = updater.New(a.installer, updater.NewResolver(registry, client), host)
	a.updater.SetNotifier(a)

	a.jobManager = jobs.NewManager(a)
	jobs.RegisterAll(a.jobManager)

	log.Info().Str("manifest", cfg.Paths.ManifestFile()).Msg("Core application setup complete")
	return a, nil
}

func (a *App) Config() *config.Config { return a.config }
func (a *App) DB() *sql.DB { return a.db }
func (a *App) Store() *store.Store { return a.store }
func (a *App) Manifest() *manifest.Store { return a.manifest }
func (a *App) Installer() *installer.Installer { return a.installer }
func (a *App) Updater() *updater.Updater { return a.updater }
func (a *App) WsHub() *websocket.Hub { return a.wsHub }
func (a *App) JobManager() *jobs.JobManager { return a.jobManager }

// RestartRequested reports whether any operation since startup asked for a
// host restart.
func (a *App) RestartRequested() bool {
	return a.restartRequested.Load()
}

// Start runs the event hub, the manifest watcher and the job scheduler.
// The CLI does not call it.
func (a *App) Start() error {
	go a.wsHub.Run()

	a.watcher = manifest.NewWatcher(a.manifest, 500*time.Millisecond, a.onManifestChanged)
	if err := a.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start manifest watcher: %w", err)
	}

	a.scheduler = jobs.StartJobs(a)
	return nil
}

func (a *App) onManifestChanged() {
	now := time.Now()
	a.Notify(models.Event{Type: models.EventManifestChanged, Message: "manifest changed externally", Time: now})
	a.Notify(models.Event{Type: models.EventRestartRequested, Message: "manifest changed externally", Time: now})
	if a.host != nil {
		a.host.RequestRestart("manifest changed externally")
	}
}

// Report records an install or uninstall outcome and broadcasts it.
func (a *App) Report(operation, plugin string, code models.ResultCode, message string) {
	a.record(operation, plugin, string(code), message)
	if code != models.ResultSuccess {
		return
	}
	typ := models.EventPluginInstalled
	if operation == "uninstall" {
		typ = models.EventPluginUninstalled
	}
	a.wsHub.Notify(models.Event{Type: typ, Plugin: plugin, Message: message, Time: time.Now()})
}

// Notify records update outcomes and broadcasts every event.
func (a *App) Notify(ev models.Event) {
	switch ev.Type {
	case models.EventPluginUpdated:
		a.record("update", ev.Plugin, models.ActionUpdated.String(), ev.Message)
	case models.EventRestartPending:
		a.record("update", ev.Plugin, models.ActionRestartPending.String(), ev.Message)
	case models.EventRestartRequested:
		a.restartRequested.Store(true)
	}
	a.wsHub.Notify(ev)
}

func (a *App) record(operation, plugin, code, message string) {
	if _, err := a.store.RecordOperation(operation, plugin, code, message); err != nil {
		log.Warn().Err(err).Str("op", operation).Str("plugin", plugin).Msg("Failed to record operation history")
	}
}

// Close stops background work and closes the database.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.jobManager != nil {
		a.jobManager.Stop()
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop manifest watcher")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
