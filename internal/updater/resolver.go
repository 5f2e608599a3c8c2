package updater

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/mango-updater/internal/fetcher"
	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
)

// Options tune one resolution.
type Options struct {
	Force             bool
	PreferDevelopment bool
	// RunningVersion is the version the host reports for the loaded plugin.
	RunningVersion string
}

// Plan is the resolver's decision for one plugin. Release and Provider are
// set when Action is ActionUpdated.
type Plan struct {
	Action   models.Action
	Release  *models.Release
	Provider sources.Provider
}

// Resolver decides whether a plugin has an update available.
type Resolver struct {
	registry *sources.Registry
	client   *fetcher.Client
}

// NewResolver creates a Resolver querying the providers in registry.
func NewResolver(registry *sources.Registry, client *fetcher.Client) *Resolver {
	return &Resolver{registry: registry, client: client}
}

// Resolve picks the development or stable line for pm and compares it
// with what is installed. Provider and decode errors are logged and
// resolve to ActionNone.
func (r *Resolver) Resolve(ctx context.Context, pm *models.PluginManifest, opts Options) Plan {
	none := Plan{Action: models.ActionNone}
	if pm.UpdateURL == "" || pm.SourceType == models.SourceDisabled {
		return none
	}
	logger := log.With().Str("plugin", pm.PluginName).Stringer("source", pm.SourceType).Logger()

	p, ok := r.registry.Get(pm.SourceType)
	if !ok {
		logger.Warn().Msg("No provider registered for source type")
		return none
	}

	if opts.PreferDevelopment {
		if url := p.ArtifactURL(pm.UpdateURL); url != "" {
			rel, err := r.query(ctx, logger, p, pm, url, p.DecodeArtifact)
			if err != nil {
				return none
			}
			if rel != nil {
				if !opts.Force && rel.Version() == pm.CurrentVersion {
					logger.Debug().Str("build", rel.Version()).Msg("Development build is current")
					return none
				}
				return Plan{Action: models.ActionUpdated, Release: rel, Provider: p}
			}
			logger.Info().Msg("No development artifact available, falling back to stable release")
		}
	}

	rel, err := r.query(ctx, logger, p, pm, p.ReleaseURL(pm.UpdateURL), p.DecodeRelease)
	if err != nil {
		return none
	}
	if rel == nil {
		logger.Debug().Msg("No release published")
		return none
	}

	if !opts.Force {
		if SameVersion(rel.Tag, opts.RunningVersion) {
			logger.Debug().Str("version", rel.Tag).Msg("Plugin is up to date")
			return none
		}
		if SameVersion(rel.Tag, pm.CurrentVersion) {
			logger.Info().Str("version", rel.Tag).Str("running", opts.RunningVersion).Msg("Update already downloaded, restart pending")
			return Plan{Action: models.ActionRestartPending, Release: rel, Provider: p}
		}
	}
	if len(rel.Assets) == 0 {
		// Still recorded, so the release is not offered again next pass.
		logger.Warn().Str("version", rel.Tag).Msg("Release has no assets")
	}
	if older, err := IsNewerVersion(rel.Tag, pm.CurrentVersion); err == nil && older {
		logger.Warn().Str("version", rel.Tag).Str("current", pm.CurrentVersion).Msg("Latest release is older than the installed version")
	}
	return Plan{Action: models.ActionUpdated, Release: rel, Provider: p}
}

type decodeFunc func(data []byte, base string) (*models.Release, error)

// query fetches url and decodes it. An empty body means nothing is published.
func (r *Resolver) query(ctx context.Context, logger zerolog.Logger, p sources.Provider, pm *models.PluginManifest, url string, decode decodeFunc) (*models.Release, error) {
	req, err := r.client.NewRequest(ctx, url)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build source request")
		return nil, err
	}
	p.Authorize(req, pm.Token)

	data, err := r.client.Get(req)
	if errors.Is(err, fetcher.ErrEmptyResponse) {
		return nil, nil
	}
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("Failed to query update source")
		return nil, err
	}

	rel, err := decode(data, pm.UpdateURL)
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Str("payload", truncate(string(data), 512)).Msg("Malformed update source response")
		return nil, err
	}
	return rel, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
