package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/vrsandeep/mango-updater/internal/models"
)

// pluginView is a manifest entry with its secrets removed.
type pluginView struct {
	Name         string                    `json:"name"`
	Version      string                    `json:"version"`
	BuildID      string                    `json:"build_id"`
	UpdateTime   *time.Time                `json:"update_time,omitempty"`
	SourceType   models.SourceType         `json:"source_type"`
	Development  bool                      `json:"development"`
	UpdateURL    string                    `json:"update_url"`
	HasToken     bool                      `json:"has_token"`
	FileName     string                    `json:"file_name"`
	Dependencies []models.PluginDependency `json:"dependencies"`
}

func newPluginView(p *models.PluginManifest) pluginView {
	deps := p.Dependencies
	if deps == nil {
		deps = []models.PluginDependency{}
	}
	return pluginView{
		Name:         p.PluginName,
		Version:      p.CurrentVersion,
		BuildID:      p.CurrentBuildID,
		UpdateTime:   p.UpdateTime,
		SourceType:   p.SourceType,
		Development:  p.Development,
		UpdateURL:    p.UpdateURL,
		HasToken:     p.Token != "",
		FileName:     p.FileName,
		Dependencies: deps,
	}
}

// readRedacted returns the manifest with every secret value replaced by its
// placeholder.
func (s *Server) readRedacted(r *http.Request) (*models.ServerManifest, error) {
	m, err := s.app.Manifest().Read(r.Context())
	if err != nil {
		return nil, err
	}
	m.UnapplyTokens()
	return m, nil
}

// handleListPlugins lists every installed plugin.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	m, err := s.readRedacted(r)
	if err != nil {
		respondWithManifestError(w, err)
		return
	}

	views := make([]pluginView, 0, len(m.Plugins))
	for _, name := range m.PluginNames() {
		views = append(views, newPluginView(m.Plugins[name]))
	}
	RespondWithJSON(w, http.StatusOK, views)
}

// handleGetPluginInfo returns one plugin. Plugin names contain a slash, so
// the name is a query parameter.
func (s *Server) handleGetPluginInfo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		RespondWithError(w, http.StatusBadRequest, "Plugin name is required")
		return
	}

	m, err := s.readRedacted(r)
	if err != nil {
		respondWithManifestError(w, err)
		return
	}
	p, ok := m.Plugins[name]
	if !ok {
		RespondWithError(w, http.StatusNotFound, "Plugin not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, newPluginView(p))
}

// handleListDependencies lists every installed shared dependency with its owners.
func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	m, err := s.app.Manifest().Read(r.Context())
	if err != nil {
		respondWithManifestError(w, err)
		return
	}

	deps := make([]*models.DependencyRecord, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].FileName < deps[j].FileName })
	RespondWithJSON(w, http.StatusOK, deps)
}
