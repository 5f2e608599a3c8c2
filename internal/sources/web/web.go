// Package web implements the plain HTTP update source: a directory serving
// manifest.json next to the plugin binary.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
)

// Web reads {url}/manifest.json and points at {url}/{plugin_name}.
type Web struct{}

// New returns the HTTP provider.
func New() *Web { return &Web{} }

func (w *Web) Type() models.SourceType { return models.SourceHTTP }

// Authorize is a no-op: the HTTP source only sends the user agent.
func (w *Web) Authorize(req *http.Request, token string) {}

func (w *Web) ReleaseURL(base string) string {
	return sources.Join(base, "manifest.json")
}

func (w *Web) DecodeRelease(data []byte, base string) (*models.Release, error) {
	var m models.HTTPManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse http manifest: %w", err)
	}
	if m.Version == "" || m.PluginName == "" {
		return nil, fmt.Errorf("http manifest is missing version or plugin_name")
	}
	return &models.Release{
		Tag:    m.Version,
		Assets: []models.Asset{{URL: sources.Join(base, m.PluginName), Name: m.PluginName}},
		Build:  m.Version,
	}, nil
}

func (w *Web) ArtifactURL(base string) string { return "" }

func (w *Web) DecodeArtifact(data []byte, base string) (*models.Release, error) {
	return nil, nil
}
