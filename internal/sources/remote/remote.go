// Package remote implements the update source of plugins installed from a
// remote plugin manifest. UpdateUrl is the manifest URL itself.
package remote

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vrsandeep/mango-updater/internal/models"
)

// Remote re-reads the plugin manifest and offers its file as the release.
type Remote struct{}

// New returns the manifest provider.
func New() *Remote { return &Remote{} }

func (r *Remote) Type() models.SourceType { return models.SourceManifest }

func (r *Remote) Authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Private-Token", token)
	}
}

func (r *Remote) ReleaseURL(base string) string { return base }

func (r *Remote) DecodeRelease(data []byte, base string) (*models.Release, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &models.Release{
		Tag:    m.LatestVersion,
		Assets: []models.Asset{{URL: m.UpdateURL, Name: m.FileName}},
		Build:  m.BuildID,
	}, nil
}

func (r *Remote) ArtifactURL(base string) string { return "" }

func (r *Remote) DecodeArtifact(data []byte, base string) (*models.Release, error) {
	return nil, nil
}

// Decode parses and validates a remote plugin manifest.
func Decode(data []byte) (*models.RemoteManifest, error) {
	var m models.RemoteManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse plugin manifest: %w", err)
	}
	switch {
	case m.Name == "" || m.Author == "":
		return nil, fmt.Errorf("plugin manifest is missing Name or Author")
	case m.FileName == "" || m.UpdateURL == "":
		return nil, fmt.Errorf("plugin manifest is missing FileName or UpdateUrl")
	case m.LatestVersion == "":
		return nil, fmt.Errorf("plugin manifest is missing LatestVersion")
	}
	return &m, nil
}
