// Package gitlab implements the GitLab update source. UpdateUrl is the
// project API root, e.g. https://gitlab.com/api/v4/projects/123.
package gitlab

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
)

type release struct {
	TagName string `json:"tag_name"`
	Assets  struct {
		Links []struct {
			DirectAssetURL string `json:"direct_asset_url"`
			Name           string `json:"name"`
		} `json:"links"`
	} `json:"assets"`
	Commit *commit `json:"commit"`
}

type commit struct {
	ShortID      string `json:"short_id"`
	LastPipeline *struct {
		Ref string `json:"ref"`
	} `json:"last_pipeline"`
}

func (c *commit) ref() string {
	if c == nil || c.LastPipeline == nil || c.LastPipeline.Ref == "" {
		return "unknown"
	}
	return c.LastPipeline.Ref
}

type job struct {
	ID            json.Number `json:"id"`
	ArtifactsFile *struct {
		Filename string `json:"filename"`
	} `json:"artifacts_file"`
	Commit *commit `json:"commit"`
}

// GitLab decodes the releases and jobs endpoints of a project.
type GitLab struct{}

// New returns the GitLab provider.
func New() *GitLab { return &GitLab{} }

func (g *GitLab) Type() models.SourceType { return models.SourceGitLab }

func (g *GitLab) Authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("PRIVATE-TOKEN", token)
	}
}

func (g *GitLab) ReleaseURL(base string) string {
	return sources.Join(base, "releases")
}

// DecodeRelease takes the first entry of the newest-first release list.
func (g *GitLab) DecodeRelease(data []byte, base string) (*models.Release, error) {
	var releases []release
	if err := json.Unmarshal(data, &releases); err != nil {
		return nil, fmt.Errorf("failed to parse gitlab releases: %w", err)
	}
	if len(releases) == 0 {
		return nil, nil
	}

	r := releases[0]
	out := &models.Release{Tag: r.TagName}
	for _, link := range r.Assets.Links {
		out.Assets = append(out.Assets, models.Asset{URL: link.DirectAssetURL, Name: link.Name})
	}
	if r.Commit != nil {
		out.CommitShortID = r.Commit.ShortID
		out.BranchOrRef = r.Commit.ref()
	}
	return out, nil
}

func (g *GitLab) ArtifactURL(base string) string {
	return sources.Join(base, "jobs?scope=success")
}

// DecodeArtifact selects the first successful job that kept an artifact.
func (g *GitLab) DecodeArtifact(data []byte, base string) (*models.Release, error) {
	var jobs []job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse gitlab jobs: %w", err)
	}
	for _, j := range jobs {
		if j.ArtifactsFile == nil {
			continue
		}
		if j.Commit == nil || j.Commit.ShortID == "" {
			return nil, fmt.Errorf("gitlab job %s has no commit", j.ID)
		}
		return &models.Release{
			Tag:           "0.0.0",
			Assets:        []models.Asset{{URL: sources.Join(base, fmt.Sprintf("jobs/%s/artifacts", j.ID)), Name: "artifacts.zip"}},
			CommitShortID: j.Commit.ShortID,
			BranchOrRef:   j.Commit.ref(),
			Artifact:      true,
		}, nil
	}
	return nil, nil
}
