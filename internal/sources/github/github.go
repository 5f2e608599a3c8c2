// Package github implements the GitHub update source. UpdateUrl is the
// repository API root, e.g. https://api.github.com/repos/owner/name.
package github

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/sources"
)

type release struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	} `json:"assets"`
	NodeID string `json:"node_id"`
}

// artifactID accepts both numeric and quoted ids.
type artifactID int64

func (id *artifactID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid artifact id %s: %w", data, err)
	}
	*id = artifactID(n)
	return nil
}

type artifact struct {
	ID                 artifactID `json:"id"`
	ArchiveDownloadURL string     `json:"archive_download_url"`
	NodeID             string     `json:"node_id"`
	WorkflowRun        *struct {
		HeadBranch string `json:"head_branch"`
	} `json:"workflow_run"`
}

// GitHub decodes the latest-release and actions-artifacts endpoints.
type GitHub struct{}

// New returns the GitHub provider.
func New() *GitHub { return &GitHub{} }

func (g *GitHub) Type() models.SourceType { return models.SourceGitHub }

func (g *GitHub) Authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
}

func (g *GitHub) ReleaseURL(base string) string {
	return sources.Join(base, "releases/latest")
}

// DecodeRelease decodes the single latest-release object. GitHub carries no
// short commit id on releases, so the release node id takes its place.
func (g *GitHub) DecodeRelease(data []byte, base string) (*models.Release, error) {
	var r release
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse github release: %w", err)
	}
	if r.TagName == "" {
		return nil, nil
	}

	out := &models.Release{Tag: r.TagName, CommitShortID: r.NodeID}
	for _, a := range r.Assets {
		out.Assets = append(out.Assets, models.Asset{URL: a.URL, Name: a.Name})
	}
	return out, nil
}

func (g *GitHub) ArtifactURL(base string) string {
	return sources.Join(base, "actions/artifacts")
}

// DecodeArtifact selects the artifact with the highest id, regardless of
// the order the API returned them in.
func (g *GitHub) DecodeArtifact(data []byte, base string) (*models.Release, error) {
	var resp struct {
		Artifacts []artifact `json:"artifacts"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse github artifacts: %w", err)
	}
	if len(resp.Artifacts) == 0 {
		return nil, nil
	}

	sort.SliceStable(resp.Artifacts, func(i, j int) bool {
		return resp.Artifacts[i].ID > resp.Artifacts[j].ID
	})
	a := resp.Artifacts[0]

	branch := "unknown"
	if a.WorkflowRun != nil && a.WorkflowRun.HeadBranch != "" {
		branch = a.WorkflowRun.HeadBranch
	}
	return &models.Release{
		Tag:           "0.0.0",
		Assets:        []models.Asset{{URL: a.ArchiveDownloadURL, Name: "artifact.zip"}},
		CommitShortID: a.NodeID,
		BranchOrRef:   branch,
		Artifact:      true,
	}, nil
}
