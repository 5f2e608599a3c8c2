package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceType selects the backend a plugin is updated from.
type SourceType int

const (
	SourceDisabled SourceType = iota
	SourceGitLab
	SourceGitHub
	SourceHTTP
	// SourceManifest is used for plugins installed from a remote plugin manifest.
	SourceManifest
)

var sourceTypeNames = map[SourceType]string{
	SourceDisabled: "DISABLED",
	SourceGitLab:   "GITLAB",
	SourceGitHub:   "GITHUB",
	SourceHTTP:     "HTTP",
	SourceManifest: "MANIFEST",
}

func (t SourceType) String() string {
	if name, ok := sourceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SourceType(%d)", int(t))
}

// MarshalText encodes the source type by name.
func (t SourceType) MarshalText() ([]byte, error) {
	name, ok := sourceTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown source type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText accepts the names case-insensitively. Legacy names carrying a
// suffix ("GITLAB_DEVELOPMENT") resolve to their base type.
func (t *SourceType) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts either a name or the numeric value.
func (t *SourceType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if _, ok := sourceTypeNames[SourceType(n)]; !ok {
			return fmt.Errorf("unknown source type %d", n)
		}
		*t = SourceType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("source type must be a string or number: %w", err)
	}
	return t.UnmarshalText([]byte(s))
}

// ParseSourceType parses a source type name. An empty string is Disabled.
func ParseSourceType(s string) (SourceType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return SourceDisabled, nil
	}
	base, _, _ := strings.Cut(s, "_")
	for t, name := range sourceTypeNames {
		if name == s || name == base {
			return t, nil
		}
	}
	return SourceDisabled, fmt.Errorf("unknown source type %q", s)
}

// Asset is one downloadable file of a release.
type Asset struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Release is the provider-agnostic description of an available update. It is
// never persisted; only the derived version strings are.
type Release struct {
	Tag           string
	Assets        []Asset
	CommitShortID string
	BranchOrRef   string
	// Build overrides the derived build id when the source reports one.
	Build string
	// Artifact marks a CI artifact; Assets then holds the single archive.
	Artifact bool
}

// BuildID derives the build identifier persisted as CurrentBuildId.
func (r *Release) BuildID() string {
	switch {
	case r.Build != "":
		return r.Build
	case r.Artifact:
		return fmt.Sprintf("%s-%s-%s", r.Tag, r.BranchOrRef, r.CommitShortID)
	case r.CommitShortID == "":
		return r.Tag
	default:
		return fmt.Sprintf("%s-release-%s", r.Tag, r.CommitShortID)
	}
}

// Version returns the value persisted as CurrentVersion: the tag for
// releases, the build identity for artifacts.
func (r *Release) Version() string {
	if r.Artifact {
		return r.CommitShortID
	}
	return r.Tag
}

// AutoUpdateConfig is the update configuration a loaded plugin declares.
type AutoUpdateConfig struct {
	URL         string     `json:"url"`
	Type        SourceType `json:"type"`
	Token       string     `json:"token,omitempty"`
	Development bool       `json:"development"`
}

// LoadedPlugin is what the host reports about a plugin it currently runs.
type LoadedPlugin struct {
	Name     string
	Version  string
	FileName string
	Config   *AutoUpdateConfig
}
