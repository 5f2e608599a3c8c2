package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// PluginDependency is one entry of a plugin's declared dependency list. It
// references either another plugin (IsPlugin) or a shared dependency file.
type PluginDependency struct {
	FileName    string `json:"FileName"`
	IsPlugin    bool   `json:"IsPlugin"`
	DownloadURL string `json:"DownloadUrl"`
}

// PluginManifest is the persisted update state of one installed plugin.
type PluginManifest struct {
	PluginName     string             `json:"PluginName"`
	CurrentVersion string             `json:"CurrentVersion"`
	CurrentBuildID string             `json:"CurrentBuildId"`
	UpdateTime     *time.Time         `json:"UpdateTime"`
	SourceType     SourceType         `json:"SourceType"`
	Development    bool               `json:"Development"`
	UpdateURL      string             `json:"UpdateUrl"`
	Token          string             `json:"Token"`
	FileName       string             `json:"FileName"`
	Dependencies   []PluginDependency `json:"Dependencies"`
}

// MarkUpdated records a successful update to version/buildID.
func (p *PluginManifest) MarkUpdated(version, buildID string, at time.Time) {
	p.CurrentVersion = version
	p.CurrentBuildID = buildID
	p.UpdateTime = &at
}

// DeclaresFile reports whether any dependency entry references fileName.
func (p *PluginManifest) DeclaresFile(fileName string) bool {
	for _, d := range p.Dependencies {
		if d.FileName == fileName {
			return true
		}
	}
	return false
}

// DependencyRecord is one installed shared dependency file together with the
// plugins that currently declare it.
type DependencyRecord struct {
	FileName    string   `json:"FileName"`
	DownloadURL string   `json:"DownloadUrl"`
	RequiredBy  []string `json:"RequiredBy"`
}

// AddOwner adds pluginName to RequiredBy, keeping the list sorted and unique.
func (d *DependencyRecord) AddOwner(pluginName string) {
	i := sort.SearchStrings(d.RequiredBy, pluginName)
	if i < len(d.RequiredBy) && d.RequiredBy[i] == pluginName {
		return
	}
	d.RequiredBy = append(d.RequiredBy, "")
	copy(d.RequiredBy[i+1:], d.RequiredBy[i:])
	d.RequiredBy[i] = pluginName
}

// ServerManifest is the single persisted source of truth of the updater.
type ServerManifest struct {
	Plugins         map[string]*PluginManifest   `json:"Plugins"`
	Dependencies    map[string]*DependencyRecord `json:"Dependencies"`
	LastUpdateCheck *time.Time                   `json:"LastUpdateCheck"`
	Tokens          map[string]string            `json:"Tokens"`

	tokensApplied bool
}

// NewServerManifest returns an empty manifest with all maps allocated.
func NewServerManifest() *ServerManifest {
	m := &ServerManifest{}
	m.normalize()
	return m
}

func (m *ServerManifest) normalize() {
	if m.Plugins == nil {
		m.Plugins = make(map[string]*PluginManifest)
	}
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]*DependencyRecord)
	}
	if m.Tokens == nil {
		m.Tokens = make(map[string]string)
	}
}

// UnmarshalJSON accepts both "Dependencies" and the older "Dependency" key.
func (m *ServerManifest) UnmarshalJSON(data []byte) error {
	type plain ServerManifest
	var aux struct {
		plain
		Legacy map[string]*DependencyRecord `json:"Dependency"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = ServerManifest(aux.plain)
	if m.Dependencies == nil && aux.Legacy != nil {
		m.Dependencies = aux.Legacy
	}
	m.normalize()
	return nil
}

// TokensApplied reports whether secret values are currently substituted into
// the plugin fields. A manifest in this state must not be persisted.
func (m *ServerManifest) TokensApplied() bool {
	return m.tokensApplied
}

// ApplyTokens replaces every "$key" placeholder in UpdateUrl and Token with
// the registered secret value. It is a no-op if tokens are already applied.
func (m *ServerManifest) ApplyTokens() {
	if m.tokensApplied {
		return
	}
	m.normalize()
	for _, key := range m.tokenKeys() {
		placeholder, secret := "$"+key, m.Tokens[key]
		// An unset secret leaves its placeholder in place.
		if secret == "" {
			continue
		}
		for _, p := range m.Plugins {
			p.UpdateURL = strings.ReplaceAll(p.UpdateURL, placeholder, secret)
			p.Token = strings.ReplaceAll(p.Token, placeholder, secret)
		}
	}
	m.tokensApplied = true
}

// UnapplyTokens is the inverse of ApplyTokens: every literal secret value is
// replaced by its "$key" placeholder.
func (m *ServerManifest) UnapplyTokens() {
	if !m.tokensApplied {
		return
	}
	m.normalize()
	for _, key := range m.tokenKeys() {
		placeholder, secret := "$"+key, m.Tokens[key]
		if secret == "" {
			continue
		}
		for _, p := range m.Plugins {
			p.UpdateURL = strings.ReplaceAll(p.UpdateURL, secret, placeholder)
			p.Token = strings.ReplaceAll(p.Token, secret, placeholder)
		}
	}
	m.tokensApplied = false
}

// tokenKeys returns the secret keys longest first so that a key which is a
// prefix of another ("$TOKEN" vs "$TOKEN_CI") never shadows it.
func (m *ServerManifest) tokenKeys() []string {
	keys := make([]string, 0, len(m.Tokens))
	for k := range m.Tokens {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// PluginNames returns the installed plugin names in sorted order.
func (m *ServerManifest) PluginNames() []string {
	names := make([]string, 0, len(m.Plugins))
	for name := range m.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy, including the token state.
func (m *ServerManifest) Clone() *ServerManifest {
	out := NewServerManifest()
	for name, p := range m.Plugins {
		cp := *p
		cp.Dependencies = append([]PluginDependency(nil), p.Dependencies...)
		if p.UpdateTime != nil {
			t := *p.UpdateTime
			cp.UpdateTime = &t
		}
		out.Plugins[name] = &cp
	}
	for name, d := range m.Dependencies {
		cp := *d
		cp.RequiredBy = append([]string(nil), d.RequiredBy...)
		out.Dependencies[name] = &cp
	}
	for k, v := range m.Tokens {
		out.Tokens[k] = v
	}
	if m.LastUpdateCheck != nil {
		t := *m.LastUpdateCheck
		out.LastUpdateCheck = &t
	}
	out.tokensApplied = m.tokensApplied
	return out
}
