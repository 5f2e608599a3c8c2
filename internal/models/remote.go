package models

import "strings"

// RemoteManifest is the plugin manifest consumed by installFromManifestUrl.
type RemoteManifest struct {
	Name          string             `json:"Name"`
	Author        string             `json:"Author"`
	LatestVersion string             `json:"LatestVersion"`
	BuildDate     string             `json:"BuildDate"`
	BuildID       string             `json:"BuildId"`
	FileName      string             `json:"FileName"`
	UpdateURL     string             `json:"UpdateUrl"`
	Dependencies  []PluginDependency `json:"Dependencies"`
}

// PluginName is the stable plugin identity, "Author/Name" with spaces
// replaced by underscores.
func (m *RemoteManifest) PluginName() string {
	return strings.ReplaceAll(m.Author, " ", "_") + "/" + strings.ReplaceAll(m.Name, " ", "_")
}

// HTTPManifest is the manifest.json served by an HTTP update source.
type HTTPManifest struct {
	Version    string `json:"version"`
	PluginName string `json:"plugin_name"`
}
