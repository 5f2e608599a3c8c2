package models

import "time"

// Event types pushed to websocket clients.
const (
	EventPluginUpdated     = "plugin_updated"
	EventRestartPending    = "restart_pending"
	EventRestartRequested  = "restart_requested"
	EventPluginInstalled   = "plugin_installed"
	EventPluginUninstalled = "plugin_uninstalled"
	EventManifestChanged   = "manifest_changed"
)

// Event is a notification about updater activity.
type Event struct {
	Type    string    `json:"type"`
	Plugin  string    `json:"plugin,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// HistoryEntry is one recorded updater operation.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Plugin    string    `json:"plugin"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
