package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// RecordOperation stores the outcome of an install, uninstall or update.
func (s *Store) RecordOperation(operation, plugin, code, message string) (*models.HistoryEntry, error) {
	entry := &models.HistoryEntry{
		ID:        uuid.NewString(),
		Operation: operation,
		Plugin:    plugin,
		Code:      code,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO operation_history (id, operation, plugin, code, message, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.Operation, entry.Plugin, entry.Code, entry.Message, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record operation: %w", err)
	}
	return entry, nil
}

// ListHistory returns the most recent entries first. An empty plugin
// matches every plugin; a limit of zero or less returns everything.
func (s *Store) ListHistory(plugin string, limit int) ([]*models.HistoryEntry, error) {
	query := "SELECT id, operation, plugin, code, message, created_at FROM operation_history"
	var args []interface{}
	if plugin != "" {
		query += " WHERE plugin = ?"
		args = append(args, plugin)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Plugin, &e.Code, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// PruneHistory deletes entries older than cutoff and returns how many were removed.
func (s *Store) PruneHistory(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM operation_history WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
