package api

import (
	"errors"
	"net/http"

	"github.com/vrsandeep/mango-updater/internal/manifest"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"restart_requested": s.app.RestartRequested(),
	})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}

// respondWithManifestError maps a manifest access failure to a response.
func respondWithManifestError(w http.ResponseWriter, err error) {
	if errors.Is(err, manifest.ErrLockTimeout) {
		RespondWithError(w, http.StatusServiceUnavailable, "Manifest is busy, try again later")
		return
	}
	RespondWithError(w, http.StatusInternalServerError, err.Error())
}
