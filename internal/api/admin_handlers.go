package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vrsandeep/mango-updater/internal/models"
	"github.com/vrsandeep/mango-updater/internal/updater"
)

func (s *Server) handleInstallPlugin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL   string `json:"url"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.URL == "" {
		RespondWithError(w, http.StatusBadRequest, "Manifest URL is required")
		return
	}

	code, msg := s.app.Installer().InstallFromManifestURL(r.Context(), payload.URL, payload.Token)
	RespondWithResult(w, code, msg)
}

func (s *Server) handleUninstallPlugin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Name == "" {
		RespondWithError(w, http.StatusBadRequest, "Plugin name is required")
		return
	}

	code, msg := s.app.Installer().Uninstall(r.Context(), payload.Name)
	RespondWithResult(w, code, msg)
}

func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Force bool `json:"force"`
	}
	if err := decodeOptional(r, &payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	restart, err := s.app.Updater().CheckAndUpdateAll(r.Context(), payload.Force)
	if err != nil {
		respondWithManifestError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"restart": restart})
}

func (s *Server) handleUpdatePlugin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Name == "" {
		RespondWithError(w, http.StatusBadRequest, "Plugin name is required")
		return
	}

	action, err := s.app.Updater().CheckAndUpdateOne(r.Context(), payload.Name, payload.Force)
	if errors.Is(err, updater.ErrPluginNotFound) {
		RespondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondWithManifestError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, struct {
		Plugin string        `json:"plugin"`
		Action models.Action `json:"action"`
	}{payload.Name, action})
}

func (s *Server) handleRunAdminJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	err := s.app.JobManager().RunJob(payload.JobID, s.app)
	if err != nil {
		RespondWithError(w, http.StatusConflict, err.Error()) // 409 Conflict if a job is already running
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job '" + payload.JobID + "' started successfully.",
	})
}

func (s *Server) handleGetAdminJobsStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.app.JobManager().GetStatus()
	RespondWithJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	entries, err := s.store.ListHistory(r.URL.Query().Get("plugin"), limit)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	RespondWithJSON(w, http.StatusOK, entries)
}
