// Helper functions for sending standardized JSON responses.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vrsandeep/mango-updater/internal/models"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		// If marshaling fails, return an error response
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// OperationResponse is the body of install and uninstall responses.
type OperationResponse struct {
	Success bool              `json:"success"`
	Code    models.ResultCode `json:"code"`
	Message string            `json:"message"`
}

// RespondWithResult writes an installer outcome with a status matching its code.
func RespondWithResult(w http.ResponseWriter, code models.ResultCode, message string) {
	RespondWithJSON(w, resultStatus(code), OperationResponse{
		Success: code == models.ResultSuccess,
		Code:    code,
		Message: message,
	})
}

func resultStatus(code models.ResultCode) int {
	switch code {
	case models.ResultSuccess:
		return http.StatusOK
	case models.ResultAlreadyInstalled, models.ResultDependencyRequiredByAnother:
		return http.StatusConflict
	case models.ResultFailedToFindPlugin:
		return http.StatusNotFound
	case models.ResultFailedToParseManifest, models.ResultFailedToFindDependency:
		return http.StatusUnprocessableEntity
	case models.ResultFailedToDownloadManifest, models.ResultFailedToDownloadAssembly, models.ResultFailedToInstallDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeOptional decodes a JSON body into dst. An empty body leaves dst unchanged.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
