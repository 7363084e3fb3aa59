package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/uiwatch/uiwatch/pkg/models"
)

// ListArtifacts handles GET /v1/artifacts.
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.artifacts.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.StatusResponse{Error: "failed to list artifacts: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"artifacts": artifacts,
	})
}

// DeleteArtifact handles DELETE /v1/artifacts/{name}.
func (h *Handler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.artifacts.Delete(name); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, models.StatusResponse{Error: "artifact not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.StatusResponse{Error: "failed to delete artifact: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
}
