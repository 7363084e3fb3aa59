package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/uiwatch/uiwatch/internal/artifact"
	"github.com/uiwatch/uiwatch/internal/check"
	"github.com/uiwatch/uiwatch/internal/executor"
	"github.com/uiwatch/uiwatch/internal/flow"
	"github.com/uiwatch/uiwatch/internal/session"
	"github.com/uiwatch/uiwatch/pkg/models"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	registry  *session.Registry
	flow      *flow.Flow
	executor  *executor.Executor
	checks    *check.Runner
	artifacts *artifact.Store
}

// NewHandler creates an HTTP handler set.
func NewHandler(registry *session.Registry, loginFlow *flow.Flow, exec *executor.Executor, checks *check.Runner, artifacts *artifact.Store) *Handler {
	return &Handler{
		registry:  registry,
		flow:      loginFlow,
		executor:  exec,
		checks:    checks,
		artifacts: artifacts,
	}
}

// statusFor maps the error taxonomy to HTTP status codes. Authentication
// failures are reported in-band with success=false, not as HTTP errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, models.ErrSessionLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrOracleUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrAuthenticationFailed):
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

// StartLogin handles POST /v1/sessions.
func (h *Handler) StartLogin(w http.ResponseWriter, r *http.Request) {
	// Reap sessions stuck mid-authentication before opening a new browser.
	h.registry.SweepExpired(h.registry.MaxAge())

	var req models.StartLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.StartLoginResponse{Error: "invalid request body: " + err.Error(), Logs: []string{}})
		return
	}
	if req.StartURL == "" {
		writeJSON(w, http.StatusBadRequest, models.StartLoginResponse{Error: "startUrl is required", Logs: []string{}})
		return
	}

	res, err := h.flow.Start(r.Context(), req.StartURL, req.Credential)
	if err != nil {
		writeJSON(w, statusFor(err), models.StartLoginResponse{
			Error: err.Error(),
			Logs:  res.Logs,
		})
		return
	}

	writeJSON(w, http.StatusCreated, models.StartLoginResponse{
		Success:      true,
		SessionID:    res.SessionID,
		Status:       res.Status,
		RequiresCode: res.RequiresCode,
		Logs:         res.Logs,
	})
}

// SubmitCode handles POST /v1/sessions/{id}/code.
func (h *Handler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.SubmitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.SubmitCodeResponse{Error: "invalid request body: " + err.Error(), Logs: []string{}})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, models.SubmitCodeResponse{Error: "code is required", Logs: []string{}})
		return
	}

	res, err := h.flow.SubmitCode(r.Context(), id, req.Code)
	if err != nil {
		writeJSON(w, statusFor(err), models.SubmitCodeResponse{
			Error: err.Error(),
			Logs:  res.Logs,
		})
		return
	}

	writeJSON(w, http.StatusOK, models.SubmitCodeResponse{
		Success:     true,
		Status:      models.StatusActive,
		ArtifactURL: res.ArtifactURL,
		CurrentURL:  res.CurrentURL,
		Logs:        res.Logs,
	})
}

// DispatchInstruction handles POST /v1/sessions/{id}/instructions.
func (h *Handler) DispatchInstruction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.InstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.InstructionResponse{Error: "invalid request body: " + err.Error(), Logs: []string{}})
		return
	}
	if req.Instruction == "" {
		writeJSON(w, http.StatusBadRequest, models.InstructionResponse{Error: "instruction is required", Logs: []string{}})
		return
	}

	res, err := h.executor.Execute(r.Context(), id, req.Instruction)
	if err != nil {
		writeJSON(w, statusFor(err), models.InstructionResponse{Error: err.Error(), Logs: res.Logs})
		return
	}

	resp := models.InstructionResponse{
		Success:           !res.Failed,
		Logs:              res.Logs,
		BeforeArtifactURL: res.BeforeArtifactURL,
		AfterArtifactURL:  res.AfterArtifactURL,
		CurrentURL:        res.CurrentURL,
	}
	if res.Failed {
		resp.Error = "instruction failed, see logs"
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunCheck handles POST /v1/sessions/{id}/checks/{checkId}.
func (h *Handler) RunCheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	res, err := h.checks.Run(r.Context(), vars["id"], vars["checkId"])
	if err != nil {
		writeJSON(w, statusFor(err), models.CheckResult{CheckID: vars["checkId"], Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": h.registry.List(),
	})
}

// GetSession handles GET /v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := h.registry.Info(id)
	if err != nil {
		writeJSON(w, statusFor(err), models.StatusResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": info,
	})
}

// DeleteSession handles DELETE /v1/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !h.registry.Remove(id) {
		writeJSON(w, http.StatusNotFound, models.StatusResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
}

// ResetAll handles POST /v1/sessions/reset.
func (h *Handler) ResetAll(w http.ResponseWriter, r *http.Request) {
	removed := h.registry.RemoveAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"removed": removed,
	})
}

// GetScreenshot handles GET /v1/sessions/{id}/screenshot. It returns a
// live PNG and persists a copy into the artifact gallery.
func (h *Handler) GetScreenshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s, err := h.registry.Get(id)
	if err != nil {
		writeJSON(w, statusFor(err), models.StatusResponse{Error: err.Error()})
		return
	}

	image, err := s.Handle.Screenshot(false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.StatusResponse{Error: "failed to capture screenshot: " + err.Error()})
		return
	}

	if h.artifacts != nil {
		if _, err := h.artifacts.Save("live", s.ID, "view", image); err != nil {
			log.Printf("[api] failed to persist live screenshot: %v", err)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image); err != nil {
		log.Printf("[api] failed to write screenshot: %v", err)
	}
}
