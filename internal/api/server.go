package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/uiwatch/uiwatch/internal/liveview"
	"github.com/uiwatch/uiwatch/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(liveServer *liveview.Server, rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()

	// Session lifecycle endpoints (rate limited). The reset route must be
	// registered before the {id} routes.
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))
	limited.HandleFunc("/sessions", h.StartLogin).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	limited.HandleFunc("/sessions/reset", h.ResetAll).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	limited.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE", "OPTIONS")
	limited.HandleFunc("/sessions/{id}/code", h.SubmitCode).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions/{id}/instructions", h.DispatchInstruction).Methods("POST", "OPTIONS")
	limited.HandleFunc("/sessions/{id}/checks/{checkId}", h.RunCheck).Methods("POST", "OPTIONS")

	// Screenshot and live view are polled frequently; not rate limited.
	api.HandleFunc("/sessions/{id}/screenshot", h.GetScreenshot).Methods("GET")
	api.HandleFunc("/sessions/{id}/live", func(w http.ResponseWriter, r *http.Request) {
		liveServer.HandleStream(w, r, mux.Vars(r)["id"])
	}).Methods("GET")

	// Artifact gallery.
	api.HandleFunc("/artifacts", h.ListArtifacts).Methods("GET")
	api.HandleFunc("/artifacts/{name}", h.DeleteArtifact).Methods("DELETE", "OPTIONS")

	// Saved screenshots are served as static files under the same URLs the
	// artifact store hands out.
	if h.artifacts != nil {
		r.PathPrefix("/screenshots/").Handler(
			http.StripPrefix("/screenshots/", http.FileServer(http.Dir(h.artifacts.Dir()))))
	}

	r.Use(corsMiddleware)
	r.Use(loggingMiddleware)

	return r
}
