package server

import "net/http"

// HealthHandler reports liveness and whether the proxy can reach its provider.
type HealthHandler struct {
	Backend          string
	APIKeyConfigured bool
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jsonObject{"status": "healthy"})
}

// Readiness handles GET /health/readiness. A missing API key does not make
// the proxy unready; requests report it individually.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jsonObject{
		"status":             "ready",
		"backend":            h.Backend,
		"api_key_configured": h.APIKeyConfigured,
	})
}
