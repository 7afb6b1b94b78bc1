package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The agent serves from cache while the
// upstream is down, so an offline upstream is reported but still ready.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, ReadyResponse{
		Status: "ready",
		Online: h.agent.Online(),
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
