package handler

import (
	"encoding/json"
	"net/http"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// handleStatus handles GET /agent/v1/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.agent.Status(r.Context()))
}

// handleSync handles POST /agent/v1/sync. It runs a replay pass and
// answers with its outcome; a pass already in flight absorbs the request.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.agent.Sync(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, report)
}

// handleListQueue handles GET /agent/v1/queue.
func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.agent.Queue().List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.SyncItem{}
	}
	h.writeJSON(w, r, http.StatusOK, QueueResponse{Items: items, Total: len(items)})
}

// handleDeleteQueued handles DELETE /agent/v1/queue/{id}.
func (h *Handler) handleDeleteQueued(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.agent.Queue().Get(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if err := h.agent.Queue().Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.logger.Info("queued request discarded", "sync_id", id)
	h.writeJSON(w, r, http.StatusOK, map[string]string{"deleted": id})
}

// handleActivate handles POST /agent/v1/activate.
func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	report, err := h.agent.Activate(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, report)
}

// handlePush handles POST /agent/v1/push.
func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	var n agent.Notification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&n); err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body", nil)
		return
	}

	count, err := h.agent.Push(r.Context(), n)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, PushResponse{UnreadCount: count})
}
