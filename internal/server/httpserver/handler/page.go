package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// maxMessageBytes bounds a message body; SAVE_PWA_STATE carries a snapshot.
const maxMessageBytes = agent.MaxStateBytes + 4096

// handleSaveState handles POST /api/pwa-state.
func (h *Handler) handleSaveState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, agent.MaxStateBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeReply(w, http.StatusRequestEntityTooLarge, domain.Fail(domain.ErrQuotaExceeded))
			return
		}
		h.writeReply(w, http.StatusBadRequest, domain.Fail(domain.ErrBadRequest.WithCause(err)))
		return
	}

	if err := h.agent.SaveState(r.Context(), body); err != nil {
		status := errorCodeToHTTPStatus(domain.GetErrorCode(err))
		if status >= 500 {
			h.logger.Error("save page state failed", "error", err)
		}
		h.writeReply(w, status, domain.Fail(err))
		return
	}
	h.writeReply(w, http.StatusOK, domain.OK())
}

// handleLoadState handles GET /api/pwa-state. The body is the stored
// snapshot itself, or {} when nothing is stored.
func (h *Handler) handleLoadState(w http.ResponseWriter, r *http.Request) {
	data, err := h.agent.LoadState(r.Context())
	if err != nil {
		h.logger.Error("load page state failed", "error", err)
		h.writeReply(w, http.StatusServiceUnavailable, domain.Fail(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleMessage handles POST /agent/v1/messages. Handled messages always
// answer 200; the outcome is in the reply.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err := dec.Decode(&msg); err != nil {
		h.writeReply(w, http.StatusBadRequest, domain.Fail(domain.ErrBadRequest.WithCause(err)))
		return
	}
	if msg.Type == "" {
		h.writeReply(w, http.StatusBadRequest, domain.Fail(domain.ErrBadRequest.WithDetails("type is required")))
		return
	}

	reply := h.agent.HandleMessage(r.Context(), msg)
	if !reply.Success {
		h.logger.Debug("message failed", "type", msg.Type, "error", reply.Error)
	}
	h.writeReply(w, http.StatusOK, reply)
}
