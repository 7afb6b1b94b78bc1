package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/statestore"
)

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	agent   *agent.Agent
	metrics http.Handler
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a new Handler serving a. metrics may be nil, in which case
// GET /metrics is not routed.
func New(a *agent.Agent, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		agent:   a,
		metrics: metrics,
		logger:  logger.With("component", "http"),
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	// Page-facing
	h.mux.HandleFunc("POST "+statestore.StatePath, h.handleSaveState)
	h.mux.HandleFunc("GET "+statestore.StatePath, h.handleLoadState)
	h.mux.HandleFunc("POST "+agent.MessagesPath, h.handleMessage)
	h.mux.Handle("GET "+agent.EventsPath, h.agent.Events())

	// Operator
	h.mux.HandleFunc("GET /agent/v1/status", h.handleStatus)
	h.mux.HandleFunc("POST /agent/v1/sync", h.handleSync)
	h.mux.HandleFunc("GET /agent/v1/queue", h.handleListQueue)
	h.mux.HandleFunc("DELETE /agent/v1/queue/{id}", h.handleDeleteQueued)
	h.mux.HandleFunc("POST /agent/v1/activate", h.handleActivate)
	h.mux.HandleFunc("POST /agent/v1/push", h.handlePush)

	h.mux.Handle("/", h.agent)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(w, r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(w, r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// writeReply writes a message-protocol reply without the envelope.
func (h *Handler) writeReply(w http.ResponseWriter, status int, reply *domain.Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		h.logger.Error("failed to encode reply", "error", err)
	}
}

// getRequestID returns the ID assigned by the RequestID middleware, which
// sets it on the response, or the one the caller sent.
func getRequestID(w http.ResponseWriter, r *http.Request) string {
	if reqID := w.Header().Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts agent errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		if status >= 500 {
			h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	h.logger.Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternal.Code, "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4100"):
		return http.StatusGone
	case strings.HasSuffix(code, "-4130"):
		return http.StatusRequestEntityTooLarge
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-5020"):
		return http.StatusBadGateway
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
