package handler

import (
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Response is the standard envelope of operator and health routes.
// Page-facing routes and /metrics do not use it.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ReadyResponse is the response body for GET /ready.
type ReadyResponse struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
	Time   string `json:"time"`
}

// QueueResponse is the response body for GET /agent/v1/queue.
type QueueResponse struct {
	Items []*domain.SyncItem `json:"items"`
	Total int                `json:"total"`
}

// PushResponse is the response body for POST /agent/v1/push.
type PushResponse struct {
	UnreadCount int `json:"unread_count"`
}
