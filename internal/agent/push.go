package agent

import (
	"context"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Notification is an incoming push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Push records a notification: the unread counter goes up by one, the
// badge follows, and live pages receive a NOTIFICATION event.
func (a *Agent) Push(ctx context.Context, n Notification) (int, error) {
	if n.Title == "" {
		return 0, domain.ErrBadRequest.WithDetails("title is required")
	}
	count, err := a.badge.Increment(ctx, 1)
	if err != nil {
		return 0, err
	}
	a.events.Broadcast(domain.Event{Type: domain.EventNotification, Data: map[string]any{
		"title": n.Title,
		"body":  n.Body,
		"icon":  n.Icon,
		"url":   n.URL,
		"count": count,
	}})
	a.logger.Info("notification received", "title", n.Title, "unread", count)
	return count, nil
}
