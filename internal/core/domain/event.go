package domain

// EventType names a notification the agent broadcasts to live pages.
type EventType string

const (
	EventOfflineStatus   EventType = "OFFLINE_STATUS"
	EventRequestQueued   EventType = "REQUEST_QUEUED"
	EventSyncSuccess     EventType = "SYNC_SUCCESS"
	EventCacheSizeUpdate EventType = "CACHE_SIZE_UPDATE"
	EventBadgeUpdate     EventType = "BADGE_UPDATE"
	EventNotification    EventType = "NOTIFICATION"
)

// Event is one broadcast notification.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}
