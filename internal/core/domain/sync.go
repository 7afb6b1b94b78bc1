package domain

import (
	"net/http"
	"strings"
	"time"
)

// SyncKeyPrefix prefixes every sync queue key in the agent store.
const SyncKeyPrefix = "sync-"

// SyncMaxAge is the retention ceiling for a queued request.
const SyncMaxAge = 24 * time.Hour

// SyncItem is a mutating request deferred for replay.
//
// Items are removed only after a confirmed successful replay or once
// they are older than the retention ceiling.
type SyncItem struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	Data      string `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewSyncItem builds a queue item stamped with now.
func NewSyncItem(method, url, body string, now time.Time) (*SyncItem, error) {
	method = strings.ToUpper(method)
	if !IsMutatingMethod(method) {
		return nil, ErrSyncItemInvalid.WithDetails("method " + method + " is not mutating")
	}
	if url == "" {
		return nil, ErrSyncItemInvalid.WithDetails("url is required")
	}
	id, err := GenerateID(SyncKeyPrefix, now)
	if err != nil {
		return nil, err
	}
	return &SyncItem{
		ID:        id,
		URL:       url,
		Method:    method,
		Data:      body,
		Timestamp: now.UnixMilli(),
	}, nil
}

// Key returns the store key of the item. The id already carries the
// prefix.
func (i *SyncItem) Key() string {
	return SyncKey(i.ID)
}

// SyncKey maps an item id to its store key. Ids given without the prefix
// are accepted.
func SyncKey(id string) string {
	if strings.HasPrefix(id, SyncKeyPrefix) {
		return id
	}
	return SyncKeyPrefix + id
}

// Age returns the time since the item was enqueued.
func (i *SyncItem) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(i.Timestamp))
}

// Expired reports whether the item is past the retention ceiling.
func (i *SyncItem) Expired(now time.Time) bool {
	return i.Age(now) > SyncMaxAge
}

// IsMutatingMethod reports whether method changes server state.
func IsMutatingMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
