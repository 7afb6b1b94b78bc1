package domain

import (
	"strings"
	"testing"
	"time"
)

func TestNewSyncItem(t *testing.T) {
	now := time.Now()
	item, err := NewSyncItem("post", "/api/v1/items", `{"a":1}`, now)
	if err != nil {
		t.Fatalf("NewSyncItem() error = %v", err)
	}

	if item.Method != "POST" {
		t.Errorf("Method = %q, want POST", item.Method)
	}
	if !strings.HasPrefix(item.ID, SyncKeyPrefix) {
		t.Errorf("ID = %q, want prefix %q", item.ID, SyncKeyPrefix)
	}
	if item.Key() != item.ID {
		t.Errorf("Key() = %q, want %q", item.Key(), item.ID)
	}
	if strings.Count(item.Key(), SyncKeyPrefix) != 1 {
		t.Errorf("Key() = %q carries the prefix more than once", item.Key())
	}
	if item.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", item.Timestamp, now.UnixMilli())
	}
}

func TestSyncKey(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"sync-01j0abc", "sync-01j0abc"},
		{"01j0abc", "sync-01j0abc"},
	}
	for _, tt := range tests {
		if got := SyncKey(tt.id); got != tt.want {
			t.Errorf("SyncKey(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestNewSyncItem_Rejects(t *testing.T) {
	now := time.Now()
	if _, err := NewSyncItem("GET", "/api/v1/items", "", now); !IsDomainError(err, ErrSyncItemInvalid.Code) {
		t.Errorf("GET should be rejected, got %v", err)
	}
	if _, err := NewSyncItem("DELETE", "", "", now); !IsDomainError(err, ErrSyncItemInvalid.Code) {
		t.Errorf("empty url should be rejected, got %v", err)
	}
}

func TestSyncItem_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", time.Minute, false},
		{"exactly ceiling", SyncMaxAge, false},
		{"past ceiling", 25 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &SyncItem{Timestamp: now.Add(-tt.age).UnixMilli()}
			if got := item.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := GenerateID("x-", now)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestIsMutatingMethod(t *testing.T) {
	for _, m := range []string{"POST", "put", "PATCH", "DELETE"} {
		if !IsMutatingMethod(m) {
			t.Errorf("IsMutatingMethod(%q) = false", m)
		}
	}
	for _, m := range []string{"GET", "HEAD", "OPTIONS"} {
		if IsMutatingMethod(m) {
			t.Errorf("IsMutatingMethod(%q) = true", m)
		}
	}
}
