package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

func statusHandler(online bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			errorResponse(w, http.StatusMethodNotAllowed, "SK-SYS-4050", "method not allowed")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]any{
			"online":       online,
			"upstream":     "http://127.0.0.1:3000",
			"queue_depth":  2,
			"unread_count": 5,
			"subscribers":  1,
			"cache": map[string]any{
				"cacheSizes":  map[string]int64{"api-cache-v1": 2048},
				"totalSize":   2048,
				"totalSizeMB": "0.00",
			},
		})
	}
}

func TestStatus_Table(t *testing.T) {
	server := newMockServer(t)
	server.handle("/agent/v1/status", statusHandler(false))

	c := testContext(t, server, nil)
	if err := agentStatus(c); err != nil {
		t.Fatalf("agentStatus() error = %v", err)
	}

	got := out(c)
	for _, want := range []string{"http://127.0.0.1:3000 (offline)", "Queue Depth:  2", "Unread:       5"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	server := newMockServer(t)
	server.handle("/agent/v1/status", statusHandler(true))

	c := testContext(t, server, nil, "--output", "json")
	if err := agentStatus(c); err != nil {
		t.Fatalf("agentStatus() error = %v", err)
	}

	var st agent.Status
	if err := json.Unmarshal([]byte(out(c)), &st); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out(c))
	}
	if !st.Online || st.QueueDepth != 2 || st.Cache == nil {
		t.Errorf("decoded status = %+v", st)
	}
}

func TestStatus_ServerError(t *testing.T) {
	server := newMockServer(t)
	server.handle("/agent/v1/status", func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusForbidden, "SK-SYS-4030", "operator access denied")
	})

	c := testContext(t, server, nil)
	err := agentStatus(c)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "SK-SYS-4030") {
		t.Errorf("error = %v, want the agent's code", err)
	}
}

func TestHealth(t *testing.T) {
	server := newMockServer(t)
	server.handle("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	server.handle("/ready", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{"status": "ready", "online": false})
	})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"liveness", nil, "Agent is healthy"},
		{"readiness", []string{"--ready"}, "Agent is ready (upstream offline)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContext(t, server, HealthCommand().Flags, tt.args...)
			if err := agentHealth(c); err != nil {
				t.Fatalf("agentHealth() error = %v", err)
			}
			if !strings.Contains(out(c), tt.want) {
				t.Errorf("output = %q, want %q", out(c), tt.want)
			}
		})
	}
}

func TestHealth_Unreachable(t *testing.T) {
	c := testContext(t, nil, nil, "--agent", "http://127.0.0.1:1", "--timeout", "1s")
	if err := agentHealth(c); err == nil {
		t.Error("expected error for unreachable agent")
	}
}

func TestPush(t *testing.T) {
	server := newMockServer(t)
	sent := make(chan agent.Notification, 1)
	server.handle("/agent/v1/push", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			errorResponse(w, http.StatusMethodNotAllowed, "SK-SYS-4050", "method not allowed")
			return
		}
		var n agent.Notification
		json.NewDecoder(r.Body).Decode(&n)
		sent <- n
		jsonResponse(w, http.StatusOK, map[string]int{"unread_count": 4})
	})

	t.Run("requires title", func(t *testing.T) {
		c := testContext(t, server, PushCommand().Flags)
		if err := agentPush(c); err == nil {
			t.Error("expected error without title")
		}
	})

	t.Run("delivers", func(t *testing.T) {
		c := testContext(t, server, PushCommand().Flags, "--body", "S01E03 is out", "--url", "/shows/1", "New episode")
		if err := agentPush(c); err != nil {
			t.Fatalf("agentPush() error = %v", err)
		}
		got := <-sent
		if got.Title != "New episode" || got.Body != "S01E03 is out" || got.URL != "/shows/1" {
			t.Errorf("sent notification = %+v", got)
		}
		if !strings.Contains(out(c), "unread: 4") {
			t.Errorf("output = %q", out(c))
		}
	})
}

func TestWatch(t *testing.T) {
	server := newMockServer(t)
	server.handle(agent.EventsPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)

		events := []domain.Event{
			{Type: domain.EventOfflineStatus, Data: map[string]bool{"offline": true}},
			{Type: domain.EventBadgeUpdate, Data: map[string]int{"count": 1}},
			{Type: domain.EventBadgeUpdate, Data: map[string]int{"count": 2}},
		}
		for i, ev := range events {
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", i+1, ev.Type, data)
		}
		flusher.Flush()
		<-r.Context().Done()
	})

	c := testContext(t, server, WatchCommand().Flags, "--type", "badge_update", "--count", "2")
	if err := watchEvents(c); err != nil {
		t.Fatalf("watchEvents() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out(c)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out(c))
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, string(domain.EventBadgeUpdate)) {
			t.Errorf("line %d = %q, want a badge update", i, line)
		}
	}
	if !strings.Contains(lines[1], `{"count":2}`) {
		t.Errorf("second event = %q", lines[1])
	}
}

func TestWatch_Unavailable(t *testing.T) {
	server := newMockServer(t)
	server.handle(agent.EventsPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no streams here", http.StatusNotFound)
	})

	c := testContext(t, server, WatchCommand().Flags, "--retries", "1")
	if err := watchEvents(c); err == nil {
		t.Error("expected error once reconnects are exhausted")
	}
}
