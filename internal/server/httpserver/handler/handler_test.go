package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/storage"
	"github.com/yndnr/shellkeep-go/internal/telemetry/metric"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testHandler builds a handler over a real agent whose upstream is an
// httptest server answering every API call with 201/200.
func testHandler(t testing.TB) (*Handler, *agent.Agent, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method != http.MethodGet:
			w.WriteHeader(http.StatusCreated)
		default:
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"ok":true}`)
		}
	}))
	t.Cleanup(upstream.Close)

	kv, err := storage.NewBadgerEngine(storage.InMemoryKVConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })

	store, err := cache.OpenStore(":memory:", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	u, _ := url.Parse(upstream.URL)
	a, err := agent.New(agent.Config{
		Upstream:      u,
		KV:            kv,
		Cache:         store,
		ProbeInterval: -1,
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	reg := metric.NewRegistry()
	return New(a, reg.Handler(), testLogger()), a, upstream
}

func do(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) *Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return &raw.Response
}

func TestHandler_Health(t *testing.T) {
	h, _, _ := testHandler(t)

	t.Run("GET /health returns healthy status", func(t *testing.T) {
		rec := do(h, "GET", "/health", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}

		var data map[string]string
		resp := decodeEnvelope(t, rec, &data)
		if resp.Code != "OK" {
			t.Errorf("expected code 'OK', got '%s'", resp.Code)
		}
		if data["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%v'", data["status"])
		}
	})

	t.Run("GET /ready reports connectivity", func(t *testing.T) {
		rec := do(h, "GET", "/ready", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		var data ReadyResponse
		decodeEnvelope(t, rec, &data)
		if data.Status != "ready" || !data.Online {
			t.Errorf("ready = %+v", data)
		}
	})

	t.Run("GET /metrics exposes prometheus text", func(t *testing.T) {
		rec := do(h, "GET", "/metrics", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "go_goroutines") {
			t.Error("expected Go collector output")
		}
	})
}

func TestHandler_State(t *testing.T) {
	h, _, _ := testHandler(t)

	t.Run("empty slot answers {}", func(t *testing.T) {
		rec := do(h, "GET", "/api/pwa-state", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
			t.Errorf("body = %s, want {}", got)
		}
	})

	t.Run("save then load returns the snapshot", func(t *testing.T) {
		snap := []byte(`{"location_uri":"/media/42","captured_at":1700000000000}`)
		rec := do(h, "POST", "/api/pwa-state", snap)
		if rec.Code != http.StatusOK {
			t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
		}
		var reply domain.Reply
		json.NewDecoder(rec.Body).Decode(&reply)
		if !reply.Success {
			t.Errorf("save reply = %+v", reply)
		}

		rec = do(h, "GET", "/api/pwa-state", nil)
		if got := rec.Body.String(); got != string(snap) {
			t.Errorf("load = %s, want %s", got, snap)
		}
	})

	t.Run("non-object body is rejected", func(t *testing.T) {
		rec := do(h, "POST", "/api/pwa-state", []byte(`[1,2]`))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		var reply domain.Reply
		json.NewDecoder(rec.Body).Decode(&reply)
		if reply.Success || reply.Error == "" {
			t.Errorf("reply = %+v", reply)
		}
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		big := append([]byte(`{"x":"`), bytes.Repeat([]byte("a"), agent.MaxStateBytes)...)
		big = append(big, `"}`...)
		rec := do(h, "POST", "/api/pwa-state", big)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})
}

func TestHandler_Messages(t *testing.T) {
	h, _, _ := testHandler(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantOK     bool
		check      func(t *testing.T, reply *domain.Reply)
	}{
		{
			name:       "update badge",
			body:       `{"type":"UPDATE_BADGE","count":4}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "unread count follows update",
			body:       `{"type":"GET_UNREAD_COUNT"}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
			check: func(t *testing.T, reply *domain.Reply) {
				var n int
				if _, err := reply.Decode("count", &n); err != nil || n != 4 {
					t.Errorf("count = %d, %v", n, err)
				}
			},
		},
		{
			name:       "cache info",
			body:       `{"type":"GET_CACHE_INFO"}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
			check: func(t *testing.T, reply *domain.Reply) {
				var info cache.Info
				if ok, err := reply.Decode("cacheInfo", &info); !ok || err != nil {
					t.Errorf("cacheInfo missing: %v", err)
				}
			},
		},
		{
			name:       "unknown type",
			body:       `{"type":"REBOOT"}`,
			wantStatus: http.StatusOK,
			wantOK:     false,
		},
		{
			name:       "missing type",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"type":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, "POST", "/agent/v1/messages", []byte(tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var reply domain.Reply
			if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
				t.Fatalf("decode reply: %v", err)
			}
			if reply.Success != tt.wantOK {
				t.Errorf("success = %v, want %v (%s)", reply.Success, tt.wantOK, reply.Error)
			}
			if tt.check != nil {
				tt.check(t, &reply)
			}
		})
	}
}

func TestHandler_Queue(t *testing.T) {
	h, a, _ := testHandler(t)
	ctx := context.Background()

	item, err := a.Queue().Enqueue(ctx, http.MethodPost, "/api/v1/items", `{"a":1}`)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("list", func(t *testing.T) {
		rec := do(h, "GET", "/agent/v1/queue", nil)
		var data QueueResponse
		decodeEnvelope(t, rec, &data)
		if data.Total != 1 || data.Items[0].ID != item.ID {
			t.Errorf("queue = %+v", data)
		}
	})

	t.Run("delete unknown", func(t *testing.T) {
		rec := do(h, "DELETE", "/agent/v1/queue/sync-missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
		if rec.Header().Get("X-Error-Code") != domain.ErrSyncItemNotFound.Code {
			t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
		}
	})

	t.Run("sync replays against upstream", func(t *testing.T) {
		rec := do(h, "POST", "/agent/v1/sync", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var report struct {
			Replayed []string `json:"replayed"`
		}
		decodeEnvelope(t, rec, &report)
		if len(report.Replayed) != 1 || report.Replayed[0] != item.ID {
			t.Errorf("replayed = %v", report.Replayed)
		}
		if n, _ := a.Queue().Len(ctx); n != 0 {
			t.Errorf("queue length after sync = %d", n)
		}
	})

	t.Run("delete existing", func(t *testing.T) {
		other, _ := a.Queue().Enqueue(ctx, http.MethodDelete, "/api/v1/items/9", "")
		rec := do(h, "DELETE", "/agent/v1/queue/"+other.ID, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
		if _, err := a.Queue().Get(ctx, other.ID); err == nil {
			t.Error("item should be gone")
		}
	})
}

func TestHandler_PushAndStatus(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := do(h, "POST", "/agent/v1/push", []byte(`{"title":"New episode","url":"/media/7"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d: %s", rec.Code, rec.Body.String())
	}
	var push PushResponse
	decodeEnvelope(t, rec, &push)
	if push.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", push.UnreadCount)
	}

	rec = do(h, "POST", "/agent/v1/push", []byte(`{"body":"no title"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("untitled push status = %d, want 400", rec.Code)
	}

	rec = do(h, "GET", "/agent/v1/status", nil)
	var st agent.Status
	decodeEnvelope(t, rec, &st)
	if !st.Online || st.UnreadCount != 1 || st.Cache == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestHandler_Activate(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := do(h, "POST", "/agent/v1/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report cache.ActivationReport
	decodeEnvelope(t, rec, &report)
	if report.Info == nil || report.Info.TotalSizeMB != "0.00" {
		t.Errorf("report = %+v", report)
	}
}

func TestHandler_FallbackToAgent(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := do(h, "GET", "/api/v1/media", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandler_EventsStream(t *testing.T) {
	h, a, _ := testHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/agent/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.Events().Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	a.Badge().Set(ctx, 3)

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), "BADGE_UPDATE") {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, got.String())
		}
	}
}

func TestResponse_Envelope(t *testing.T) {
	t.Run("success response has correct structure", func(t *testing.T) {
		resp := NewResponse("req-123", map[string]string{"key": "value"})

		if resp.Code != "OK" || resp.Message != "Success" {
			t.Errorf("unexpected code/message: %s/%s", resp.Code, resp.Message)
		}
		if resp.RequestID != "req-123" {
			t.Errorf("expected request_id 'req-123', got '%s'", resp.RequestID)
		}
		if resp.Timestamp == 0 {
			t.Error("expected timestamp to be set")
		}
	})

	t.Run("error response has correct structure", func(t *testing.T) {
		resp := NewErrorResponse("req-456", "SK-QUEUE-4040", "sync item not found", nil)

		if resp.Code != "SK-QUEUE-4040" {
			t.Errorf("expected code 'SK-QUEUE-4040', got '%s'", resp.Code)
		}
		if resp.Data != nil {
			t.Error("expected data to be nil for error response")
		}
	})
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"SK-STATE-4040", http.StatusNotFound},
		{"SK-STATE-4041", http.StatusNotFound},
		{"SK-STATE-4001", http.StatusBadRequest},
		{"SK-SYS-4000", http.StatusBadRequest},
		{"SK-SYS-4030", http.StatusForbidden},
		{"SK-STREAM-4100", http.StatusGone},
		{"SK-STATE-4130", http.StatusRequestEntityTooLarge},
		{"SK-SYS-4290", http.StatusTooManyRequests},
		{"SK-SYS-5020", http.StatusBadGateway},
		{"SK-STATE-5030", http.StatusServiceUnavailable},
		{"SK-SYS-5000", http.StatusInternalServerError},
		{"UNKNOWN", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if status := errorCodeToHTTPStatus(tt.code); status != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, status)
			}
		})
	}
}

// BenchmarkHandler_Health benchmarks health endpoint performance.
func BenchmarkHandler_Health(b *testing.B) {
	h, _, _ := testHandler(b)

	for i := 0; i < b.N; i++ {
		do(h, "GET", "/health", nil)
	}
}
