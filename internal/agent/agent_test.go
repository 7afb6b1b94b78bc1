package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/agent/events"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/statestore"
	"github.com/yndnr/shellkeep-go/internal/storage"
	"github.com/yndnr/shellkeep-go/internal/telemetry/logger"
	"github.com/yndnr/shellkeep-go/pkg/crypto/adaptive"
)

// flakyTransport fails every round trip while down is set.
type flakyTransport struct {
	down *atomic.Bool
	base http.RoundTripper
}

func (f flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if f.down.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	return f.base.RoundTrip(r)
}

type upstream struct {
	srv  *httptest.Server
	down atomic.Bool

	mu       sync.Mutex
	requests []string
	bodies   []string
	types    []string
}

func (u *upstream) record(r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.requests = append(u.requests, r.Method+" "+r.URL.RequestURI())
	u.bodies = append(u.bodies, string(b))
	u.types = append(u.types, r.Header.Get("Content-Type"))
	u.mu.Unlock()
}

func (u *upstream) count(prefix string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, r := range u.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

type testEnv struct {
	agent *Agent
	up    *upstream
	sub   *events.Subscription
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	up := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/slow/", func(w http.ResponseWriter, r *http.Request) {
		up.record(r)
		select {
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusCreated)
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		up.record(r)
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: ping\ndata: hello\n\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		up.record(r)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html>%s</html>", r.URL.Path)
	})
	up.srv = httptest.NewServer(mux)
	t.Cleanup(up.srv.Close)

	kv, err := storage.NewBadgerEngine(storage.InMemoryKVConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	store, err := cache.OpenStore(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	u, _ := url.Parse(up.srv.URL)
	cfg := Config{
		Upstream:      u,
		Client:        &http.Client{Timeout: 5 * time.Second, Transport: flakyTransport{down: &up.down, base: http.DefaultTransport}},
		KV:            kv,
		Cache:         store,
		ProbeInterval: -1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	return &testEnv{agent: a, up: up, sub: a.Events().Subscribe()}
}

func (e *testEnv) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.agent.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitEvent(t *testing.T, typ domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-e.sub.C():
			if f.Event.Type == typ {
				return f.Event
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return domain.Event{}
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without upstream")
	}
	u, _ := url.Parse("http://127.0.0.1:1")
	if _, err := New(Config{Upstream: u}); err == nil {
		t.Error("expected error without stores")
	}
}

func TestAgent_APIRead(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("online passes through", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/items?page=1", "")
		if rec.Code != http.StatusOK || rec.Body.String() != `{"path":"/api/v1/items"}` {
			t.Fatalf("got %d %s", rec.Code, rec.Body)
		}
		if rec.Header().Get(CacheHeader) != "" {
			t.Error("network response should not carry the cache header")
		}
	})

	env.up.down.Store(true)

	t.Run("offline serves cache", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/items?page=1", "")
		if rec.Code != http.StatusOK || rec.Header().Get(CacheHeader) != "hit" {
			t.Fatalf("got %d cache=%q", rec.Code, rec.Header().Get(CacheHeader))
		}
		if rec.Body.String() != `{"path":"/api/v1/items"}` {
			t.Errorf("body = %s", rec.Body)
		}
		ev := env.waitEvent(t, domain.EventOfflineStatus)
		if ev.Data.(map[string]bool)["offline"] != true {
			t.Errorf("event = %+v", ev)
		}
		if env.agent.Online() {
			t.Error("agent should be offline")
		}
	})

	t.Run("offline miss is 502", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/v1/never", "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
		var reply domain.Reply
		json.Unmarshal(rec.Body.Bytes(), &reply)
		if reply.Success || reply.Error == "" {
			t.Errorf("reply = %+v", reply)
		}
	})
}

func TestAgent_APIWriteQueuedAndReplayed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	t.Run("online passes through", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/v1/likes", `{"id":1}`, "Content-Type", "application/json")
		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d", rec.Code)
		}
	})

	env.up.down.Store(true)

	t.Run("offline is queued", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/api/v1/likes/2?x=1", `{"id":2}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d", rec.Code)
		}
		var body map[string]any
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["success"] != true || body["queued"] != true || body["message"] == "" {
			t.Errorf("body = %v", body)
		}
		ev := env.waitEvent(t, domain.EventRequestQueued)
		if ev.Data.(map[string]string)["url"] != "/api/v1/likes/2?x=1" {
			t.Errorf("event = %+v", ev)
		}
		if n, _ := env.agent.Queue().Len(ctx); n != 1 {
			t.Errorf("queue len = %d", n)
		}
	})

	t.Run("recovery replays", func(t *testing.T) {
		env.up.down.Store(false)
		if !env.agent.Probe(ctx) {
			t.Fatal("probe should succeed")
		}
		ev := env.waitEvent(t, domain.EventSyncSuccess)
		if ev.Data.(map[string]string)["method"] != http.MethodPut {
			t.Errorf("event = %+v", ev)
		}

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if n, _ := env.agent.Queue().Len(ctx); n == 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if n, _ := env.agent.Queue().Len(ctx); n != 0 {
			t.Errorf("queue len = %d after replay", n)
		}
		if env.up.count("PUT /api/v1/likes/2?x=1") != 1 {
			t.Errorf("upstream requests = %v", env.up.requests)
		}
		env.up.mu.Lock()
		last := env.up.types[len(env.up.types)-1]
		lastBody := env.up.bodies[len(env.up.bodies)-1]
		env.up.mu.Unlock()
		if last != "application/json" || lastBody != `{"id":2}` {
			t.Errorf("replayed %s %s", last, lastBody)
		}
	})
}

func TestAgent_APIWriteAbandonedByClient(t *testing.T) {
	tests := []struct {
		name   string
		target string
		ctx    func(env *testEnv, target string) (context.Context, context.CancelFunc)
	}{
		{
			name:   "cancelled after upstream received it",
			target: "/api/v1/slow/cancel",
			ctx: func(env *testEnv, target string) (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				go func() {
					deadline := time.Now().Add(2 * time.Second)
					for env.up.count("POST "+target) == 0 && time.Now().Before(deadline) {
						time.Sleep(5 * time.Millisecond)
					}
					cancel()
				}()
				return ctx, cancel
			},
		},
		{
			name:   "client deadline",
			target: "/api/v1/slow/deadline",
			ctx: func(*testEnv, string) (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 200*time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			ctx, cancel := tt.ctx(env, tt.target)
			defer cancel()

			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(`{"id":7}`)).WithContext(ctx)
			rec := httptest.NewRecorder()
			env.agent.ServeHTTP(rec, req)

			if rec.Code != StatusClientClosedRequest {
				t.Errorf("status = %d, want %d", rec.Code, StatusClientClosedRequest)
			}
			if n, _ := env.agent.Queue().Len(context.Background()); n != 0 {
				t.Errorf("queue len = %d, want 0", n)
			}
			if !env.agent.Online() {
				t.Error("an abandoned request must not mark the upstream offline")
			}

			sent := env.up.count("POST " + tt.target)
			if sent > 1 {
				t.Fatalf("upstream saw %d requests", sent)
			}
			if _, err := env.agent.Sync(context.Background()); err != nil {
				t.Fatal(err)
			}
			if got := env.up.count("POST " + tt.target); got != sent {
				t.Errorf("upstream saw %d requests after sync, want %d", got, sent)
			}
		})
	}
}

// syncBuffer is a bytes.Buffer safe for a logger shared with goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAgent_QueuedWriteLogsRequestID(t *testing.T) {
	var out syncBuffer
	log := slog.New(logger.NewContextHandler(slog.NewTextHandler(&out, nil)))
	env := newTestEnv(t, func(c *Config) { c.Logger = log })
	env.up.down.Store(true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/likes", strings.NewReader(`{"id":3}`))
	req = req.WithContext(logger.WithRequestID(req.Context(), "req-offline-1"))
	rec := httptest.NewRecorder()
	env.agent.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, `msg="request queued"`) {
			if !strings.Contains(line, "request_id=req-offline-1") {
				t.Errorf("queued log lacks request id: %s", line)
			}
			return
		}
	}
	t.Errorf("no request queued log in:\n%s", out.String())
}

func TestAgent_ClassifiedGET(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(http.MethodGet, "/", "", "Accept", "text/html")
	env.do(http.MethodGet, "/img/logo.png", "")
	env.up.down.Store(true)

	t.Run("image from cache", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/img/logo.png", "")
		if rec.Code != http.StatusOK || rec.Header().Get(CacheHeader) != "hit" {
			t.Errorf("got %d cache=%q", rec.Code, rec.Header().Get(CacheHeader))
		}
	})

	t.Run("navigation falls back to shell", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/movies/42", "", "Accept", "text/html")
		if rec.Code != http.StatusOK || rec.Body.String() != "<html>/</html>" {
			t.Errorf("got %d %s", rec.Code, rec.Body)
		}
	})

	t.Run("unclassified fails", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/download/file.bin", "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestAgent_EventStreamPassThrough(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/events", "", "Accept", "text/event-stream")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "data: hello") {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestAgent_StateSlot(t *testing.T) {
	key, _ := adaptive.DeriveKey("test-secret", "pwa-state")
	cipher, err := adaptive.New(key)
	if err != nil {
		t.Fatal(err)
	}

	for name, c := range map[string]*adaptive.Cipher{"plain": nil, "sealed": cipher} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *Config) { cfg.StateCipher = c })
			ctx := context.Background()

			got, err := env.agent.LoadState(ctx)
			if err != nil || string(got) != "{}" {
				t.Fatalf("empty slot = %s, %v", got, err)
			}
			if err := env.agent.SaveState(ctx, []byte(`{"location_uri":"/a","captured_at":5}`)); err != nil {
				t.Fatal(err)
			}
			got, _ = env.agent.LoadState(ctx)
			if string(got) != `{"location_uri":"/a","captured_at":5}` {
				t.Errorf("LoadState() = %s", got)
			}
			if err := env.agent.SaveState(ctx, []byte(`[1]`)); !errors.Is(err, domain.ErrSnapshotInvalid) {
				t.Errorf("SaveState(array) error = %v", err)
			}
		})
	}
}

func TestAgent_HandleMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	three := 3

	tests := []struct {
		name    string
		msg     domain.Message
		success bool
		key     string
	}{
		{"update badge", domain.Message{Type: domain.MsgUpdateBadge, Count: &three}, true, ""},
		{"unread count", domain.Message{Type: domain.MsgGetUnreadCount}, true, "count"},
		{"clear badge", domain.Message{Type: domain.MsgClearBadge}, true, ""},
		{"cache info", domain.Message{Type: domain.MsgGetCacheInfo}, true, "cacheInfo"},
		{"cleanup", domain.Message{Type: domain.MsgCleanupCaches}, true, "cacheInfo"},
		{"save without state", domain.Message{Type: domain.MsgSavePWAState}, false, ""},
		{"unknown", domain.Message{Type: "REBOOT"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := env.agent.HandleMessage(ctx, tt.msg)
			if reply.Success != tt.success {
				t.Errorf("Success = %v (%s)", reply.Success, reply.Error)
			}
			if tt.key != "" {
				if _, ok := reply.Payload[tt.key]; !ok {
					t.Errorf("payload missing %q: %v", tt.key, reply.Payload)
				}
			}
		})
	}

	t.Run("badge value", func(t *testing.T) {
		env.agent.HandleMessage(ctx, domain.Message{Type: domain.MsgUpdateBadge, Count: &three})
		reply := env.agent.HandleMessage(ctx, domain.Message{Type: domain.MsgGetUnreadCount})
		if reply.Payload["count"] != 3 {
			t.Errorf("count = %v", reply.Payload["count"])
		}
	})
}

func TestLocalPort_MessageStore(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	store := statestore.NewMessageStore(LocalPort{Agent: env.agent})

	s, err := store.Restore(ctx)
	if err != nil || s != nil {
		t.Fatalf("empty Restore() = %+v, %v", s, err)
	}

	snap := &domain.Snapshot{LocationURI: "/library?tab=2", CapturedAt: time.Now().UnixMilli()}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}
	got, err := store.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.LocationURI != snap.LocationURI || got.CapturedAt != snap.CapturedAt {
		t.Errorf("Restore() = %+v", got)
	}

	if _, err := (LocalPort{}).Send(ctx, domain.Message{}); !errors.Is(err, domain.ErrNoMessagePort) {
		t.Errorf("nil agent error = %v", err)
	}
}

func TestAgent_Push(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.agent.Push(ctx, Notification{}); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("empty title error = %v", err)
	}
	n, err := env.agent.Push(ctx, Notification{Title: "New episode", URL: "/shows/1"})
	if err != nil || n != 1 {
		t.Fatalf("Push() = %d, %v", n, err)
	}
	env.waitEvent(t, domain.EventBadgeUpdate)
	ev := env.waitEvent(t, domain.EventNotification)
	if ev.Data.(map[string]any)["url"] != "/shows/1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestAgent_StartActivates(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.agent.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ev := env.waitEvent(t, domain.EventCacheSizeUpdate)
	if _, ok := ev.Data.(*cache.Info); !ok {
		t.Errorf("data = %T", ev.Data)
	}
}
