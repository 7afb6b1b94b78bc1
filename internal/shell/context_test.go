package shell

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/background"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/core/service"
	"github.com/yndnr/shellkeep-go/internal/page"
	"github.com/yndnr/shellkeep-go/internal/server/httpserver/handler"
	"github.com/yndnr/shellkeep-go/internal/storage"
)

const baseURI = "http://app.local/library?tab=movies"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newContext(t *testing.T, opts Options) *Context {
	t.Helper()
	if opts.BaseURI == "" {
		opts.BaseURI = baseURI
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Controller.WaitRestored(ctx); err != nil {
		t.Fatalf("WaitRestored() error = %v", err)
	}
	return c
}

func newAgent(t *testing.T) *agent.Agent {
	t.Helper()
	kv, err := storage.NewBadgerEngine(storage.InMemoryKVConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	store, err := cache.OpenStore(":memory:", quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	u, _ := url.Parse("http://127.0.0.1:1")
	a, err := agent.New(agent.Config{
		Upstream:      u,
		KV:            kv,
		Cache:         store,
		ProbeInterval: -1,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_RequiresBaseURI(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Error("expected error without base URI")
	}
}

func TestNew_BackendOrder(t *testing.T) {
	kv, err := storage.NewBadgerEngine(storage.InMemoryKVConfig(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"message only", Options{}, []string{"message"}},
		{"local and kv", Options{StateDir: t.TempDir(), KV: kv}, []string{"local", "kv", "message"}},
		{"all", Options{StateDir: t.TempDir(), KV: kv, AgentURL: "http://127.0.0.1:1/"},
			[]string{"local", "kv", "endpoint", "message"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContext(t, tt.opts)
			got := c.Backends()
			if len(got) != len(tt.want) {
				t.Fatalf("Backends() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Backends() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestContext_SuspendResume(t *testing.T) {
	c := newContext(t, Options{StateDir: t.TempDir()})

	ran := make(chan struct{}, 10)
	c.Timers.AddTimer("poll", func() { ran <- struct{}{} }, time.Hour,
		background.TimerOptions{SkipInitialRun: true})

	report, err := c.Suspend(context.Background())
	if err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if report.Skipped {
		t.Fatal("first Suspend() should not be skipped")
	}
	if err := report.Err(); err != nil {
		t.Errorf("save failed: %v", err)
	}
	if !c.Suspended() {
		t.Error("Suspended() = false after Suspend")
	}
	if st := c.Timers.TimerStatus("poll"); st != background.TimerPaused {
		t.Errorf("timer state = %s, want paused", st)
	}

	again, _ := c.Suspend(context.Background())
	if !again.Skipped {
		t.Error("second Suspend() should be skipped")
	}

	if !c.Resume(context.Background()) {
		t.Error("Resume() should run a restore pass")
	}
	if c.Suspended() {
		t.Error("Suspended() = true after Resume")
	}
	if st := c.Timers.TimerStatus("poll"); st != background.TimerRunning {
		t.Errorf("timer state = %s, want running", st)
	}
	if c.Resume(context.Background()) {
		t.Error("Resume() without Suspend should do nothing")
	}
}

func TestContext_RestoreAfterRestart(t *testing.T) {
	dir := t.TempDir()

	vp := page.NewViewport(domain.OrientationPortrait)
	first := newContext(t, Options{StateDir: dir, Window: vp})
	root := page.NewRoot()
	title := page.NewField(root.Append(page.NewNode("input").WithID("title")), domain.FieldText)
	title.SetValue("half-written review")
	first.Document.RegisterField(title)
	vp.ScrollTo(0, 420)

	if _, err := first.Suspend(context.Background()); err != nil {
		t.Fatal(err)
	}
	first.Close(context.Background())

	vp2 := page.NewViewport(domain.OrientationPortrait)
	root2 := page.NewRoot()
	title2 := page.NewField(root2.Append(page.NewNode("input").WithID("title")), domain.FieldText)

	// Participants registered before New take part in the first restore.
	doc := page.NewDocument(vp2, quietLogger())
	doc.RegisterField(title2)
	second, err := New(context.Background(), Options{
		StateDir: dir,
		Document: doc,
		BaseURI:  baseURI,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := second.Controller.WaitRestored(ctx); err != nil {
		t.Fatal(err)
	}

	if _, y := vp2.ScrollOffset(); y != 420 {
		t.Errorf("window scroll y = %v, want 420", y)
	}
	if got := title2.Value(); got != "half-written review" {
		t.Errorf("title = %q", got)
	}
}

func TestContext_InProcessAgent(t *testing.T) {
	a := newAgent(t)
	c := newContext(t, Options{Messenger: agent.LocalPort{Agent: a}})

	report, err := c.Suspend(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := report.Results["message"]; err != nil {
		t.Fatalf("message backend save: %v", err)
	}

	raw, err := a.LoadState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := domain.DecodeSnapshot(raw)
	if err != nil {
		t.Fatal(err)
	}
	if snap.LocationURI != baseURI {
		t.Errorf("stored location = %q, want %q", snap.LocationURI, baseURI)
	}
}

func TestContext_WatchAgent(t *testing.T) {
	t.Run("no agent", func(t *testing.T) {
		c := newContext(t, Options{})
		if _, err := c.WatchAgent("w", func(domain.Event) {}); err == nil {
			t.Error("expected error without agent URL")
		}
	})

	t.Run("badge update", func(t *testing.T) {
		a := newAgent(t)
		srv := httptest.NewServer(handler.New(a, nil, quietLogger()))
		// Registered before the context so the stream is closed first.
		t.Cleanup(srv.Close)

		c := newContext(t, Options{AgentURL: srv.URL})
		got := make(chan domain.Event, 4)
		conn, err := c.WatchAgent("watch", func(ev domain.Event) { got <- ev })
		if err != nil {
			t.Fatal(err)
		}
		if conn.ListenerCount() != 1 {
			t.Errorf("ListenerCount() = %d", conn.ListenerCount())
		}

		deadline := time.Now().Add(5 * time.Second)
		for a.Events().Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if err := a.Badge().Set(context.Background(), 3); err != nil {
			t.Fatal(err)
		}

		select {
		case ev := <-got:
			if ev.Type != domain.EventBadgeUpdate {
				t.Errorf("event type = %s", ev.Type)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no event received")
		}

		st := c.Status()
		if len(st.Streams) != 1 || st.Streams[0].Listeners != 1 {
			t.Errorf("Status().Streams = %+v", st.Streams)
		}
	})
}

func TestContext_StatusAndClose(t *testing.T) {
	c := newContext(t, Options{StateDir: t.TempDir(), AutosaveInterval: time.Hour})

	st := c.Status()
	if st.State != service.StateIdle.String() {
		t.Errorf("State = %q, want idle", st.State)
	}
	if st.URI != baseURI {
		t.Errorf("URI = %q", st.URI)
	}
	found := false
	for _, ti := range st.Timers {
		if ti.ID == service.AutosaveTimerID {
			found = true
		}
	}
	if !found {
		t.Error("autosave timer not registered")
	}

	if err := c.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !c.Timers.Status().Closed {
		t.Error("timers not closed")
	}
	if rep, _ := c.Suspend(context.Background()); !rep.Skipped {
		t.Error("Suspend after Close should be skipped")
	}
}
