package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/background"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/core/service"
	"github.com/yndnr/shellkeep-go/internal/page"
	"github.com/yndnr/shellkeep-go/internal/statestore"
	"github.com/yndnr/shellkeep-go/internal/storage"
	"github.com/yndnr/shellkeep-go/internal/stream"
	"github.com/yndnr/shellkeep-go/pkg/crypto/adaptive"
)

// Options configures a shell Context. Every backend is optional; the ones
// left unset are simply not part of the chain.
type Options struct {
	// BaseURI is the initial location. Required.
	BaseURI string

	// StateDir enables the local file backend.
	StateDir string
	// KV enables the transactional backend. The caller owns it.
	KV storage.KVEngine
	// AgentURL enables the agent endpoint and message backends and the
	// agent event stream.
	AgentURL string
	// Messenger overrides the HTTP message port, e.g. agent.LocalPort when
	// the agent runs in the same process.
	Messenger statestore.Messenger
	Cipher    *adaptive.Cipher

	// Document is the participant registry. Participants registered before
	// New takes part in the initial restore. Nil creates an empty one over
	// Window.
	Document *page.Document
	Window   page.Window
	Client   *http.Client
	Dialer   stream.Dialer

	AutosaveInterval  time.Duration
	RestoreRoute      bool
	CrossPathOverlays bool
	ExpireAfter       time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// Context is the page-side resilience subsystem of one host, built once
// at startup and handed to every component.
type Context struct {
	Logger     *slog.Logger
	Document   *page.Document
	Navigator  *service.MemoryNavigator
	AppState   *service.MemoryAppState
	Timers     *background.Manager
	Streams    *stream.Registry
	Controller *service.Controller

	backends []statestore.Backend
	agentURL string

	mu        sync.Mutex
	suspended bool
	closed    bool
}

// New wires the subsystem and starts the initial restore pass.
func New(ctx context.Context, opts Options) (*Context, error) {
	if opts.BaseURI == "" {
		return nil, errors.New("shell: base URI is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Window == nil {
		opts.Window = page.NewViewport(domain.OrientationPortrait)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Document == nil {
		opts.Document = page.NewDocument(opts.Window, opts.Logger)
	}

	nav, err := service.NewMemoryNavigator(opts.BaseURI)
	if err != nil {
		return nil, fmt.Errorf("shell: base URI: %w", err)
	}

	backends := buildBackends(opts)

	c := &Context{
		Logger:    opts.Logger,
		Document:  opts.Document,
		Navigator: nav,
		AppState:  service.NewMemoryAppState(),
		Timers: background.NewManager(background.Options{
			Clock:  opts.Clock,
			Logger: opts.Logger,
		}),
		Streams:  stream.NewRegistry(opts.Dialer, opts.Logger),
		backends: backends,
		agentURL: strings.TrimRight(opts.AgentURL, "/"),
	}

	c.Controller, err = service.NewController(ctx, service.ControllerConfig{
		Backends:          backends,
		Document:          c.Document,
		Navigator:         nav,
		AppState:          c.AppState,
		Timers:            c.Timers,
		AutosaveInterval:  opts.AutosaveInterval,
		RestoreRoute:      opts.RestoreRoute,
		CrossPathOverlays: opts.CrossPathOverlays,
		ExpireAfter:       opts.ExpireAfter,
		Clock:             opts.Clock,
		Logger:            opts.Logger,
	})
	if err != nil {
		c.Timers.Close()
		return nil, err
	}

	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	opts.Logger.Info("shell started", "uri", opts.BaseURI, "backends", names)
	return c, nil
}

// buildBackends returns the backends in restore order.
func buildBackends(opts Options) []statestore.Backend {
	var backends []statestore.Backend
	if opts.StateDir != "" {
		local, err := statestore.NewLocalStore(statestore.LocalOptions{
			Dir:    opts.StateDir,
			Cipher: opts.Cipher,
			Clock:  opts.Clock,
		})
		if err != nil {
			// An unusable directory only drops this backend.
			opts.Logger.Warn("local state store unavailable", "dir", opts.StateDir, "error", err)
		} else {
			backends = append(backends, local)
		}
	}
	if opts.KV != nil {
		backends = append(backends, statestore.NewKVStore(opts.KV))
	}

	agentURL := strings.TrimRight(opts.AgentURL, "/")
	if agentURL != "" {
		backends = append(backends, statestore.NewEndpointStore(agentURL, opts.Client))
	}
	messenger := opts.Messenger
	if messenger == nil && agentURL != "" {
		messenger = agent.HTTPPort{URL: agentURL + agent.MessagesPath, Client: opts.Client}
	}
	backends = append(backends, statestore.NewMessageStore(messenger))
	return backends
}

// Backends returns the names of the configured backends in restore order.
func (c *Context) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Suspend is the lifecycle adapter for "page hidden": it saves state and
// then pauses timers and streams. A second call without Resume is a no-op.
func (c *Context) Suspend(ctx context.Context) (service.SaveReport, error) {
	c.mu.Lock()
	if c.suspended || c.closed {
		c.mu.Unlock()
		return service.SaveReport{Skipped: true}, nil
	}
	c.suspended = true
	c.mu.Unlock()

	report, err := c.Controller.OnSuspend(ctx)
	c.Timers.OnSuspend()
	c.Streams.OnSuspend()
	c.Logger.Debug("shell suspended")
	return report, err
}

// Resume is the lifecycle adapter for "page visible again". It reports
// whether a restore pass ran.
func (c *Context) Resume(ctx context.Context) bool {
	c.mu.Lock()
	if !c.suspended || c.closed {
		c.mu.Unlock()
		return false
	}
	c.suspended = false
	c.mu.Unlock()

	c.Timers.OnResume()
	c.Streams.OnResume()
	ran := c.Controller.OnResume(ctx)
	c.Logger.Debug("shell resumed", "restored", ran)
	return ran
}

// Suspended reports whether the host is backgrounded.
func (c *Context) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Close saves state one last time (the "before unload" save) and tears
// everything down.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	suspended := c.suspended
	c.closed = true
	c.mu.Unlock()

	var err error
	if !suspended {
		var report service.SaveReport
		report, err = c.Controller.OnSuspend(ctx)
		if err == nil {
			err = report.Err()
		}
	}
	c.Controller.Close()
	c.Streams.CloseAll()
	c.Timers.Close()
	return err
}

// WatchAgent subscribes fn to the agent's event stream under id. Events
// that do not decode are logged and dropped.
func (c *Context) WatchAgent(id string, fn func(domain.Event)) (*stream.Connection, error) {
	if c.agentURL == "" {
		return nil, domain.ErrNoMessagePort.WithDetails("no agent URL configured")
	}
	conn := c.Streams.Get(c.agentURL+agent.EventsPath, stream.DefaultOptions())
	conn.AddMessageListener(id, func(m stream.Message) {
		var ev domain.Event
		if err := json.Unmarshal([]byte(m.Data), &ev); err != nil {
			c.Logger.Warn("undecodable agent event", "event", m.Event, "error", err)
			return
		}
		fn(ev)
	})
	return conn, nil
}

// StreamStatus describes one registered stream connection.
type StreamStatus struct {
	Endpoint  string        `json:"endpoint" yaml:"endpoint"`
	Status    stream.Status `json:"status" yaml:"status"`
	Attempts  int           `json:"attempts" yaml:"attempts"`
	Listeners int           `json:"listeners" yaml:"listeners"`
}

// Status is a point-in-time view of the host.
type Status struct {
	Suspended  bool                   `json:"suspended" yaml:"suspended"`
	State      string                 `json:"state" yaml:"state"`
	URI        string                 `json:"uri" yaml:"uri"`
	Backends   []string               `json:"backends" yaml:"backends"`
	Background background.Status      `json:"background" yaml:"background"`
	Timers     []background.TimerInfo `json:"timers" yaml:"timers"`
	Streams    []StreamStatus         `json:"streams" yaml:"streams"`
}

// Status collects the current state of every component.
func (c *Context) Status() Status {
	st := Status{
		Suspended:  c.Suspended(),
		State:      c.Controller.State().String(),
		URI:        c.Navigator.CurrentURI(),
		Backends:   c.Backends(),
		Background: c.Timers.Status(),
		Timers:     c.Timers.Timers(),
	}
	for _, conn := range c.Streams.Connections() {
		st.Streams = append(st.Streams, StreamStatus{
			Endpoint:  conn.Endpoint(),
			Status:    conn.Status(),
			Attempts:  conn.Attempts(),
			Listeners: conn.ListenerCount(),
		})
	}
	return st
}
