package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent/badge"
	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/agent/events"
	"github.com/yndnr/shellkeep-go/internal/agent/syncqueue"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/storage"
	"github.com/yndnr/shellkeep-go/internal/telemetry/metric"
	"github.com/yndnr/shellkeep-go/pkg/crypto/adaptive"
)

// Default timings.
const (
	DefaultProbeInterval = 15 * time.Second
	DefaultTimeout       = 15 * time.Second
	DefaultProbePath     = "/health"
)

// Page-facing agent routes.
const (
	MessagesPath = "/agent/v1/messages"
	EventsPath   = "/agent/v1/events"
)

// Config wires an Agent.
type Config struct {
	// Upstream is the application origin. Required.
	Upstream *url.URL
	// Client performs upstream requests. Nil uses a client with Timeout.
	Client  *http.Client
	Timeout time.Duration

	KV         storage.KVEngine // Required.
	Cache      *cache.Store     // Required.
	Classifier cache.Classifier
	Events     *events.Hub
	Metrics    *metric.Registry

	ReplayRate  float64
	ReplayBurst int

	// ProbeInterval is the idle connectivity check period. Negative
	// disables probing.
	ProbeInterval time.Duration
	ProbePath     string

	// StateCipher seals the page-state slot when set.
	StateCipher *adaptive.Cipher

	Clock  func() time.Time
	Logger *slog.Logger
}

// Agent is the background agent.
type Agent struct {
	upstream   *url.URL
	client     *http.Client
	kv         storage.KVEngine
	cache      *cache.Store
	classifier cache.Classifier
	events     *events.Hub
	metrics    *metric.Registry
	queue      *syncqueue.Queue
	badge      *badge.Counter
	replayer   syncqueue.Replayer
	stream     *httputil.ReverseProxy
	cipher     *adaptive.Cipher
	probeEvery time.Duration
	probePath  string
	clock      func() time.Time
	logger     *slog.Logger

	online atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an agent from cfg. Call Start to begin probing.
func New(cfg Config) (*Agent, error) {
	if cfg.Upstream == nil || cfg.Upstream.Host == "" {
		return nil, errors.New("agent: upstream URL is required")
	}
	if cfg.KV == nil || cfg.Cache == nil {
		return nil, errors.New("agent: kv and cache are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Events == nil {
		cfg.Events = events.NewHub(cfg.Logger)
	}
	if cfg.Classifier.APIPrefix == "" {
		cfg.Classifier = cache.DefaultClassifier()
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = DefaultProbePath
	}

	a := &Agent{
		upstream:   cfg.Upstream,
		client:     cfg.Client,
		kv:         cfg.KV,
		cache:      cfg.Cache,
		classifier: cfg.Classifier,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		cipher:     cfg.StateCipher,
		probeEvery: cfg.ProbeInterval,
		probePath:  cfg.ProbePath,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With("component", "agent"),
	}
	a.online.Store(true)
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.queue = syncqueue.New(cfg.KV, syncqueue.Options{
		ReplayRate:  cfg.ReplayRate,
		ReplayBurst: cfg.ReplayBurst,
		OnSuccess:   a.syncSucceeded,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger,
	})
	a.badge = badge.New(cfg.KV, badge.EventSink{Events: a.events}, cfg.Logger)
	a.replayer = &syncqueue.HTTPReplayer{BaseURL: cfg.Upstream.String(), Client: cfg.Client}
	a.stream = a.newStreamProxy()
	if cfg.Metrics != nil {
		a.events.OnSubscribersChanged(cfg.Metrics.SetEventSubscribers)
	}

	return a, nil
}

// Queue returns the sync queue.
func (a *Agent) Queue() *syncqueue.Queue { return a.queue }

// Badge returns the unread counter.
func (a *Agent) Badge() *badge.Counter { return a.badge }

// Events returns the notification hub.
func (a *Agent) Events() *events.Hub { return a.events }

// Online reports the last observed upstream connectivity.
func (a *Agent) Online() bool { return a.online.Load() }

// Status is a point-in-time view of the agent.
type Status struct {
	Online      bool        `json:"online"`
	Upstream    string      `json:"upstream"`
	QueueDepth  int         `json:"queue_depth"`
	UnreadCount int         `json:"unread_count"`
	Subscribers int         `json:"subscribers"`
	Cache       *cache.Info `json:"cache,omitempty"`
}

// Status collects the agent's current state. Parts that fail to load are
// left at their zero value.
func (a *Agent) Status(ctx context.Context) *Status {
	st := &Status{
		Online:      a.Online(),
		Upstream:    a.upstream.Redacted(),
		Subscribers: a.events.Subscribers(),
	}
	if n, err := a.queue.Len(ctx); err == nil {
		st.QueueDepth = n
	}
	if n, err := a.badge.Get(ctx); err == nil {
		st.UnreadCount = n
	}
	if info, err := a.cache.Info(ctx); err == nil {
		st.Cache = info
	} else {
		a.logger.Warn("cache info unavailable", "error", err)
	}
	return st
}

// Start activates the cache, replays anything left in the queue and
// starts the connectivity probe.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()

	if _, err := a.Activate(ctx); err != nil {
		return err
	}
	if n, err := a.queue.Len(ctx); err == nil {
		a.setQueueDepth(n)
		if n > 0 {
			a.TriggerSync()
		}
	}

	if a.probeEvery > 0 {
		a.goBackground(a.probeLoop)
	}
	a.logger.Info("agent started", "upstream", a.upstream.Redacted(), "probe_interval", a.probeEvery)
	return nil
}

// Close stops background work and ends every event subscription.
func (a *Agent) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	a.events.Close()
	return nil
}

// Activate drops outdated caches, enforces class limits and broadcasts
// the resulting sizes.
func (a *Agent) Activate(ctx context.Context) (*cache.ActivationReport, error) {
	report, err := a.cache.Activate(ctx)
	if err != nil {
		a.logger.Error("cache activation failed", "error", err)
		return nil, err
	}
	if a.metrics != nil {
		for class, n := range report.Evicted {
			a.metrics.AddCacheEvictions(class, "count", n)
		}
		for class, n := range report.Expired {
			a.metrics.AddCacheEvictions(class, "age", n)
		}
	}
	a.events.Broadcast(domain.Event{Type: domain.EventCacheSizeUpdate, Data: report.Info})
	return report, nil
}

// TriggerSync starts a replay pass in the background. Passes are
// single-flight; a trigger during a pass extends it.
func (a *Agent) TriggerSync() {
	a.goBackground(func() { a.Sync(a.ctx) })
}

// goBackground runs fn on a tracked goroutine unless the agent is closed.
func (a *Agent) goBackground(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Sync runs a replay pass and waits for it.
func (a *Agent) Sync(ctx context.Context) (*syncqueue.Report, error) {
	rep, err := a.queue.Replay(ctx, a.replayer)
	if err != nil {
		a.logger.Warn("replay pass aborted", "error", err)
	}
	if rep != nil && a.metrics != nil {
		a.metrics.AddReplayOutcome("success", len(rep.Replayed))
		a.metrics.AddReplayOutcome("expired", len(rep.Expired))
		a.metrics.AddReplayOutcome("failed", rep.Failed)
	}
	if n, lerr := a.queue.Len(ctx); lerr == nil {
		a.setQueueDepth(n)
	}
	return rep, err
}

func (a *Agent) syncSucceeded(item *domain.SyncItem) {
	a.events.Broadcast(domain.Event{Type: domain.EventSyncSuccess, Data: map[string]string{
		"syncId": item.ID,
		"url":    item.URL,
		"method": item.Method,
	}})
}

// markOnline records a successful upstream exchange. The transition out
// of offline triggers a replay pass.
func (a *Agent) markOnline() {
	if a.online.CompareAndSwap(false, true) {
		a.logger.Info("upstream reachable again")
		if a.metrics != nil {
			a.metrics.SetOffline(false)
		}
		a.events.Broadcast(domain.Event{Type: domain.EventOfflineStatus, Data: map[string]bool{"offline": false}})
		a.TriggerSync()
	}
}

// markOffline records a failed upstream exchange.
func (a *Agent) markOffline(err error) {
	if a.online.CompareAndSwap(true, false) {
		a.logger.Warn("upstream unreachable", "error", err)
		if a.metrics != nil {
			a.metrics.SetOffline(true)
		}
	}
}

func (a *Agent) broadcastOffline() {
	a.events.Broadcast(domain.Event{Type: domain.EventOfflineStatus, Data: map[string]bool{"offline": true}})
}

func (a *Agent) setQueueDepth(n int) {
	if a.metrics != nil {
		a.metrics.SetQueueDepth(n)
	}
}

func (a *Agent) probeLoop() {
	ticker := time.NewTicker(a.probeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.Probe(a.ctx)
		}
	}
}

// Probe checks upstream reachability once and updates the online state.
// Any HTTP response counts as reachable.
func (a *Agent) Probe(ctx context.Context) bool {
	timeout := a.client.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.upstreamURL(a.probePath, ""), nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.markOffline(err)
		return false
	}
	resp.Body.Close()
	a.markOnline()
	return true
}

func (a *Agent) upstreamURL(path, rawQuery string) string {
	u := *a.upstream
	u.Path = strings.TrimRight(a.upstream.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = rawQuery
	return u.String()
}
