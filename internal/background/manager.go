package background

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrClosed          = errors.New("background manager closed")
	ErrInvalidInterval = errors.New("timer interval must be positive")
)

// ActivityEvents is the fixed set of UI events counted as user activity.
var ActivityEvents = []string{"mousedown", "mousemove", "keypress", "scroll", "touchstart", "click"}

// TimerState is the lifecycle state of a registered timer.
type TimerState string

const (
	TimerRunning  TimerState = "running"
	TimerPaused   TimerState = "paused"
	TimerNotFound TimerState = "not-found"
)

// TimerOptions tunes a single timer.
type TimerOptions struct {
	// AllowWhileBackgrounded keeps the timer running during suspension.
	AllowWhileBackgrounded bool
	// SkipInitialRun suppresses the immediate first invocation.
	SkipInitialRun bool
}

// TimerInfo describes one registered timer.
type TimerInfo struct {
	ID                     string        `json:"id" yaml:"id"`
	Interval               time.Duration `json:"interval" yaml:"interval"`
	State                  TimerState    `json:"state" yaml:"state"`
	AllowWhileBackgrounded bool          `json:"allow_while_backgrounded" yaml:"allow_while_backgrounded"`
	PausedAt               time.Time     `json:"paused_at,omitzero" yaml:"paused_at,omitempty"`
}

// Status is a point-in-time summary of the manager.
type Status struct {
	Backgrounded bool      `json:"backgrounded" yaml:"backgrounded"`
	Closed       bool      `json:"closed" yaml:"closed"`
	TimerCount   int       `json:"timer_count" yaml:"timer_count"`
	LastActivity time.Time `json:"last_activity" yaml:"last_activity"`
	UserActive   bool      `json:"user_active" yaml:"user_active"`
}

// Options configures a Manager.
type Options struct {
	// IdleThreshold is the inactivity after which the user counts as idle.
	IdleThreshold time.Duration
	// MonitorInterval is how often inactivity is checked.
	MonitorInterval time.Duration
	Clock           func() time.Time
	Logger          *slog.Logger
}

// DefaultOptions returns a 5 minute idle threshold checked every minute.
func DefaultOptions() Options {
	return Options{
		IdleThreshold:   5 * time.Minute,
		MonitorInterval: time.Minute,
	}
}

type timerEntry struct {
	id       string
	interval time.Duration
	cb       func()
	opts     TimerOptions

	// stop is nil while the timer is paused.
	stop     chan struct{}
	pausedAt time.Time
	runMu    sync.Mutex
}

// Manager owns every background timer of one host.
type Manager struct {
	mu           sync.Mutex
	timers       map[string]*timerEntry
	backgrounded bool
	closed       bool

	lastActivity atomic.Int64
	idle         time.Duration
	clock        func() time.Time
	logger       *slog.Logger
	monitorStop  chan struct{}
}

// NewManager creates a manager and starts its inactivity monitor.
func NewManager(opts Options) *Manager {
	def := DefaultOptions()
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = def.IdleThreshold
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = def.MonitorInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		timers:      make(map[string]*timerEntry),
		idle:        opts.IdleThreshold,
		clock:       opts.Clock,
		logger:      opts.Logger.With("component", "background"),
		monitorStop: make(chan struct{}),
	}
	m.lastActivity.Store(m.clock().UnixMilli())
	go m.monitor(opts.MonitorInterval)
	return m
}

// AddTimer registers cb to run every interval under id, replacing any
// timer already registered under that id. Unless SkipInitialRun is set
// the callback also runs once before AddTimer returns.
func (m *Manager) AddTimer(id string, cb func(), interval time.Duration, opts TimerOptions) error {
	if interval <= 0 {
		return fmt.Errorf("timer %s: %w", id, ErrInvalidInterval)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if old, ok := m.timers[id]; ok {
		m.disarm(old)
		delete(m.timers, id)
	}
	e := &timerEntry{id: id, interval: interval, cb: cb, opts: opts}
	m.timers[id] = e
	runnable := !m.backgrounded || opts.AllowWhileBackgrounded
	if runnable {
		m.arm(e)
	} else {
		e.pausedAt = m.clock()
	}
	m.mu.Unlock()

	m.logger.Debug("timer added", "id", id, "interval", interval, "allow_while_backgrounded", opts.AllowWhileBackgrounded)

	if !opts.SkipInitialRun && runnable {
		m.invoke(e)
	}
	return nil
}

// RemoveTimer cancels and forgets the timer. Unknown ids are ignored.
func (m *Manager) RemoveTimer(id string) {
	m.mu.Lock()
	e, ok := m.timers[id]
	if ok {
		m.disarm(e)
		delete(m.timers, id)
	}
	m.mu.Unlock()
	if ok {
		m.logger.Debug("timer removed", "id", id)
	}
}

// TimerStatus reports whether id is running, paused or unknown.
func (m *Manager) TimerStatus(id string) TimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timers[id]
	if !ok {
		return TimerNotFound
	}
	if e.stop == nil {
		return TimerPaused
	}
	return TimerRunning
}

// Timers lists every registered timer ordered by id.
func (m *Manager) Timers() []TimerInfo {
	m.mu.Lock()
	out := make([]TimerInfo, 0, len(m.timers))
	for _, e := range m.timers {
		state := TimerRunning
		if e.stop == nil {
			state = TimerPaused
		}
		out = append(out, TimerInfo{
			ID:                     e.id,
			Interval:               e.interval,
			State:                  state,
			AllowWhileBackgrounded: e.opts.AllowWhileBackgrounded,
			PausedAt:               e.pausedAt,
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnSuspend pauses every timer not allowed to run while backgrounded.
func (m *Manager) OnSuspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.backgrounded {
		return
	}
	m.backgrounded = true
	now := m.clock()
	paused := 0
	for _, e := range m.timers {
		if e.stop != nil && !e.opts.AllowWhileBackgrounded {
			m.disarm(e)
			e.pausedAt = now
			paused++
		}
	}
	m.logger.Info("entered background, timers paused", "paused", paused)
}

// OnResume re-arms every paused timer.
func (m *Manager) OnResume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.backgrounded {
		return
	}
	m.backgrounded = false
	resumed := 0
	for _, e := range m.timers {
		if e.stop == nil {
			m.arm(e)
			resumed++
		}
	}
	m.logger.Info("returned to foreground, timers resumed", "resumed", resumed)
}

// Backgrounded reports whether the host is currently suspended.
func (m *Manager) Backgrounded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backgrounded
}

// ObserveEvent records user activity for the events in ActivityEvents and
// reports whether name was one of them.
func (m *Manager) ObserveEvent(name string) bool {
	for _, ev := range ActivityEvents {
		if ev == name {
			m.lastActivity.Store(m.clock().UnixMilli())
			return true
		}
	}
	return false
}

// LastActivity returns the time of the most recent observed activity.
func (m *Manager) LastActivity() time.Time {
	return time.UnixMilli(m.lastActivity.Load())
}

// IsUserActive reports whether activity was seen within the window.
// A non-positive window uses the idle threshold.
func (m *Manager) IsUserActive(within time.Duration) bool {
	if within <= 0 {
		within = m.idle
	}
	return m.clock().Sub(m.LastActivity()) < within
}

// Status summarizes the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := Status{
		Backgrounded: m.backgrounded,
		Closed:       m.closed,
		TimerCount:   len(m.timers),
	}
	m.mu.Unlock()
	s.LastActivity = m.LastActivity()
	s.UserActive = m.IsUserActive(0)
	return s
}

// Close cancels every timer and the inactivity monitor. No callback runs
// after Close returns, except one already in progress.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, e := range m.timers {
		m.disarm(e)
		delete(m.timers, id)
	}
	close(m.monitorStop)
	m.logger.Info("background manager closed")
}

// arm starts e's ticker goroutine. Callers hold m.mu.
func (m *Manager) arm(e *timerEntry) {
	stop := make(chan struct{})
	e.stop = stop
	e.pausedAt = time.Time{}
	go m.loop(e, stop)
}

// disarm stops e's ticker goroutine. Callers hold m.mu.
func (m *Manager) disarm(e *timerEntry) {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (m *Manager) loop(e *timerEntry, stop chan struct{}) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.invoke(e)
		}
	}
}

// invoke runs e's callback if the manager still permits it. Runs of the
// same timer never overlap.
func (m *Manager) invoke(e *timerEntry) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	m.mu.Lock()
	ok := !m.closed && m.timers[e.id] == e && e.stop != nil &&
		(!m.backgrounded || e.opts.AllowWhileBackgrounded)
	m.mu.Unlock()
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("timer callback panicked", "id", e.id, "panic", r)
		}
	}()
	e.cb()
}

func (m *Manager) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.monitorStop:
			return
		case <-ticker.C:
			if idle := m.clock().Sub(m.LastActivity()); idle > m.idle {
				m.logger.Info("user inactive", "idle", idle.Round(time.Second))
			}
		}
	}
}
