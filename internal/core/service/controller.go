package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/yndnr/shellkeep-go/internal/background"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/page"
	"github.com/yndnr/shellkeep-go/internal/statestore"
)

// AutosaveTimerID is the background timer that saves state periodically.
const AutosaveTimerID = "state-autosave"

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRestoring
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRestoring:
		return "restoring"
	case StateSaving:
		return "saving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scheduler registers periodic work. *background.Manager implements it.
type Scheduler interface {
	AddTimer(id string, cb func(), interval time.Duration, opts background.TimerOptions) error
	RemoveTimer(id string)
}

// ControllerConfig wires a Controller to its collaborators.
type ControllerConfig struct {
	// Backends are queried in order on restore and written in parallel on
	// save.
	Backends  []statestore.Backend
	Document  *page.Document
	Navigator Navigator
	// AppState is optional.
	AppState AppState
	// Timers is optional; without it there is no autosave.
	Timers           Scheduler
	AutosaveInterval time.Duration
	// RestoreRoute replaces the current location with the saved route when
	// their paths differ.
	RestoreRoute bool
	// CrossPathOverlays dispatches overlay restore events even when the
	// saved path differs from the current one.
	CrossPathOverlays bool
	// ExpireAfter is passed to every Expirer backend at construction.
	ExpireAfter time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

// SaveReport is the outcome of one save.
type SaveReport struct {
	// Skipped is set when another save was already in flight.
	Skipped bool
	// Results holds one entry per backend; nil means success.
	Results map[string]error
}

// Err joins every backend failure.
func (r SaveReport) Err() error {
	var errs []error
	for name, err := range r.Results {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Controller saves page state on suspension and restores it on startup
// and resume.
type Controller struct {
	cfg    ControllerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	applied  map[int64]bool
	restored chan struct{}
	// pass is closed when the current restore pass finishes.
	pass chan struct{}
}

// NewController starts the initial restore pass in the background and
// returns immediately. Restored reports when that pass has finished.
func NewController(ctx context.Context, cfg ControllerConfig) (*Controller, error) {
	if cfg.Navigator == nil {
		return nil, fmt.Errorf("controller: navigator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 30 * time.Second
	}

	c := &Controller{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "state-controller"),
		state:    StateRestoring,
		applied:  make(map[int64]bool),
		restored: make(chan struct{}),
		pass:     make(chan struct{}),
	}

	c.clearExpired(ctx)

	if cfg.Timers != nil {
		err := cfg.Timers.AddTimer(AutosaveTimerID, c.autosave, cfg.AutosaveInterval,
			background.TimerOptions{SkipInitialRun: true})
		if err != nil {
			return nil, fmt.Errorf("controller: register autosave: %w", err)
		}
	}

	go func() {
		defer close(c.restored)
		c.restorePass(ctx, c.pass)
	}()
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restored is closed once the initial restore pass has finished, whether
// or not anything was applied.
func (c *Controller) Restored() <-chan struct{} {
	return c.restored
}

// WaitRestored blocks until the initial restore pass finishes or ctx ends.
func (c *Controller) WaitRestored(ctx context.Context) error {
	select {
	case <-c.restored:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnSuspend saves the current state to every backend.
func (c *Controller) OnSuspend(ctx context.Context) (SaveReport, error) {
	return c.save(ctx, "suspend")
}

// OnResume runs a new restore pass. It returns false when a restore or
// save was already running and nothing was done.
func (c *Controller) OnResume(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	c.state = StateRestoring
	done := make(chan struct{})
	c.pass = done
	c.mu.Unlock()

	c.restorePass(ctx, done)
	return true
}

// Close stops the autosave timer.
func (c *Controller) Close() {
	if c.cfg.Timers != nil {
		c.cfg.Timers.RemoveTimer(AutosaveTimerID)
	}
}

// Snapshot collects the current state without saving it.
func (c *Controller) Snapshot() *domain.Snapshot {
	uri := c.cfg.Navigator.CurrentURI()
	s := &domain.Snapshot{
		LocationURI: uri,
		CapturedAt:  c.cfg.Clock().UnixMilli(),
		ApplicationData: domain.ApplicationData{
			Route: routeOf(uri),
		},
	}
	if doc := c.cfg.Document; doc != nil {
		s.ScrollPositions = page.CollectScroll(doc)
		s.Orientation = page.Orientation(doc)
		s.FormFields = page.CollectFormFields(doc)
		s.Overlays = page.CollectOverlays(doc)
	}
	if len(s.ScrollPositions) == 0 {
		s.ScrollPositions = []domain.ScrollOffset{{Target: domain.WindowTarget}}
	}
	if app := c.cfg.AppState; app != nil {
		if tabs := app.ActiveTabs(); len(tabs) > 0 {
			s.ApplicationData.ActiveTabs = tabs
		}
		if flags := app.UIFlags(); len(flags) > 0 {
			s.ApplicationData.UI = flags
		}
	}
	return s
}

func (c *Controller) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.save(ctx, "autosave"); err != nil {
		c.logger.Debug("autosave skipped", "error", err)
	}
}

func (c *Controller) save(ctx context.Context, reason string) (SaveReport, error) {
	if err := c.waitPass(ctx); err != nil {
		return SaveReport{}, err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return SaveReport{Skipped: true}, nil
	}
	c.state = StateSaving
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	snap := c.Snapshot()
	report := SaveReport{Results: make(map[string]error, len(c.cfg.Backends))}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, b := range c.cfg.Backends {
		wg.Add(1)
		go func(b statestore.Backend) {
			defer wg.Done()
			err := b.Save(ctx, snap.Clone())
			mu.Lock()
			report.Results[b.Name()] = err
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	if err := report.Err(); err != nil {
		c.logger.Warn("state save incomplete", "reason", reason, "error", err)
	} else {
		c.logger.Debug("state saved", "reason", reason, "backends", len(report.Results))
	}
	return report, nil
}

// waitPass blocks while a restore pass is running.
func (c *Controller) waitPass(ctx context.Context) error {
	c.mu.Lock()
	pass := c.pass
	c.mu.Unlock()
	select {
	case <-pass:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) restorePass(ctx context.Context, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("restore pass panicked", "panic", r)
		}
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		close(done)
	}()

	cur := RestoreContext{URI: c.cfg.Navigator.CurrentURI(), Now: c.cfg.Clock()}
	if doc := c.cfg.Document; doc != nil {
		cur.Orientation = page.Orientation(doc)
	}

	for _, b := range c.cfg.Backends {
		if ctx.Err() != nil {
			return
		}
		s, err := b.Restore(ctx)
		if err != nil {
			c.logger.Warn("backend restore failed", "backend", b.Name(), "error", err)
			continue
		}
		if !ShouldRestore(s, cur) {
			continue
		}

		c.mu.Lock()
		seen := c.applied[s.CapturedAt]
		c.applied[s.CapturedAt] = true
		c.mu.Unlock()
		if seen {
			c.logger.Debug("snapshot already applied", "backend", b.Name(), "captured_at", s.CapturedAt)
			return
		}

		c.apply(s, cur)
		c.logger.Info("state restored", "backend", b.Name(), "age", s.Age(cur.Now).Round(time.Second),
			"orientation_changed", OrientationChanged(s, cur))
		return
	}
}

func (c *Controller) apply(s *domain.Snapshot, cur RestoreContext) {
	currentURI := cur.URI

	if c.cfg.RestoreRoute {
		route := s.ApplicationData.Route
		if route.Path == "" {
			route = routeOf(s.LocationURI)
		}
		if route.Path != "" && route.Path != domain.PathOf(currentURI) {
			if err := c.cfg.Navigator.Replace(route.String()); err != nil {
				c.logger.Warn("route restore failed", "route", route.String(), "error", err)
			} else {
				currentURI = c.cfg.Navigator.CurrentURI()
			}
		}
	}

	pathMatch := PathMatches(s.LocationURI, currentURI)

	if doc := c.cfg.Document; doc != nil {
		if pathMatch {
			page.ApplyScroll(doc, s.ScrollPositions)
			page.ApplyFormFields(doc, s.FormFields)
		}
		if pathMatch || c.cfg.CrossPathOverlays {
			page.DispatchOverlays(doc, s.Overlays)
		}
	}

	if app := c.cfg.AppState; app != nil {
		path := domain.PathOf(currentURI)
		if tab, ok := s.ApplicationData.ActiveTabs[path]; ok && tab.Tab != "" {
			app.SetActiveTab(path, tab.Tab)
		}
		if len(s.ApplicationData.UI) > 0 {
			app.SetUIFlags(s.ApplicationData.UI)
		}
	}

	if doc := c.cfg.Document; doc != nil {
		doc.Dispatch(page.Event{Name: page.EventStateRestored, Detail: s})
	}
}

func (c *Controller) clearExpired(ctx context.Context) {
	for _, b := range c.cfg.Backends {
		exp, ok := b.(statestore.Expirer)
		if !ok {
			continue
		}
		if err := exp.ClearExpired(ctx, c.cfg.ExpireAfter); err != nil {
			c.logger.Warn("clear expired state failed", "backend", b.Name(), "error", err)
		}
	}
}

func routeOf(uri string) domain.Route {
	u, err := url.Parse(uri)
	if err != nil {
		return domain.Route{}
	}
	path := u.Path
	if path == "" && u.Host != "" {
		path = "/"
	}
	return domain.Route{Path: path, Query: u.RawQuery, Fragment: u.Fragment}
}
