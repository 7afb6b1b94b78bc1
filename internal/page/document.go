package page

import (
	"log/slog"
	"slices"
	"sync"
)

// Event names dispatched on a Document.
const (
	// EventRestoreOverlay carries a domain.OverlayState for the overlay's
	// owner to reopen itself.
	EventRestoreOverlay = "restoreOverlayState"

	// EventStateRestored carries the applied *domain.Snapshot.
	EventStateRestored = "stateRestored"
)

// Event is a document-level notification.
type Event struct {
	Name   string
	Detail any
}

// Document is the registry of participants on one page.
type Document struct {
	mu          sync.RWMutex
	window      Window
	scrollables []Scrollable
	overlays    []Overlay
	fields      []Field
	listeners   map[string][]func(Event)
	logger      *slog.Logger
}

// NewDocument creates an empty document over window.
func NewDocument(window Window, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		window:    window,
		listeners: make(map[string][]func(Event)),
		logger:    logger,
	}
}

// Window returns the page viewport.
func (d *Document) Window() Window {
	return d.window
}

// RegisterScrollable declares a scroll container. The returned function
// removes it again.
func (d *Document) RegisterScrollable(s Scrollable) func() {
	d.mu.Lock()
	d.scrollables = append(d.scrollables, s)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.scrollables = removeOne(d.scrollables, s)
		d.mu.Unlock()
	}
}

// RegisterOverlay declares an overlay.
func (d *Document) RegisterOverlay(o Overlay) func() {
	d.mu.Lock()
	d.overlays = append(d.overlays, o)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.overlays = removeOne(d.overlays, o)
		d.mu.Unlock()
	}
}

// RegisterField declares a form field.
func (d *Document) RegisterField(f Field) func() {
	d.mu.Lock()
	d.fields = append(d.fields, f)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.fields = removeOne(d.fields, f)
		d.mu.Unlock()
	}
}

// Scrollables returns the registered scroll containers.
func (d *Document) Scrollables() []Scrollable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Scrollable(nil), d.scrollables...)
}

// Overlays returns the registered overlays.
func (d *Document) Overlays() []Overlay {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Overlay(nil), d.overlays...)
}

// Fields returns the registered form fields.
func (d *Document) Fields() []Field {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Field(nil), d.fields...)
}

// On subscribes fn to events named name.
func (d *Document) On(name string, fn func(Event)) {
	d.mu.Lock()
	d.listeners[name] = append(d.listeners[name], fn)
	d.mu.Unlock()
}

// Dispatch delivers ev to every subscriber in order. A panicking
// subscriber is logged and skipped.
func (d *Document) Dispatch(ev Event) {
	d.mu.RLock()
	fns := slices.Clone(d.listeners[ev.Name])
	d.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("document listener panicked", "event", ev.Name, "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}

func removeOne[T comparable](list []T, v T) []T {
	for i, x := range list {
		if x == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
