package service

import (
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Navigator is the host's routing layer.
type Navigator interface {
	// CurrentURI returns the full URI of the current location.
	CurrentURI() string
	// Replace swaps the current location without adding history.
	Replace(uri string) error
}

// AppState receives the path-insensitive application state of a snapshot.
type AppState interface {
	ActiveTabs() map[string]domain.ActiveTab
	SetActiveTab(path, tab string)
	UIFlags() map[string]bool
	SetUIFlags(flags map[string]bool)
}

// MemoryNavigator is a Navigator over a single in-memory URI.
type MemoryNavigator struct {
	mu        sync.Mutex
	uri       *url.URL
	listeners []func(uri string)
}

// NewMemoryNavigator starts at base, which must be an absolute URI.
func NewMemoryNavigator(base string) (*MemoryNavigator, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return &MemoryNavigator{uri: u}, nil
}

func (n *MemoryNavigator) CurrentURI() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.uri.String()
}

// Replace resolves ref against the current URI.
func (n *MemoryNavigator) Replace(ref string) error {
	return n.Navigate(ref)
}

// Navigate moves to ref and notifies route listeners.
func (n *MemoryNavigator) Navigate(ref string) error {
	r, err := url.Parse(ref)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.uri = n.uri.ResolveReference(r)
	uri := n.uri.String()
	fns := slices.Clone(n.listeners)
	n.mu.Unlock()

	for _, fn := range fns {
		fn(uri)
	}
	return nil
}

// OnChange subscribes fn to route changes.
func (n *MemoryNavigator) OnChange(fn func(uri string)) {
	n.mu.Lock()
	n.listeners = append(n.listeners, fn)
	n.mu.Unlock()
}

// MemoryAppState is an in-memory AppState.
type MemoryAppState struct {
	mu    sync.Mutex
	tabs  map[string]domain.ActiveTab
	flags map[string]bool
	clock func() time.Time
}

// NewMemoryAppState creates an empty AppState.
func NewMemoryAppState() *MemoryAppState {
	return &MemoryAppState{
		tabs:  make(map[string]domain.ActiveTab),
		flags: make(map[string]bool),
		clock: time.Now,
	}
}

func (a *MemoryAppState) ActiveTabs() map[string]domain.ActiveTab {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]domain.ActiveTab, len(a.tabs))
	for k, v := range a.tabs {
		out[k] = v
	}
	return out
}

// ActiveTab returns the tab selected for path.
func (a *MemoryAppState) ActiveTab(path string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tabs[path]
	return t.Tab, ok
}

func (a *MemoryAppState) SetActiveTab(path, tab string) {
	a.mu.Lock()
	a.tabs[path] = domain.ActiveTab{Tab: tab, At: a.clock().UnixMilli()}
	a.mu.Unlock()
}

func (a *MemoryAppState) UIFlags() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]bool, len(a.flags))
	for k, v := range a.flags {
		out[k] = v
	}
	return out
}

func (a *MemoryAppState) SetUIFlags(flags map[string]bool) {
	a.mu.Lock()
	for k, v := range flags {
		a.flags[k] = v
	}
	a.mu.Unlock()
}
