package page

import (
	"sync"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Element is an in-memory participant implementing every capability.
// Hosts without a real UI toolkit, and tests, build pages from Elements.
type Element struct {
	node *Node

	mu            sync.Mutex
	kind          domain.FieldKind
	value         string
	checked       bool
	selectedIndex int
	x, y          float64
	vis           Visibility
	events        []string
	onNotify      func(event string)
}

// NewElement wraps node as a participant. Fields default to text kind.
func NewElement(node *Node) *Element {
	return &Element{node: node, kind: domain.FieldText, selectedIndex: -1, vis: Shown}
}

// NewField creates a field element of the given kind.
func NewField(node *Node, kind domain.FieldKind) *Element {
	e := NewElement(node)
	e.kind = kind
	return e
}

func (e *Element) Node() *Node { return e.node }

func (e *Element) Kind() domain.FieldKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind
}

func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Element) Checked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checked
}

func (e *Element) SelectedIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedIndex
}

func (e *Element) SetValue(v string) {
	e.mu.Lock()
	e.value = v
	e.mu.Unlock()
}

func (e *Element) SetChecked(v bool) {
	e.mu.Lock()
	e.checked = v
	e.mu.Unlock()
}

func (e *Element) SetSelectedIndex(i int) {
	e.mu.Lock()
	e.selectedIndex = i
	e.mu.Unlock()
}

// OnNotify installs a hook called for every Notify.
func (e *Element) OnNotify(fn func(event string)) {
	e.mu.Lock()
	e.onNotify = fn
	e.mu.Unlock()
}

func (e *Element) Notify(event string) {
	e.mu.Lock()
	e.events = append(e.events, event)
	fn := e.onNotify
	e.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

// Notifications returns the events delivered through Notify so far.
func (e *Element) Notifications() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *Element) ScrollOffset() (float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.x, e.y
}

func (e *Element) ScrollTo(x, y float64) {
	e.mu.Lock()
	e.x, e.y = x, y
	e.mu.Unlock()
}

func (e *Element) Visibility() Visibility {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vis
}

// SetVisibility replaces the computed visibility.
func (e *Element) SetVisibility(v Visibility) {
	e.mu.Lock()
	e.vis = v
	e.mu.Unlock()
}

// Viewport is an in-memory Window.
type Viewport struct {
	mu          sync.Mutex
	x, y        float64
	orientation domain.Orientation
}

// NewViewport creates a viewport at the origin.
func NewViewport(o domain.Orientation) *Viewport {
	return &Viewport{orientation: o}
}

func (v *Viewport) ScrollOffset() (float64, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.x, v.y
}

func (v *Viewport) ScrollTo(x, y float64) {
	v.mu.Lock()
	v.x, v.y = x, y
	v.mu.Unlock()
}

func (v *Viewport) Orientation() domain.Orientation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.orientation
}

// SetOrientation changes the reported orientation.
func (v *Viewport) SetOrientation(o domain.Orientation) {
	v.mu.Lock()
	v.orientation = o
	v.mu.Unlock()
}
