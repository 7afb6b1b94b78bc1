package page

import (
	"strings"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Participant is anything registered in a Document.
type Participant interface {
	Node() *Node
}

// Scrollable is a participant with its own scroll offset.
type Scrollable interface {
	Participant
	ScrollOffset() (x, y float64)
	ScrollTo(x, y float64)
}

// Overlay is a modal-like participant that can be open or closed.
// Fields and scroll containers nested under its Node belong to it.
type Overlay interface {
	Participant
	Visibility() Visibility
}

// Field is an input-capable participant.
type Field interface {
	Participant
	Kind() domain.FieldKind
	Value() string
	Checked() bool
	SelectedIndex() int
	SetValue(v string)
	SetChecked(v bool)
	SetSelectedIndex(i int)
	// Notify delivers a synthetic "input" or "change" notification so
	// bound UI state picks up a programmatic change.
	Notify(event string)
}

// Window is the top-level viewport of the page.
type Window interface {
	ScrollOffset() (x, y float64)
	ScrollTo(x, y float64)
	Orientation() domain.Orientation
}

// Visibility is the computed visibility state of an overlay.
type Visibility struct {
	Display    string
	Visibility string
	Opacity    string
	Hidden     bool
	AriaHidden bool
}

// Shown is the visibility of an ordinary open overlay.
var Shown = Visibility{Display: "block", Visibility: "visible", Opacity: "1"}

// Open reports whether every visibility signal says the overlay is shown.
func (v Visibility) Open() bool {
	return v.Display != "none" &&
		v.Visibility != "hidden" &&
		strings.TrimSpace(v.Opacity) != "0" &&
		!v.Hidden &&
		!v.AriaHidden
}
