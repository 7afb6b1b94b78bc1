package domain

import (
	"encoding/json"
	"net/url"
	"time"
)

// WindowTarget is the scroll target of the top-level viewport.
const WindowTarget = "window"

// Orientation of the viewport at capture time.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Snapshot is a captured bundle of restorable interaction state.
//
// A Snapshot is immutable once written; a newer write under the same
// logical key supersedes it.
type Snapshot struct {
	LocationURI     string          `json:"location_uri"`
	ScrollPositions []ScrollOffset  `json:"scroll_position"`
	Orientation     Orientation     `json:"orientation,omitempty"`
	CapturedAt      int64           `json:"captured_at"`
	ApplicationData ApplicationData `json:"application_data"`
	FormFields      []FormField     `json:"form_fields,omitempty"`
	Overlays        []OverlayState  `json:"overlay_states,omitempty"`
}

// ScrollOffset is the scroll position of one target.
type ScrollOffset struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Target string  `json:"target"`
}

// ApplicationData holds route information and path-insensitive UI flags.
type ApplicationData struct {
	Route      Route                `json:"route"`
	ActiveTabs map[string]ActiveTab `json:"active_tabs,omitempty"`
	UI         map[string]bool      `json:"ui,omitempty"`
}

// Route is the navigation location split into its parts.
type Route struct {
	Path     string `json:"path"`
	Query    string `json:"query,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

// String joins the route back into a relative URI.
func (r Route) String() string {
	s := r.Path
	if r.Query != "" {
		s += "?" + r.Query
	}
	if r.Fragment != "" {
		s += "#" + r.Fragment
	}
	return s
}

// ActiveTab records the selected tab of a view.
type ActiveTab struct {
	Tab string `json:"tab"`
	At  int64  `json:"at"`
}

// FieldKind is the input type of a form field.
type FieldKind string

const (
	FieldText           FieldKind = "text"
	FieldTextArea       FieldKind = "textarea"
	FieldCheckbox       FieldKind = "checkbox"
	FieldRadio          FieldKind = "radio"
	FieldSelectOne      FieldKind = "select-one"
	FieldSelectMultiple FieldKind = "select-multiple"
	FieldPassword       FieldKind = "password"
	FieldHidden         FieldKind = "hidden"
)

// IsSecret reports whether values of this kind must never be captured.
func (k FieldKind) IsSecret() bool {
	return k == FieldPassword || k == FieldHidden
}

// IsCheckable reports whether the field restores through its checked state.
func (k FieldKind) IsCheckable() bool {
	return k == FieldCheckbox || k == FieldRadio
}

// IsSelect reports whether the field restores through its selected index.
func (k FieldKind) IsSelect() bool {
	return k == FieldSelectOne || k == FieldSelectMultiple
}

// FormField is the captured value of one input-capable element.
type FormField struct {
	Selector      string    `json:"selector"`
	Value         string    `json:"value"`
	Kind          FieldKind `json:"kind"`
	Checked       *bool     `json:"checked,omitempty"`
	SelectedIndex *int      `json:"selected_index,omitempty"`
}

// OverlayState is the captured state of a modal-like participant.
type OverlayState struct {
	ID     string      `json:"id"`
	IsOpen bool        `json:"is_open"`
	Data   OverlayData `json:"data"`
}

// OverlayData is the state extracted from inside an overlay.
type OverlayData struct {
	FormData        map[string]string `json:"form_data,omitempty"`
	ScrollPositions []ScrollOffset    `json:"scroll_positions,omitempty"`
}

// CapturedTime returns CapturedAt as a time.Time.
func (s *Snapshot) CapturedTime() time.Time {
	return time.UnixMilli(s.CapturedAt)
}

// Age returns how long ago the snapshot was captured, relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedTime())
}

// Path returns the path component of LocationURI.
// An unparseable URI yields the empty string.
func (s *Snapshot) Path() string {
	return PathOf(s.LocationURI)
}

// WindowScroll returns the window scroll entry, if captured.
func (s *Snapshot) WindowScroll() (ScrollOffset, bool) {
	for _, p := range s.ScrollPositions {
		if p.Target == WindowTarget {
			return p, true
		}
	}
	return ScrollOffset{}, false
}

// Validate checks the fields every backend relies on.
func (s *Snapshot) Validate() error {
	if s.LocationURI == "" {
		return ErrSnapshotInvalid.WithDetails("location_uri is required")
	}
	if s.CapturedAt <= 0 {
		return ErrSnapshotInvalid.WithDetails("captured_at is required")
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		c := *s
		return &c
	}
	var c Snapshot
	if err := json.Unmarshal(data, &c); err != nil {
		c = *s
	}
	return &c
}

// EncodeSnapshot serializes a snapshot to its wire form.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses the wire form of a snapshot.
// An empty object decodes to nil with no error.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, ErrSnapshotInvalid.WithCause(err)
	}
	if s.LocationURI == "" && s.CapturedAt == 0 {
		return nil, nil
	}
	return &s, nil
}

// PathOf extracts the path of a URI.
func PathOf(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if u.Path == "" && u.Host != "" {
		return "/"
	}
	return u.Path
}
