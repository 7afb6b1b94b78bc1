package page

import (
	"strings"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// guard runs fn and reports whether it returned without panicking.
func guard(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn()
	return true
}

// CollectScroll returns the window offset followed by every registered
// scroll container with a non-zero offset.
func CollectScroll(d *Document) []domain.ScrollOffset {
	var out []domain.ScrollOffset

	if w := d.Window(); w != nil {
		var x, y float64
		if guard(func() { x, y = w.ScrollOffset() }) {
			out = append(out, domain.ScrollOffset{X: x, Y: y, Target: domain.WindowTarget})
		}
	}

	for _, s := range d.Scrollables() {
		var entry domain.ScrollOffset
		var keep bool
		guard(func() {
			x, y := s.ScrollOffset()
			if x == 0 && y == 0 {
				return
			}
			sel := ElementSelector(s.Node())
			if sel == "" {
				return
			}
			entry = domain.ScrollOffset{X: x, Y: y, Target: sel}
			keep = true
		})
		if keep {
			out = append(out, entry)
		}
	}
	return out
}

// CollectOverlays returns every registered overlay that is currently
// open, with the named field values and scroll offsets nested under it.
func CollectOverlays(d *Document) []domain.OverlayState {
	var out []domain.OverlayState
	fields := d.Fields()
	scrollables := d.Scrollables()

	for _, o := range d.Overlays() {
		var state domain.OverlayState
		var keep bool
		guard(func() {
			if !o.Visibility().Open() {
				return
			}
			root := o.Node()
			state = domain.OverlayState{
				ID:     overlayID(root),
				IsOpen: true,
				Data:   extractOverlayData(root, fields, scrollables),
			}
			keep = true
		})
		if keep {
			out = append(out, state)
		}
	}
	return out
}

func extractOverlayData(root *Node, fields []Field, scrollables []Scrollable) domain.OverlayData {
	var data domain.OverlayData
	if root == nil {
		return data
	}

	for _, f := range fields {
		guard(func() {
			n := f.Node()
			if n == nil || n == root || !root.Contains(n) {
				return
			}
			if n.Name == "" || f.Kind().IsSecret() {
				return
			}
			v := f.Value()
			if v == "" {
				return
			}
			if data.FormData == nil {
				data.FormData = make(map[string]string)
			}
			data.FormData[n.Name] = v
		})
	}

	for _, s := range scrollables {
		guard(func() {
			n := s.Node()
			if n == nil || n == root || !root.Contains(n) {
				return
			}
			x, y := s.ScrollOffset()
			data.ScrollPositions = append(data.ScrollPositions, domain.ScrollOffset{
				X: x, Y: y, Target: ElementSelector(n),
			})
		})
	}
	return data
}

// overlayID is the node id, then the data-overlay-id attribute, then the
// joined class list, then a generated id.
func overlayID(n *Node) string {
	if n != nil {
		if n.ID != "" {
			return n.ID
		}
		if v := n.Attrs["data-overlay-id"]; v != "" {
			return v
		}
		if len(n.Classes) > 0 {
			return strings.Join(n.Classes, "-")
		}
	}
	return domain.MustGenerateID("overlay-")
}

// CollectFormFields returns every registered field that has a value or is
// checked. Password and hidden fields are never captured.
func CollectFormFields(d *Document) []domain.FormField {
	var out []domain.FormField

	for _, f := range d.Fields() {
		var field domain.FormField
		var keep bool
		guard(func() {
			kind := f.Kind()
			if kind.IsSecret() {
				return
			}
			value, checked := f.Value(), f.Checked()
			if value == "" && !checked {
				return
			}
			sel := FieldSelector(f.Node())
			if sel == "" {
				return
			}
			field = domain.FormField{Selector: sel, Value: value, Kind: kind}
			if kind.IsCheckable() {
				c := checked
				field.Checked = &c
			}
			if kind.IsSelect() {
				idx := f.SelectedIndex()
				field.SelectedIndex = &idx
			}
			keep = true
		})
		if keep {
			out = append(out, field)
		}
	}
	return out
}

// Orientation returns the window orientation, or "" if unknown.
func Orientation(d *Document) domain.Orientation {
	var o domain.Orientation
	if w := d.Window(); w != nil {
		guard(func() { o = w.Orientation() })
	}
	return o
}
