package page

import (
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Synthetic notifications delivered to a field after restore, in order.
const (
	NotifyInput  = "input"
	NotifyChange = "change"
)

// ApplyScroll moves the window and every container whose selector matches
// a captured offset. It returns the number of targets moved.
func ApplyScroll(d *Document, positions []domain.ScrollOffset) int {
	if len(positions) == 0 {
		return 0
	}
	moved := 0
	var byTarget map[string][]Scrollable

	for _, p := range positions {
		if p.Target == domain.WindowTarget {
			if w := d.Window(); w != nil && guard(func() { w.ScrollTo(p.X, p.Y) }) {
				moved++
			}
			continue
		}
		if byTarget == nil {
			byTarget = make(map[string][]Scrollable)
			for _, s := range d.Scrollables() {
				var sel string
				if guard(func() { sel = ElementSelector(s.Node()) }) && sel != "" {
					byTarget[sel] = append(byTarget[sel], s)
				}
			}
		}
		for _, s := range byTarget[p.Target] {
			if guard(func() { s.ScrollTo(p.X, p.Y) }) {
				moved++
			}
		}
	}
	return moved
}

// ApplyFormFields writes captured values back into matching fields and
// notifies each with input then change. It returns the number of fields
// written.
func ApplyFormFields(d *Document, fields []domain.FormField) int {
	if len(fields) == 0 {
		return 0
	}
	bySelector := make(map[string][]Field)
	for _, f := range d.Fields() {
		var sel string
		if guard(func() { sel = FieldSelector(f.Node()) }) && sel != "" {
			bySelector[sel] = append(bySelector[sel], f)
		}
	}

	written := 0
	for _, ff := range fields {
		for _, f := range bySelector[ff.Selector] {
			ok := guard(func() {
				switch {
				case ff.Kind.IsCheckable():
					f.SetChecked(ff.Checked != nil && *ff.Checked)
				case ff.Kind.IsSelect():
					if ff.SelectedIndex != nil {
						f.SetSelectedIndex(*ff.SelectedIndex)
					}
				default:
					f.SetValue(ff.Value)
				}
				f.Notify(NotifyInput)
				f.Notify(NotifyChange)
			})
			if ok {
				written++
			}
		}
	}
	return written
}

// DispatchOverlays emits one EventRestoreOverlay per state. Overlays
// reopen themselves from the event; the core never toggles them directly.
func DispatchOverlays(d *Document, states []domain.OverlayState) {
	for _, s := range states {
		d.Dispatch(Event{Name: EventRestoreOverlay, Detail: s})
	}
}
