package page

import (
	"testing"
)

func TestDocument_Register(t *testing.T) {
	doc := NewDocument(NewViewport(""), nil)
	el := NewElement(NewRoot().Append(NewNode("div")))

	unScroll := doc.RegisterScrollable(el)
	unField := doc.RegisterField(el)
	unOverlay := doc.RegisterOverlay(el)

	if len(doc.Scrollables()) != 1 || len(doc.Fields()) != 1 || len(doc.Overlays()) != 1 {
		t.Fatal("expected one participant of each kind")
	}

	unScroll()
	unField()
	unOverlay()
	if len(doc.Scrollables())+len(doc.Fields())+len(doc.Overlays()) != 0 {
		t.Error("unregister should remove participants")
	}
}

func TestDocument_Dispatch(t *testing.T) {
	doc := NewDocument(nil, nil)

	var got []string
	doc.On("x", func(ev Event) { got = append(got, "first") })
	doc.On("x", func(ev Event) { panic("boom") })
	doc.On("x", func(ev Event) { got = append(got, ev.Detail.(string)) })
	doc.On("y", func(ev Event) { got = append(got, "wrong") })

	doc.Dispatch(Event{Name: "x", Detail: "third"})

	if len(got) != 2 || got[0] != "first" || got[1] != "third" {
		t.Errorf("listeners ran as %v", got)
	}
}

func TestVisibility_Open(t *testing.T) {
	tests := []struct {
		name string
		v    Visibility
		want bool
	}{
		{"shown", Shown, true},
		{"zero value", Visibility{}, true},
		{"display none", Visibility{Display: "none"}, false},
		{"visibility hidden", Visibility{Visibility: "hidden"}, false},
		{"opacity zero", Visibility{Opacity: " 0 "}, false},
		{"hidden attr", Visibility{Hidden: true}, false},
		{"aria hidden", Visibility{AriaHidden: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Open(); got != tt.want {
				t.Errorf("Open() = %v, want %v", got, tt.want)
			}
		})
	}
}
