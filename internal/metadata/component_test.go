package metadata

import (
	"slices"
	"testing"

	"github.com/pitabwire/dealerdesk/internal/form"
)

func TestComponentRegistry_builtins(t *testing.T) {
	r := NewComponentRegistry()
	if got := r.Names(); !slices.Equal(got, []string{ComponentColorSwatch, ComponentStatusPill}) {
		t.Errorf("Names = %v", got)
	}
	r.Register("rating", form.ComponentFunc(statusPill))
	if _, ok := r.Get("rating"); !ok {
		t.Error("registered component not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unknown component found")
	}
}

func TestStatusPill(t *testing.T) {
	el, err := statusPill(form.ComponentProps{
		Name:  "status",
		Value: "suspended",
		Props: map[string]any{
			"labels": map[string]any{"suspended": "On hold"},
			"tones":  map[string]any{"suspended": "danger"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if el.Text != "On hold" || el.Attrs["class"] != "status-pill status-pill--danger" {
		t.Errorf("element = %+v", el)
	}

	el, _ = statusPill(form.ComponentProps{Name: "status", Value: "pending_review", Error: "Required"})
	if el.Text != "Pending review" || el.Attrs["class"] != "status-pill status-pill--neutral" {
		t.Errorf("fallback element = %+v", el)
	}
	if el.Attrs["aria-invalid"] != "true" || el.Attrs["title"] != "Required" {
		t.Errorf("error attrs = %v", el.Attrs)
	}
}

func TestColorSwatch(t *testing.T) {
	el, err := colorSwatch(form.ComponentProps{
		Name:  "brand_color",
		Value: "#1976d2",
		Props: map[string]any{"swatches": []any{"#d32f2f", "#1976D2"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(el.Children) != 3 {
		t.Fatalf("children = %d, want chip, input, palette", len(el.Children))
	}
	if el.Children[0].Attrs["style"] != "background-color: #1976d2" {
		t.Errorf("chip = %+v", el.Children[0])
	}
	palette := el.Children[2].Children
	if len(palette) != 2 || palette[1].Attrs["aria-pressed"] != "true" || palette[0].Attrs["aria-pressed"] != "" {
		t.Errorf("palette = %+v", palette)
	}
}

func TestColorSwatch_invalidValues(t *testing.T) {
	el, err := colorSwatch(form.ComponentProps{Name: "c", Value: "red"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := el.Children[0].Attrs["style"]; ok {
		t.Error("non-hex value should not style the chip")
	}

	if _, err := colorSwatch(form.ComponentProps{Name: "c", Props: map[string]any{"swatches": []any{"blue"}}}); err == nil {
		t.Error("invalid swatch should be an error")
	}
}
