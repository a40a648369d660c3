package form

import "github.com/pitabwire/dealerdesk/model"

// ComponentProps is what a custom field component receives.
type ComponentProps struct {
	Name  string
	Value any
	// OnChange writes a new value for the field back into form state.
	OnChange func(v any) error
	Error    string
	Props    map[string]any
}

// Component renders a custom field. The engine depends on nothing else about
// it.
type Component interface {
	Render(p ComponentProps) (*model.Element, error)
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(p ComponentProps) (*model.Element, error)

// Render calls f.
func (f ComponentFunc) Render(p ComponentProps) (*model.Element, error) {
	return f(p)
}
