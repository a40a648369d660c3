package metadata

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/internal/form"
	"github.com/pitabwire/dealerdesk/model"
)

// Built-in component names.
const (
	ComponentStatusPill  = "status-pill"
	ComponentColorSwatch = "color-swatch"
)

// ComponentRegistry maps component names used by custom fields to their
// implementations.
type ComponentRegistry struct {
	mu         sync.RWMutex
	components map[string]form.Component
}

// NewComponentRegistry creates a registry holding the built-in components.
func NewComponentRegistry() *ComponentRegistry {
	r := &ComponentRegistry{components: make(map[string]form.Component)}
	r.Register(ComponentStatusPill, form.ComponentFunc(statusPill))
	r.Register(ComponentColorSwatch, form.ComponentFunc(colorSwatch))
	return r
}

// Register adds or replaces a component.
func (r *ComponentRegistry) Register(name string, c form.Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = c
}

// Get returns the component called name.
func (r *ComponentRegistry) Get(name string) (form.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Names returns the registered component names, sorted.
func (r *ComponentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// statusPill renders the value as a labelled pill. props.labels maps values
// to display labels; props.tones maps values to a tone class suffix.
func statusPill(p form.ComponentProps) (*model.Element, error) {
	value := accessor.String(p.Value)
	label := accessor.String(accessor.Get(p.Props, "labels."+value))
	if label == "" {
		label = humanize(value)
	}
	tone := accessor.String(accessor.Get(p.Props, "tones."+value))
	if tone == "" {
		tone = "neutral"
	}

	el := &model.Element{
		Tag: "span",
		Attrs: map[string]string{
			"class":      "status-pill status-pill--" + tone,
			"data-name":  p.Name,
			"data-value": value,
		},
		Text: label,
	}
	if p.Error != "" {
		el.Attrs["aria-invalid"] = "true"
		el.Attrs["title"] = p.Error
	}
	return el, nil
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// colorSwatch renders a colour picker with a preview chip and an optional
// palette from props.swatches. Values that are not hex colours render an
// empty chip.
func colorSwatch(p form.ComponentProps) (*model.Element, error) {
	value := strings.TrimSpace(accessor.String(p.Value))

	chip := model.Element{Tag: "span", Attrs: map[string]string{"class": "color-swatch__chip"}}
	if hexColor.MatchString(value) {
		chip.Attrs["style"] = "background-color: " + value
	}
	input := model.Element{Tag: "input", Attrs: map[string]string{
		"type":  "color",
		"name":  p.Name,
		"value": value,
	}}

	el := &model.Element{
		Tag:      "div",
		Attrs:    map[string]string{"class": "color-swatch"},
		Children: []model.Element{chip, input},
	}

	if palette, ok := p.Props["swatches"].([]any); ok {
		list := model.Element{Tag: "div", Attrs: map[string]string{"class": "color-swatch__palette"}}
		for _, c := range palette {
			color := accessor.String(c)
			if !hexColor.MatchString(color) {
				return nil, fmt.Errorf("color-swatch %q: invalid swatch colour %q", p.Name, color)
			}
			attrs := map[string]string{
				"class":      "color-swatch__option",
				"data-value": color,
				"style":      "background-color: " + color,
			}
			if strings.EqualFold(color, value) {
				attrs["aria-pressed"] = "true"
			}
			list.Children = append(list.Children, model.Element{Tag: "button", Attrs: attrs})
		}
		el.Children = append(el.Children, list)
	}

	if p.Error != "" {
		el.Attrs["aria-invalid"] = "true"
		el.Children = append(el.Children, model.Element{
			Tag:   "p",
			Attrs: map[string]string{"class": "color-swatch__error"},
			Text:  p.Error,
		})
	}
	return el, nil
}

// humanize turns "pending_review" into "Pending review".
func humanize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
