package form

import (
	"fmt"
	"maps"
	"slices"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/model"
)

// renderState is the snapshot a render pass works from. Rendering runs
// outside the engine lock so custom components may call back into it.
type renderState struct {
	values   map[string]any
	errors   map[string]string
	revealed map[string]bool
	previews map[string]string
}

// Render produces the visible field tree with values and inline errors.
// Hidden leaves are omitted; their values stay in form state.
func (e *Engine) Render() (model.FormView, error) {
	e.mu.Lock()
	st := renderState{
		values:   maps.Clone(e.values),
		errors:   maps.Clone(e.errors),
		revealed: maps.Clone(e.revealed),
		previews: maps.Clone(e.previews),
	}
	editing := e.editingLocked()
	e.mu.Unlock()

	nodes, err := e.renderNodes(e.tree.roots, st)
	if err != nil {
		return model.FormView{}, err
	}
	view := model.FormView{
		Status:  e.Status(),
		Editing: editing,
		Nodes:   nodes,
	}
	if len(st.errors) > 0 {
		view.Errors = st.errors
	}
	return view, nil
}

func (e *Engine) renderNodes(ids []int, st renderState) ([]model.FieldNode, error) {
	out := make([]model.FieldNode, 0, len(ids))
	for _, id := range ids {
		n := e.tree.nodes[id]
		if !n.field.Kind.IsGroup() && !n.field.visible(st.values) {
			continue
		}
		fn, err := e.renderNode(n, st)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, nil
}

func (e *Engine) renderNode(n node, st renderState) (model.FieldNode, error) {
	f := n.field
	fn := model.FieldNode{
		Kind:        f.Kind.String(),
		Name:        f.Name,
		Label:       f.Label,
		Icon:        f.Icon,
		Placeholder: f.Placeholder,
	}
	if f.Kind.HasValue() {
		fn.Error = st.errors[f.Name]
	}
	value := st.values[f.Name]

	switch f.Kind {
	case KindText, KindEmail, KindNumber, KindTextarea:
		fn.InputType = f.Kind.String()
		fn.Value = value
	case KindPassword:
		fn.InputType = "password"
		fn.Revealable = true
		if st.revealed[f.Name] {
			fn.InputType = "text"
			fn.Revealed = true
		}
		fn.Value = value
	case KindSelect:
		placeholder := f.Placeholder
		if placeholder == "" {
			placeholder = "Select " + f.Label
		}
		fn.Options = append(fn.Options, model.OptionDescriptor{Label: placeholder, Value: "", Disabled: true})
		for _, o := range f.Options {
			fn.Options = append(fn.Options, model.OptionDescriptor{Label: o.Label, Value: o.Value})
		}
		fn.Value = accessor.String(value)
	case KindCheckboxGroup:
		selected := stringList(value)
		for _, o := range f.Options {
			fn.Options = append(fn.Options, model.OptionDescriptor{
				Label:   o.Label,
				Value:   o.Value,
				Checked: slices.Contains(selected, o.Value),
			})
		}
		fn.Value = selected
	case KindFile:
		switch v := value.(type) {
		case *FileValue:
			fn.Value = v.Name
			fn.Preview = st.previews[f.Name]
		case string:
			// An existing record stores the file's URL.
			fn.Preview = v
		}
	case KindCustom:
		el, err := f.Component.Render(ComponentProps{
			Name:  f.Name,
			Value: value,
			OnChange: func(v any) error {
				return e.SetValue(f.Name, v)
			},
			Error: st.errors[f.Name],
			Props: maps.Clone(f.Props),
		})
		if err != nil {
			return model.FieldNode{}, fmt.Errorf("form: rendering custom field %q: %w", f.Name, err)
		}
		fn.Value = value
		fn.Element = el
	case KindDivider:
	case KindSection, KindRow, KindColumn:
		fn.Title = f.Title
		fn.Columns = f.Columns
		children, err := e.renderNodes(n.children, st)
		if err != nil {
			return model.FieldNode{}, err
		}
		fn.Children = children
	default:
		return model.FieldNode{}, fmt.Errorf("%w: unhandled kind %s", ErrInvalidField, f.Kind)
	}
	return fn, nil
}
