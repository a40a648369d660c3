package form

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// ErrInvalidField is returned when a field node cannot be rendered.
var ErrInvalidField = errors.New("form: invalid field")

// node is one field in the arena. Nodes are addressed by their positional
// path ("0", "0.2", "0.2.1") so rebuilding the tree from equal specs yields
// equal addresses.
type node struct {
	path     string
	field    Field
	children []int
}

// tree is the arena-backed field tree.
type tree struct {
	nodes  []node
	roots  []int
	leaves []int
	byName map[string]int
}

func buildTree(fields []Field, logger *zap.Logger) (*tree, error) {
	t := &tree{byName: make(map[string]int)}
	roots, err := t.add(fields, "", logger)
	if err != nil {
		return nil, err
	}
	t.roots = roots
	return t, nil
}

func (t *tree) add(fields []Field, prefix string, logger *zap.Logger) ([]int, error) {
	ids := make([]int, 0, len(fields))
	for i, f := range fields {
		path := strconv.Itoa(i)
		if prefix != "" {
			path = prefix + "." + path
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("%w: node %s has unknown kind %d", ErrInvalidField, path, int(f.Kind))
		}

		switch {
		case f.Kind.IsGroup():
			if f.Kind == KindRow && (f.Columns < 1 || f.Columns > 4) {
				clamped := min(max(f.Columns, 1), 4)
				logger.Warn("row columns out of range, clamping",
					zap.String("node", path),
					zap.Int("columns", f.Columns),
					zap.Int("clamped", clamped),
				)
				f.Columns = clamped
			}
		case f.Kind.HasValue():
			if f.Name == "" {
				return nil, fmt.Errorf("%w: %s field at %s has no name", ErrInvalidField, f.Kind, path)
			}
			if f.Kind == KindCustom && f.Component == nil {
				return nil, fmt.Errorf("%w: custom field %q has no component", ErrInvalidField, f.Name)
			}
		}

		id := len(t.nodes)
		t.nodes = append(t.nodes, node{path: path, field: f})
		ids = append(ids, id)

		if f.Kind.HasValue() {
			if prev, dup := t.byName[f.Name]; dup {
				logger.Warn("duplicate field name, last default wins",
					zap.String("name", f.Name),
					zap.String("first", t.nodes[prev].path),
					zap.String("second", path),
				)
			}
			t.byName[f.Name] = id
			t.leaves = append(t.leaves, id)
		}

		if f.Kind.IsGroup() {
			children, err := t.add(f.Fields, path, logger)
			if err != nil {
				return nil, err
			}
			t.nodes[id].children = children
		}
	}
	return ids, nil
}

// leaf returns the field registered under name.
func (t *tree) leaf(name string) (Field, bool) {
	id, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.nodes[id].field, true
}

// visible reports whether the leaf is shown for values. Groups are always
// shown.
func (f Field) visible(values map[string]any) bool {
	if f.ShowIf == nil {
		return true
	}
	return f.ShowIf(values)
}

// hiddenNames returns the value-holding names whose every occurrence is
// hidden for values.
func (t *tree) hiddenNames(values map[string]any) map[string]bool {
	shown := make(map[string]bool, len(t.leaves))
	for _, id := range t.leaves {
		f := t.nodes[id].field
		if f.visible(values) {
			shown[f.Name] = true
		} else if _, ok := shown[f.Name]; !ok {
			shown[f.Name] = false
		}
	}
	hidden := make(map[string]bool)
	for name, ok := range shown {
		if !ok {
			hidden[name] = true
		}
	}
	return hidden
}
