package form

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of field node types.
type Kind int

// Leaf kinds hold values (except KindDivider); group kinds hold child fields.
const (
	KindText Kind = iota + 1
	KindEmail
	KindPassword
	KindNumber
	KindTextarea
	KindSelect
	KindCheckboxGroup
	KindFile
	KindDivider
	KindCustom
	KindSection
	KindRow
	KindColumn
)

// ErrUnknownKind is returned by ParseKind for unrecognised type strings.
var ErrUnknownKind = errors.New("form: unknown field type")

var kindNames = map[Kind]string{
	KindText:          "text",
	KindEmail:         "email",
	KindPassword:      "password",
	KindNumber:        "number",
	KindTextarea:      "textarea",
	KindSelect:        "select",
	KindCheckboxGroup: "checkbox-group",
	KindFile:          "file",
	KindDivider:       "divider",
	KindCustom:        "custom",
	KindSection:       "section",
	KindRow:           "row",
	KindColumn:        "column",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// ParseKind maps a type string to its Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindsByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// String returns the type string of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsGroup reports whether k is a layout container.
func (k Kind) IsGroup() bool {
	return k == KindSection || k == KindRow || k == KindColumn
}

// HasValue reports whether fields of kind k hold a value in form state.
func (k Kind) HasValue() bool {
	return k.Valid() && !k.IsGroup() && k != KindDivider
}
