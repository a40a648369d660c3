package model

// TableDescriptor is the static table metadata sent to the frontend.
type TableDescriptor struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Columns    []ColumnDescriptor `json:"columns"`
	Filters    []FilterDescriptor `json:"filters,omitempty"`
	SearchKeys []string           `json:"search_keys,omitempty"`
	PageSize   int                `json:"page_size"`
	Selectable bool               `json:"selectable"`
	ViewsURL   string             `json:"views_url"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Header    string `json:"header"`
	Sortable  bool   `json:"sortable"`
	ClassName string `json:"class_name,omitempty"`
}

// FilterDescriptor describes a resolved filter control.
type FilterDescriptor struct {
	Key     string             `json:"key"`
	Label   string             `json:"label"`
	Options []OptionDescriptor `json:"options"`
}

// OptionDescriptor is a resolved option for dropdowns, filters, and
// checkbox groups.
type OptionDescriptor struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
	Checked  bool   `json:"checked,omitempty"`
}

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SortState is the active sort of a table view. An empty Key means unsorted.
type SortState struct {
	Key       string `json:"key,omitempty"`
	Direction string `json:"direction"`
}

// TableView is the filtered, sorted, paginated and selectable view of a table.
type TableView struct {
	Columns      []ColumnHeader    `json:"columns"`
	Rows         []RowView         `json:"rows"`
	Search       string            `json:"search"`
	Filters      map[string]string `json:"filters,omitempty"`
	Sort         SortState         `json:"sort"`
	Page         int               `json:"page"`
	PageSize     int               `json:"page_size"`
	TotalPages   int               `json:"total_pages"`
	TotalCount   int               `json:"total_count"`
	SelectedIDs  []Identifier      `json:"selected_ids"`
	PageSelected bool              `json:"page_selected"`
	HighlightID  Identifier        `json:"highlight_id,omitempty"`
}

// ColumnHeader is a rendered column header. Sorted carries the direction when
// this column drives the current sort.
type ColumnHeader struct {
	Index     int    `json:"index"`
	Header    string `json:"header"`
	Sortable  bool   `json:"sortable"`
	Sorted    string `json:"sorted,omitempty"`
	ClassName string `json:"class_name,omitempty"`
}

// RowView is one displayed row.
type RowView struct {
	ID          Identifier `json:"id"`
	Cells       []any      `json:"cells"`
	Selected    bool       `json:"selected"`
	Highlighted bool       `json:"highlighted"`
}

// Form submission states.
const (
	FormIdle   = "idle"
	FormSaving = "saving"
)

// FormView is a rendered form: the visible field tree with values and inline
// errors.
type FormView struct {
	ID      string            `json:"id,omitempty"`
	Title   string            `json:"title,omitempty"`
	Status  string            `json:"status"`
	Editing bool              `json:"editing"`
	Nodes   []FieldNode       `json:"nodes"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// FieldNode is one rendered node of a form. Layout nodes carry Children;
// value nodes carry Name and Value.
type FieldNode struct {
	Kind        string             `json:"kind"`
	Name        string             `json:"name,omitempty"`
	Label       string             `json:"label,omitempty"`
	Icon        string             `json:"icon,omitempty"`
	Placeholder string             `json:"placeholder,omitempty"`
	InputType   string             `json:"input_type,omitempty"`
	Value       any                `json:"value,omitempty"`
	Options     []OptionDescriptor `json:"options,omitempty"`
	Preview     string             `json:"preview,omitempty"`
	Revealable  bool               `json:"revealable,omitempty"`
	Revealed    bool               `json:"revealed,omitempty"`
	Title       string             `json:"title,omitempty"`
	Columns     int                `json:"columns,omitempty"`
	Error       string             `json:"error,omitempty"`
	Element     *Element           `json:"element,omitempty"`
	Children    []FieldNode        `json:"children,omitempty"`
}

// Element is a UI element produced by a custom field component.
type Element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []Element         `json:"children,omitempty"`
}

// LookupResponse is the response from a lookup endpoint.
type LookupResponse struct {
	Data LookupPayload  `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// LookupPayload contains the lookup options.
type LookupPayload struct {
	Options []OptionDescriptor `json:"options"`
}

// SubmitResponse is the response from submitting a form session.
type SubmitResponse struct {
	Success bool         `json:"success"`
	Record  Record       `json:"record,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// NavigationTree is the console menu.
type NavigationTree struct {
	Items []NavigationNode `json:"items"`
}

// NavigationNode is one menu entry. Domain nodes carry Children; table and
// form nodes carry a Route.
type NavigationNode struct {
	ID       string           `json:"id"`
	Kind     string           `json:"kind"`
	Label    string           `json:"label"`
	Icon     string           `json:"icon,omitempty"`
	Route    string           `json:"route,omitempty"`
	Badge    *BadgeDescriptor `json:"badge,omitempty"`
	Children []NavigationNode `json:"children,omitempty"`
}

// BadgeDescriptor is a count shown next to a menu entry.
type BadgeDescriptor struct {
	Count int `json:"count"`
}
