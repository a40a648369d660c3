package model

// DomainDefinition is the root structure of a definition file. Each file
// declares one domain's tables, forms, and lookups.
type DomainDefinition struct {
	Domain  string `yaml:"domain"  json:"domain"`
	Version string `yaml:"version" json:"version"`
	// Navigation places the domain in the console menu.
	Navigation NavigationDefinition `yaml:"navigation" json:"navigation"`
	Tables     []TableDefinition    `yaml:"tables"  json:"tables,omitempty"`
	Forms      []FormDefinition     `yaml:"forms"   json:"forms,omitempty"`
	Lookups    []LookupDefinition   `yaml:"lookups" json:"lookups,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// NavigationDefinition describes a domain's entry in the console menu.
type NavigationDefinition struct {
	Label string `yaml:"label" json:"label"`
	Icon  string `yaml:"icon"  json:"icon,omitempty"`
	Order int    `yaml:"order" json:"order"`
}

// Selection policies applied when a table's data set is replaced.
const (
	SelectionRetain = "retain"
	SelectionPrune  = "prune"
)

// TableDefinition describes a data grid over one record collection.
type TableDefinition struct {
	ID              string             `yaml:"id"               json:"id"`
	Title           string             `yaml:"title"            json:"title"`
	Collection      string             `yaml:"collection"       json:"collection"`
	IDField         string             `yaml:"id_field"         json:"id_field,omitempty"`
	Columns         []ColumnDefinition `yaml:"columns"          json:"columns"`
	SearchKeys      []string           `yaml:"search_keys"      json:"search_keys,omitempty"`
	Filters         []FilterDefinition `yaml:"filters"          json:"filters,omitempty"`
	PageSize        int                `yaml:"page_size"        json:"page_size,omitempty"`
	Selectable      bool               `yaml:"selectable"       json:"selectable,omitempty"`
	SelectionPolicy string             `yaml:"selection_policy" json:"selection_policy,omitempty"`
	DefaultSort     string             `yaml:"default_sort"     json:"default_sort,omitempty"`
	SortDir         string             `yaml:"sort_dir"         json:"sort_dir,omitempty"`
}

// ColumnDefinition describes a table column. Exactly one of Field or
// Template selects the cell value.
type ColumnDefinition struct {
	Header    string `yaml:"header"     json:"header"`
	Field     string `yaml:"field"      json:"field,omitempty"`
	Template  string `yaml:"template"   json:"template,omitempty"`
	Sortable  bool   `yaml:"sortable"   json:"sortable,omitempty"`
	SortKey   string `yaml:"sort_key"   json:"sort_key,omitempty"`
	ClassName string `yaml:"class_name" json:"class_name,omitempty"`
}

// FilterDefinition describes a select filter above a table.
type FilterDefinition struct {
	Key     string         `yaml:"key"     json:"key"`
	Label   string         `yaml:"label"   json:"label"`
	Options []StaticOption `yaml:"options" json:"options"`
}

// StaticOption is a label/value pair for dropdowns and filters.
type StaticOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// FormDefinition describes an editing form over one record collection.
type FormDefinition struct {
	ID          string            `yaml:"id"           json:"id"`
	Title       string            `yaml:"title"        json:"title"`
	Collection  string            `yaml:"collection"   json:"collection"`
	StripHidden bool              `yaml:"strip_hidden" json:"strip_hidden,omitempty"`
	Schema      *SchemaRef        `yaml:"schema"       json:"schema,omitempty"`
	Fields      []FieldDefinition `yaml:"fields"       json:"fields"`
}

// SchemaRef points at a named component schema inside an OpenAPI document.
type SchemaRef struct {
	Spec string `yaml:"spec" json:"spec"`
	Name string `yaml:"name" json:"name"`
}

// FieldDefinition is one node of a form's field tree. Group nodes (section,
// row, column) carry Fields and no Name.
type FieldDefinition struct {
	Name         string                `yaml:"name"        json:"name,omitempty"`
	Label        string                `yaml:"label"       json:"label,omitempty"`
	Type         string                `yaml:"type"        json:"type"`
	Options      []StaticOption        `yaml:"options"     json:"options,omitempty"`
	Lookup       string                `yaml:"lookup"      json:"lookup,omitempty"`
	Icon         string                `yaml:"icon"        json:"icon,omitempty"`
	Placeholder  string                `yaml:"placeholder" json:"placeholder,omitempty"`
	ShowIf       *ConditionDefinition  `yaml:"show_if"     json:"show_if,omitempty"`
	DefaultValue any                   `yaml:"default"     json:"default,omitempty"`
	Title        string                `yaml:"title"       json:"title,omitempty"`
	Columns      int                   `yaml:"columns"     json:"columns,omitempty"`
	Fields       []FieldDefinition     `yaml:"fields"      json:"fields,omitempty"`
	Component    string                `yaml:"component"   json:"component,omitempty"`
	Props        map[string]any        `yaml:"props"       json:"props,omitempty"`
	Validation   *ValidationDefinition `yaml:"validation"  json:"validation,omitempty"`
}

// ConditionDefinition describes a data-dependent visibility rule evaluated
// against the form's current values.
type ConditionDefinition struct {
	Field    string `yaml:"field"    json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value"    json:"value,omitempty"`
}

// ValidationDefinition describes validation rules for a field.
type ValidationDefinition struct {
	Required         bool     `yaml:"required"           json:"required,omitempty"`
	RequiredOnCreate bool     `yaml:"required_on_create" json:"required_on_create,omitempty"`
	MinLength        *int     `yaml:"min_length"         json:"min_length,omitempty"`
	MaxLength        *int     `yaml:"max_length"         json:"max_length,omitempty"`
	Min              *float64 `yaml:"min"                json:"min,omitempty"`
	Max              *float64 `yaml:"max"                json:"max,omitempty"`
	Pattern          string   `yaml:"pattern"            json:"pattern,omitempty"`
	Equals           string   `yaml:"equals"             json:"equals,omitempty"`
	Message          string   `yaml:"message"            json:"message,omitempty"`
}

// LookupDefinition describes an option source drawn from another collection.
type LookupDefinition struct {
	ID         string       `yaml:"id"          json:"id"`
	Collection string       `yaml:"collection"  json:"collection"`
	LabelField string       `yaml:"label_field" json:"label_field"`
	ValueField string       `yaml:"value_field" json:"value_field"`
	Cache      *CacheConfig `yaml:"cache"       json:"cache,omitempty"`
}

// CacheConfig describes caching settings for a lookup.
type CacheConfig struct {
	TTL string `yaml:"ttl" json:"ttl"`
}
