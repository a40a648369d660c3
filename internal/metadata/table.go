// Package metadata compiles table and form definitions into engine
// configurations bound to the record store.
package metadata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/internal/table"
	"github.com/pitabwire/dealerdesk/model"
)

// TableDefaults are applied to tables that leave the setting unset.
type TableDefaults struct {
	ItemsPerPage    int
	HighlightWindow time.Duration
}

// TableProvider resolves TableDefinitions into descriptors and table engines
// over record collections.
type TableProvider struct {
	registry *definition.Registry
	store    store.Store
	defaults TableDefaults
	logger   *zap.Logger
}

// NewTableProvider creates a TableProvider.
func NewTableProvider(registry *definition.Registry, records store.Store, defaults TableDefaults, logger *zap.Logger) *TableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableProvider{
		registry: registry,
		store:    records,
		defaults: defaults,
		logger:   logger,
	}
}

// Definition returns the table definition with the given id or a NOT_FOUND
// error.
func (p *TableProvider) Definition(tableID string) (model.TableDefinition, error) {
	def, ok := p.registry.GetTable(tableID)
	if !ok {
		return model.TableDefinition{}, model.NewNotFoundError(fmt.Sprintf("table %q not found", tableID))
	}
	return def, nil
}

// GetTable resolves the static descriptor of a table.
func (p *TableProvider) GetTable(tableID string) (model.TableDescriptor, error) {
	def, err := p.Definition(tableID)
	if err != nil {
		return model.TableDescriptor{}, err
	}
	cfg := p.Compile(def)

	desc := model.TableDescriptor{
		ID:         def.ID,
		Title:      def.Title,
		SearchKeys: def.SearchKeys,
		PageSize:   cfg.ItemsPerPage,
		Selectable: def.Selectable,
		ViewsURL:   "/ui/tables/" + def.ID + "/views",
	}
	for _, c := range def.Columns {
		desc.Columns = append(desc.Columns, model.ColumnDescriptor{
			Header:    c.Header,
			Sortable:  c.Sortable,
			ClassName: c.ClassName,
		})
	}
	for _, f := range def.Filters {
		fd := model.FilterDescriptor{Key: f.Key, Label: f.Label, Options: []model.OptionDescriptor{}}
		for _, o := range f.Options {
			fd.Options = append(fd.Options, model.OptionDescriptor{Label: o.Label, Value: o.Value})
		}
		desc.Filters = append(desc.Filters, fd)
	}
	return desc, nil
}

// Compile converts a TableDefinition into an engine configuration. Template
// columns become function accessors.
func (p *TableProvider) Compile(def model.TableDefinition) table.Config {
	cfg := table.Config{
		SearchKeys:      def.SearchKeys,
		ItemsPerPage:    def.PageSize,
		IDField:         def.IDField,
		SelectionPolicy: def.SelectionPolicy,
		HighlightWindow: p.defaults.HighlightWindow,
		Logger:          p.logger.With(zap.String("table_id", def.ID)),
	}
	if cfg.ItemsPerPage == 0 {
		cfg.ItemsPerPage = p.defaults.ItemsPerPage
	}
	if def.DefaultSort != "" {
		cfg.DefaultSort = model.SortState{Key: def.DefaultSort, Direction: def.SortDir}
	}

	for _, c := range def.Columns {
		col := table.ColumnSpec{
			Header:    c.Header,
			Sortable:  c.Sortable,
			SortKey:   c.SortKey,
			ClassName: c.ClassName,
		}
		if c.Template != "" {
			col.Accessor = table.Func(CompileTemplate(c.Template).Render)
		} else {
			col.Accessor = table.Field(c.Field)
		}
		cfg.Columns = append(cfg.Columns, col)
	}

	for _, f := range def.Filters {
		spec := table.FilterSpec{Key: f.Key, Label: f.Label}
		for _, o := range f.Options {
			spec.Options = append(spec.Options, table.Option{Value: o.Value, Label: o.Label})
		}
		cfg.Filters = append(cfg.Filters, spec)
	}
	return cfg
}

// Load returns the records backing a table.
func (p *TableProvider) Load(ctx context.Context, def model.TableDefinition) ([]model.Record, error) {
	ctx, span := observability.StartSpan(ctx, "table.load",
		observability.AttrTableID.String(def.ID),
		observability.AttrCollection.String(def.Collection),
	)
	records, err := p.store.List(ctx, def.Collection)
	observability.EndSpanWithError(span, err)
	if err != nil {
		return nil, fmt.Errorf("loading table %q: %w", def.ID, err)
	}
	return records, nil
}

// Open compiles a table and creates an engine over its current records.
// onSelectionChange may be nil.
func (p *TableProvider) Open(ctx context.Context, tableID string, onSelectionChange func([]model.Identifier)) (*table.Engine, error) {
	def, err := p.Definition(tableID)
	if err != nil {
		return nil, err
	}
	records, err := p.Load(ctx, def)
	if err != nil {
		return nil, err
	}
	cfg := p.Compile(def)
	cfg.OnSelectionChange = onSelectionChange
	return table.New(cfg, records), nil
}

// Reload replaces an engine's data with the table's current records.
func (p *TableProvider) Reload(ctx context.Context, tableID string, engine *table.Engine) error {
	def, err := p.Definition(tableID)
	if err != nil {
		return err
	}
	records, err := p.Load(ctx, def)
	if err != nil {
		return err
	}
	engine.ReplaceData(records)
	return nil
}
