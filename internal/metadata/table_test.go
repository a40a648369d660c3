package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pitabwire/dealerdesk/internal/table"
	"github.com/pitabwire/dealerdesk/model"
)

func newTestTableProvider(t *testing.T) (*TableProvider, context.Context) {
	t.Helper()
	p := NewTableProvider(newTestRegistry(), newTestStore(t), TableDefaults{ItemsPerPage: 10, HighlightWindow: time.Second}, nil)
	return p, context.Background()
}

func TestTableProvider_GetTable(t *testing.T) {
	p, _ := newTestTableProvider(t)

	desc, err := p.GetTable("users")
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if desc.Title != "Users" || desc.PageSize != 2 || !desc.Selectable {
		t.Errorf("descriptor = %+v", desc)
	}
	if desc.ViewsURL != "/ui/tables/users/views" {
		t.Errorf("ViewsURL = %q", desc.ViewsURL)
	}
	if len(desc.Columns) != 3 || !desc.Columns[0].Sortable || desc.Columns[2].Sortable {
		t.Errorf("columns = %+v", desc.Columns)
	}
	if len(desc.Filters) != 1 || len(desc.Filters[0].Options) != 3 {
		t.Errorf("filters = %+v", desc.Filters)
	}

	// Tables without a page size use the provider default.
	desc, _ = p.GetTable("dealerships")
	if desc.PageSize != 10 {
		t.Errorf("default PageSize = %d, want 10", desc.PageSize)
	}
}

func TestTableProvider_GetTable_notFound(t *testing.T) {
	p, _ := newTestTableProvider(t)
	_, err := p.GetTable("quotes")
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrNotFound {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestTableProvider_Compile(t *testing.T) {
	p, _ := newTestTableProvider(t)
	def, _ := p.Definition("users")

	cfg := p.Compile(def)
	if _, ok := cfg.Columns[0].Accessor.(table.Func); !ok {
		t.Errorf("template column accessor = %T, want table.Func", cfg.Columns[0].Accessor)
	}
	if f, ok := cfg.Columns[1].Accessor.(table.Field); !ok || f != "email" {
		t.Errorf("field column accessor = %#v", cfg.Columns[1].Accessor)
	}
	if cfg.DefaultSort.Key != "last_name" {
		t.Errorf("DefaultSort = %+v", cfg.DefaultSort)
	}
	if cfg.SelectionPolicy != model.SelectionPrune || cfg.HighlightWindow != time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.Columns[0].Cell(model.Record{"first_name": "Ada", "last_name": "Lovelace"}); got != "Ada Lovelace" {
		t.Errorf("template cell = %v", got)
	}
}

func TestTableProvider_Open(t *testing.T) {
	p, ctx := newTestTableProvider(t)

	var emitted [][]model.Identifier
	engine, err := p.Open(ctx, "users", func(ids []model.Identifier) { emitted = append(emitted, ids) })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer engine.Close()

	view := engine.View()
	if view.TotalCount != 3 || view.TotalPages != 2 || len(view.Rows) != 2 {
		t.Fatalf("view = %+v", view)
	}
	// Sorted by last name: Hopper, Lovelace, Turing.
	if view.Rows[0].Cells[0] != "Grace Hopper" || view.Rows[1].Cells[0] != "Ada Lovelace" {
		t.Errorf("rows = %v, %v", view.Rows[0].Cells, view.Rows[1].Cells)
	}

	if err := engine.SetFilter("role", "dealer"); err != nil {
		t.Fatal(err)
	}
	view = engine.View()
	if view.TotalCount != 2 {
		t.Errorf("filtered TotalCount = %d, want 2", view.TotalCount)
	}

	engine.ToggleRow("u2")
	if len(emitted) != 1 || len(emitted[0]) != 1 || emitted[0][0] != "u2" {
		t.Errorf("selection callback = %v", emitted)
	}
}

func TestTableProvider_Reload(t *testing.T) {
	p, ctx := newTestTableProvider(t)
	engine, err := p.Open(ctx, "users", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	engine.ToggleRow("u3")
	_ = p.store.Delete(ctx, "users", "u3")
	_, _, _ = p.store.Put(ctx, "users", model.Record{"id": "u4", "first_name": "Barbara", "last_name": "Liskov"})

	if err := p.Reload(ctx, "users", engine); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	view := engine.View()
	if view.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", view.TotalCount)
	}
	// users prunes selection on reload.
	if len(view.SelectedIDs) != 0 {
		t.Errorf("SelectedIDs = %v, want pruned", view.SelectedIDs)
	}
}
