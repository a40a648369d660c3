package metadata

import (
	"context"
	"testing"

	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/model"
)

func intPtr(n int) *int { return &n }

func testDomains() []model.DomainDefinition {
	return []model.DomainDefinition{
		{
			Domain:     "people",
			Navigation: model.NavigationDefinition{Label: "People", Icon: "users", Order: 2},
			Tables: []model.TableDefinition{{
				ID:         "users",
				Title:      "Users",
				Collection: "users",
				Columns: []model.ColumnDefinition{
					{Header: "Name", Template: "{first_name} {last_name}", Sortable: true, SortKey: "last_name"},
					{Header: "Email", Field: "email", Sortable: true},
					{Header: "Role", Field: "role"},
				},
				SearchKeys: []string{"first_name", "last_name", "email"},
				Filters: []model.FilterDefinition{{
					Key:   "role",
					Label: "Role",
					Options: []model.StaticOption{
						{Label: "All", Value: "all"},
						{Label: "Admin", Value: "admin"},
						{Label: "Dealer", Value: "dealer"},
					},
				}},
				PageSize:        2,
				Selectable:      true,
				SelectionPolicy: model.SelectionPrune,
				DefaultSort:     "last_name",
			}},
			Forms: []model.FormDefinition{{
				ID:          "user-form",
				Title:       "User",
				Collection:  "users",
				StripHidden: true,
				Fields: []model.FieldDefinition{
					{Type: "section", Title: "Account", Fields: []model.FieldDefinition{
						{Type: "row", Fields: []model.FieldDefinition{
							{Name: "first_name", Label: "First name", Type: "text", Validation: &model.ValidationDefinition{Required: true}},
							{Name: "last_name", Label: "Last name", Type: "text"},
						}},
						{Name: "password", Type: "password", Validation: &model.ValidationDefinition{RequiredOnCreate: true, MinLength: intPtr(8)}},
						{Name: "password_confirm", Type: "password", Validation: &model.ValidationDefinition{Equals: "password", Message: "Passwords do not match"}},
						{Name: "role", Type: "select", Options: []model.StaticOption{
							{Label: "Admin", Value: "admin"},
							{Label: "Dealer", Value: "dealer"},
						}},
					}},
					{Type: "divider"},
					{Name: "dealership_id", Label: "Dealership", Type: "select", Lookup: "dealers",
						ShowIf:     &model.ConditionDefinition{Field: "role", Operator: "eq", Value: "dealer"},
						Validation: &model.ValidationDefinition{Required: true}},
					{Name: "permissions", Type: "checkbox-group",
						ShowIf: &model.ConditionDefinition{Field: "role", Operator: "eq", Value: "dealer"},
						Options: []model.StaticOption{
							{Label: "View", Value: "inventory.view"},
							{Label: "Edit", Value: "inventory.edit"},
						}},
					{Name: "status", Type: "custom", Component: "status-pill", DefaultValue: "active"},
					{Name: "avatar", Type: "file"},
				},
			}},
		},
		{
			Domain:     "network",
			Navigation: model.NavigationDefinition{Order: 1},
			Lookups: []model.LookupDefinition{
				{ID: "dealers", Collection: "dealerships", LabelField: "name", ValueField: "id"},
			},
			Tables: []model.TableDefinition{{
				ID:         "dealerships",
				Collection: "dealerships",
				Columns:    []model.ColumnDefinition{{Header: "Name", Field: "name", Sortable: true}},
			}},
		},
	}
}

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	seed := map[string][]model.Record{
		"users": {
			{"id": "u1", "first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.test", "role": "admin"},
			{"id": "u2", "first_name": "Grace", "last_name": "Hopper", "email": "grace@example.test", "role": "dealer", "dealership_id": "d1"},
			{"id": "u3", "first_name": "Alan", "last_name": "Turing", "email": "alan@example.test", "role": "dealer"},
		},
		"dealerships": {
			{"id": "d1", "name": "Harbor Auto"},
			{"id": "d2", "name": "Summit Motors"},
		},
	}
	if _, err := store.Seed(ctx, s, seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return s
}

func newTestRegistry() *definition.Registry {
	return definition.NewRegistry(testDomains())
}
