package definition

import (
	"sync"
	"testing"

	"github.com/pitabwire/dealerdesk/model"
)

func testDefs() []model.DomainDefinition {
	return []model.DomainDefinition{
		{
			Domain:   "dealership",
			Version:  "1.0.0",
			Checksum: "abc123",
			Tables: []model.TableDefinition{
				{ID: "dealerships", Title: "Dealerships", Collection: "dealerships"},
				{ID: "users", Title: "Users", Collection: "users"},
			},
			Forms: []model.FormDefinition{
				{ID: "dealership-form", Title: "Dealership"},
			},
			Lookups: []model.LookupDefinition{
				{ID: "regions", Collection: "regions"},
			},
		},
		{
			Domain:   "sales",
			Version:  "1.0.0",
			Checksum: "def456",
			Tables: []model.TableDefinition{
				{ID: "quotes", Title: "Quotes", Collection: "quotes"},
			},
		},
	}
}

func TestRegistry_GetDomain(t *testing.T) {
	r := NewRegistry(testDefs())

	d, ok := r.GetDomain("dealership")
	if !ok {
		t.Fatal("GetDomain(dealership) not found")
	}
	if d.Domain != "dealership" {
		t.Errorf("Domain = %q, want dealership", d.Domain)
	}

	_, ok = r.GetDomain("unknown")
	if ok {
		t.Error("GetDomain(unknown) should return false")
	}
}

func TestRegistry_GetTable(t *testing.T) {
	r := NewRegistry(testDefs())

	tbl, ok := r.GetTable("quotes")
	if !ok {
		t.Fatal("GetTable(quotes) not found")
	}
	if tbl.Title != "Quotes" {
		t.Errorf("Title = %q, want Quotes", tbl.Title)
	}

	_, ok = r.GetTable("nonexistent")
	if ok {
		t.Error("GetTable(nonexistent) should return false")
	}
}

func TestRegistry_GetForm(t *testing.T) {
	r := NewRegistry(testDefs())
	f, ok := r.GetForm("dealership-form")
	if !ok {
		t.Fatal("GetForm(dealership-form) not found")
	}
	if f.Title != "Dealership" {
		t.Errorf("Title = %q", f.Title)
	}
}

func TestRegistry_GetLookup(t *testing.T) {
	r := NewRegistry(testDefs())
	l, ok := r.GetLookup("regions")
	if !ok {
		t.Fatal("GetLookup(regions) not found")
	}
	if l.Collection != "regions" {
		t.Errorf("Collection = %q", l.Collection)
	}
}

func TestRegistry_AllDomains_sorted(t *testing.T) {
	r := NewRegistry(testDefs())
	all := r.AllDomains()
	if len(all) != 2 {
		t.Fatalf("AllDomains() returned %d, want 2", len(all))
	}
	if all[0].Domain != "dealership" || all[1].Domain != "sales" {
		t.Errorf("AllDomains() order = %q, %q", all[0].Domain, all[1].Domain)
	}
}

func TestRegistry_IDsAndLen(t *testing.T) {
	r := NewRegistry(testDefs())

	ids := r.TableIDs()
	want := []string{"dealerships", "quotes", "users"}
	if len(ids) != len(want) {
		t.Fatalf("TableIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("TableIDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
	if got := r.FormIDs(); len(got) != 1 || got[0] != "dealership-form" {
		t.Errorf("FormIDs() = %v", got)
	}
	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}
}

func TestRegistry_Checksum(t *testing.T) {
	r := NewRegistry(testDefs())
	cs := r.Checksum()
	if cs == "" {
		t.Error("Checksum should not be empty")
	}

	// Order of definitions does not change the combined checksum.
	defs := testDefs()
	defs[0], defs[1] = defs[1], defs[0]
	if NewRegistry(defs).Checksum() != cs {
		t.Error("Checksum should not depend on definition order")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testDefs())

	_, ok := r.GetTable("dealerships")
	if !ok {
		t.Fatal("before replace: dealerships not found")
	}

	r.Replace(nil)

	_, ok = r.GetTable("dealerships")
	if ok {
		t.Error("after replace with nil: dealerships should not be found")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_ConcurrentReadWrite(t *testing.T) {
	r := NewRegistry(testDefs())

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.GetTable("dealerships")
				r.GetForm("dealership-form")
				r.AllDomains()
				r.Checksum()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			r.Replace(testDefs())
		}
	}()

	wg.Wait()
}
