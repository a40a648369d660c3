package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/dealerdesk/model"
)

// ==========================================================================
// Redis-backed store
// ==========================================================================

func TestRedisStore_TableAndFormRoundTrip(t *testing.T) {
	h := NewTestHarness(t, WithRedisStore())

	v := openView(t, h, "dealerships")
	assertIDs(t, rowIDs(v.View), "d2", "d1", "d3")

	f := openForm(t, h, "dealership-form", nil)
	formAction(t, h, f.ID, "values", map[string]any{"values": map[string]any{
		"name":          "Riverside Cars",
		"address.city":  "Rivertown",
		"contact.email": "ops@riverside.test",
	}})

	var saved model.SubmitResponse
	h.AssertJSON(t, h.POST("/ui/form-sessions/"+f.ID+"/submit", nil), http.StatusOK, &saved)
	id := model.IdentifierOf(saved.Record["id"])
	if id == "" {
		t.Fatal("created record has no id")
	}
	if saved.Record["status"] != "active" {
		t.Errorf("status = %v, want the field default", saved.Record["status"])
	}

	stored, err := h.Store.Get(context.Background(), "dealerships", id)
	if err != nil {
		t.Fatalf("Get from redis: %v", err)
	}
	if stored["name"] != "Riverside Cars" {
		t.Errorf("stored = %v", stored)
	}
	if len(h.Redis.Keys()) == 0 {
		t.Error("no keys written to redis")
	}

	view := viewAction(t, h, v.ID, "reload", nil)
	if view.TotalCount != 4 {
		t.Errorf("total after reload = %d, want 4", view.TotalCount)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	h := NewTestHarness(t, WithRedisStore())
	h.Redis.Close()

	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	resp := h.POST("/ui/tables/dealerships/views", nil)
	if resp.StatusCode < 500 {
		t.Fatalf("status = %d, want a 5xx", resp.StatusCode)
	}
	h.ParseJSON(resp, &body)
	if body.Error.Code == "" {
		t.Error("missing error envelope")
	}

	h.AssertStatus(t, h.GET("/ui/ready"), http.StatusServiceUnavailable)
}

// ==========================================================================
// Definition hot reload
// ==========================================================================

const vehiclesDefinition = `domain: inventory
navigation:
  label: Inventory
  order: 2
tables:
  - id: vehicles
    title: Vehicles
    collection: vehicles
    columns:
      - { header: VIN, field: vin, sortable: true }
      - { header: Model, field: model }
    search_keys: [vin, model]
`

func TestHotReload_AddsTable(t *testing.T) {
	h := NewTestHarness(t, WithHotReload())
	h.AssertStatus(t, h.GET("/ui/tables/vehicles"), http.StatusNotFound)

	h.WriteDefinition("inventory.yaml", vehiclesDefinition)

	require.Eventually(t, func() bool {
		resp := h.GET("/ui/tables/vehicles")
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 25*time.Millisecond)

	if got := testutil.ToFloat64(h.Metrics.DefinitionReloadTotal.WithLabelValues("success")); got < 1 {
		t.Errorf("successful reloads = %v, want at least 1", got)
	}
}

func TestHotReload_InvalidKeepsSnapshot(t *testing.T) {
	h := NewTestHarness(t, WithHotReload())
	before := h.Registry.Checksum()

	h.WriteDefinition("broken.yaml", "tables:\n  - title: No id\n")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.Metrics.DefinitionReloadTotal.WithLabelValues("failure")) >= 1
	}, 5*time.Second, 25*time.Millisecond)

	if h.Registry.Checksum() != before {
		t.Error("invalid definitions replaced the registry snapshot")
	}
	h.AssertStatus(t, h.GET("/ui/tables/dealerships"), http.StatusOK)
}
