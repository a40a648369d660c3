package form

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/model"
)

// ExtractDefaults walks fields and returns the flat initial values: for each
// value-holding leaf, the value at its name in initial, else its
// DefaultValue, else "". Groups contribute only their descendants. Duplicate
// names resolve to the last leaf in tree order.
func ExtractDefaults(fields []Field, initial model.Record) map[string]any {
	out := make(map[string]any)
	extractInto(out, fields, initial)
	return out
}

func extractInto(out map[string]any, fields []Field, initial model.Record) {
	for _, f := range fields {
		if f.Kind.IsGroup() {
			extractInto(out, f.Fields, initial)
			continue
		}
		if !f.Kind.HasValue() || f.Name == "" {
			continue
		}
		v := accessor.Get(initial, f.Name)
		if v == nil {
			v = f.DefaultValue
		}
		if v == nil {
			v = ""
		}
		out[f.Name] = v
	}
}

// fingerprint returns a stable digest of r's value. encoding/json sorts map
// keys, so structurally equal records hash equally regardless of identity.
func fingerprint(r model.Record) string {
	raw, err := json.Marshal(r)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", r))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
