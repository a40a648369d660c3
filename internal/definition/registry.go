package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/dealerdesk/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
type snapshot struct {
	domains  map[string]model.DomainDefinition
	tables   map[string]model.TableDefinition
	forms    map[string]model.FormDefinition
	lookups  map[string]model.LookupDefinition
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. Later definitions win on duplicate ids.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	s := &snapshot{
		domains: make(map[string]model.DomainDefinition, len(defs)),
		tables:  make(map[string]model.TableDefinition),
		forms:   make(map[string]model.FormDefinition),
		lookups: make(map[string]model.LookupDefinition),
	}

	var checksumParts []string

	for _, def := range defs {
		s.domains[def.Domain] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, t := range def.Tables {
			s.tables[t.ID] = t
		}
		for _, f := range def.Forms {
			s.forms[f.ID] = f
		}
		for _, l := range def.Lookups {
			s.lookups[l.ID] = l
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetDomain returns the domain definition with the given name.
func (r *Registry) GetDomain(domain string) (model.DomainDefinition, bool) {
	d, ok := r.current().domains[domain]
	return d, ok
}

// GetTable returns the table definition with the given ID.
func (r *Registry) GetTable(tableID string) (model.TableDefinition, bool) {
	t, ok := r.current().tables[tableID]
	return t, ok
}

// GetForm returns the form definition with the given ID.
func (r *Registry) GetForm(formID string) (model.FormDefinition, bool) {
	f, ok := r.current().forms[formID]
	return f, ok
}

// GetLookup returns the lookup definition with the given ID.
func (r *Registry) GetLookup(lookupID string) (model.LookupDefinition, bool) {
	l, ok := r.current().lookups[lookupID]
	return l, ok
}

// AllDomains returns all domain definitions sorted by domain name.
func (r *Registry) AllDomains() []model.DomainDefinition {
	s := r.current()
	defs := make([]model.DomainDefinition, 0, len(s.domains))
	for _, d := range s.domains {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Domain < defs[j].Domain })
	return defs
}

// TableIDs returns the ids of all tables, sorted.
func (r *Registry) TableIDs() []string {
	return sortedKeys(r.current().tables)
}

// FormIDs returns the ids of all forms, sorted.
func (r *Registry) FormIDs() []string {
	return sortedKeys(r.current().forms)
}

// Len returns the number of tables and forms in the current snapshot.
func (r *Registry) Len() int {
	s := r.current()
	return len(s.tables) + len(s.forms)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
