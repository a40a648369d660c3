package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pitabwire/dealerdesk/model"
)

// LoadSeed reads a JSON file mapping collection names to record arrays.
func LoadSeed(path string) (map[string][]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed %s: %w", path, err)
	}
	var seed map[string][]model.Record
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed %s: %w", path, err)
	}
	return seed, nil
}

// Seed writes every record into s. Collections are seeded in name order and
// records in file order. It returns the number of records written.
func Seed(ctx context.Context, s Store, seed map[string][]model.Record) (int, error) {
	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	sort.Strings(names)

	n := 0
	for _, name := range names {
		for _, rec := range seed[name] {
			if _, _, err := s.Put(ctx, name, rec); err != nil {
				return n, fmt.Errorf("seeding %s: %w", name, err)
			}
			n++
		}
	}
	return n, nil
}
