package store

import (
	"context"
	"slices"
	"sync"

	"github.com/pitabwire/dealerdesk/model"
)

// MemoryStore is an in-memory Store. Suitable for testing and single-instance
// deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	order   []model.Identifier
	records map[model.Identifier]model.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// List returns deep copies of a collection's records in insertion order.
func (s *MemoryStore) List(_ context.Context, collection string) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return []model.Record{}, nil
	}
	out := make([]model.Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, model.CloneRecord(c.records[id]))
	}
	return out, nil
}

// Get returns a deep copy of one record.
func (s *MemoryStore) Get(_ context.Context, collection string, id model.Identifier) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[collection]; ok {
		if r, ok := c.records[id]; ok {
			return model.CloneRecord(r), nil
		}
	}
	return nil, notFound(collection, id)
}

// Put stores a copy of the record. Replacing keeps the original position.
func (s *MemoryStore) Put(_ context.Context, collection string, record model.Record) (model.Record, bool, error) {
	rec, id, err := prepare(collection, record)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = &memCollection{records: make(map[model.Identifier]model.Record)}
		s.collections[collection] = c
	}
	_, exists := c.records[id]
	if !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = rec
	return model.CloneRecord(rec), !exists, nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, collection string, id model.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return notFound(collection, id)
	}
	if _, ok := c.records[id]; !ok {
		return notFound(collection, id)
	}
	delete(c.records, id)
	c.order = slices.DeleteFunc(c.order, func(x model.Identifier) bool { return x == id })
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of records in a collection. For testing.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[collection]; ok {
		return len(c.records)
	}
	return 0
}
