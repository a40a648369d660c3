// Package store persists records grouped into named collections.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pitabwire/dealerdesk/model"
)

// IDField is the record property holding a record's identity.
const IDField = "id"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store is a collection-oriented record store.
type Store interface {
	// List returns every record of a collection in insertion order. An unknown
	// collection is empty, not an error.
	List(ctx context.Context, collection string) ([]model.Record, error)

	// Get returns one record. It returns ErrNotFound when absent.
	Get(ctx context.Context, collection string, id model.Identifier) (model.Record, error)

	// Put creates or replaces a record. A record without an id is assigned a
	// new UUID. The stored record is returned along with whether it was
	// created.
	Put(ctx context.Context, collection string, record model.Record) (model.Record, bool, error)

	// Delete removes a record. It returns ErrNotFound when absent.
	Delete(ctx context.Context, collection string, id model.Identifier) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// prepare copies the record and assigns an id if it has none.
func prepare(collection string, record model.Record) (model.Record, model.Identifier, error) {
	if collection == "" {
		return nil, "", errors.New("store: collection is required")
	}
	rec := model.CloneRecord(record)
	if rec == nil {
		rec = model.Record{}
	}
	id := model.IdentifierOf(rec[IDField])
	if id == "" {
		id = model.Identifier(uuid.NewString())
		rec[IDField] = string(id)
	}
	return rec, id, nil
}

func notFound(collection string, id model.Identifier) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
}
