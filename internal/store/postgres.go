package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/dealerdesk/model"
)

// Schema creates the records table used by PgStore.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS records_collection_created_idx ON records (collection, created_at, id);
`

// PgStore is a PostgreSQL-backed Store using pgx/v5. Records are kept as
// JSONB documents.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL record store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the records table if it does not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate records: %w", err)
	}
	return nil
}

// List returns a collection's records in insertion order.
func (s *PgStore) List(ctx context.Context, collection string) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM records
		WHERE collection = $1
		ORDER BY created_at ASC, id ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []model.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one record.
func (s *PgStore) Get(ctx context.Context, collection string, id model.Identifier) (model.Record, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM records WHERE collection = $1 AND id = $2`,
		collection, string(id),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return decodeRecord(raw)
}

// Put upserts the record.
func (s *PgStore) Put(ctx context.Context, collection string, record model.Record) (model.Record, bool, error) {
	rec, id, err := prepare(collection, record)
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	var created bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO records (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()
		RETURNING (xmax = 0)`,
		collection, string(id), data,
	).Scan(&created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert record: %w", err)
	}

	stored, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Delete removes a record.
func (s *PgStore) Delete(ctx context.Context, collection string, id model.Identifier) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM records WHERE collection = $1 AND id = $2`,
		collection, string(id),
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(collection, id)
	}
	return nil
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
