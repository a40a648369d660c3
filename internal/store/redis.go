package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/dealerdesk/model"
)

// RedisStore keeps each collection in a hash of JSON-encoded records keyed by
// id, plus a sorted set scoring ids by an insertion sequence for ordered
// listing.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a Redis-backed store. Keys are namespaced by prefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "dealerdesk"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) dataKey(collection string) string {
	return fmt.Sprintf("%s:records:%s", s.prefix, collection)
}

func (s *RedisStore) orderKey(collection string) string {
	return fmt.Sprintf("%s:order:%s", s.prefix, collection)
}

func (s *RedisStore) seqKey(collection string) string {
	return fmt.Sprintf("%s:seq:%s", s.prefix, collection)
}

// List returns a collection's records in insertion order.
func (s *RedisStore) List(ctx context.Context, collection string) ([]model.Record, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange %q: %w", collection, err)
	}
	if len(ids) == 0 {
		return []model.Record{}, nil
	}

	raws, err := s.client.HMGet(ctx, s.dataKey(collection), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget %q: %w", collection, err)
	}

	out := make([]model.Record, 0, len(raws))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// Order entry without data; skip it.
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one record.
func (s *RedisStore) Get(ctx context.Context, collection string, id model.Identifier) (model.Record, error) {
	raw, err := s.client.HGet(ctx, s.dataKey(collection), string(id)).Bytes()
	if err == redis.Nil {
		return nil, notFound(collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s/%s: %w", collection, id, err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// Put stores the record. New ids are appended to the collection order.
func (s *RedisStore) Put(ctx context.Context, collection string, record model.Record) (model.Record, bool, error) {
	rec, id, err := prepare(collection, record)
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis incr %q: %w", collection, err)
	}

	var added *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey(collection), string(id), data)
		added = pipe.ZAddNX(ctx, s.orderKey(collection), redis.Z{
			Score:  float64(seq),
			Member: string(id),
		})
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis put %s/%s: %w", collection, id, err)
	}

	stored, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return stored, added.Val() == 1, nil
}

// Delete removes a record.
func (s *RedisStore) Delete(ctx context.Context, collection string, id model.Identifier) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.dataKey(collection), string(id))
		pipe.ZRem(ctx, s.orderKey(collection), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", collection, id, err)
	}
	if removed.Val() == 0 {
		return notFound(collection, id)
	}
	return nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeRecord(data []byte) (model.Record, error) {
	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
