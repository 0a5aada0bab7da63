package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/model"
)

const maxUpdateRetries = 10

// RedisStore keeps each operation as a JSON document with a TTL and indexes
// ids in a sorted set scored by creation time, so any instance can answer
// status queries and status survives restarts.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a new RedisStore. A zero ttl keeps documents forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, op *model.BulkOperation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	key := config.CacheKey.OperationKey(op.OperationID)

	ok, err := s.rdb.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store operation: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return s.rdb.ZAdd(ctx, config.CacheKey.OperationIndexKey(), redis.Z{
		Score:  float64(op.CreatedAt.UnixMilli()),
		Member: op.OperationID,
	}).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.BulkOperation, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.OperationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return decode(data)
}

// Update runs fn under WATCH so concurrent writers of the same operation
// retry instead of overwriting each other.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(op *model.BulkOperation) error) (*model.BulkOperation, error) {
	key := config.CacheKey.OperationKey(id)
	var result *model.BulkOperation

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		op, err := decode(data)
		if err != nil {
			return err
		}
		if err := fn(op); err != nil {
			return err
		}
		out, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("marshal operation: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		if err == nil {
			result = op
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update operation %s: too much contention", id)
}

// List returns the newest operations first, pruning index entries whose
// documents already expired.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*model.BulkOperation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.ZRevRange(ctx, config.CacheKey.OperationIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	if len(ids) == 0 {
		return []*model.BulkOperation{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.OperationKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load operations: %w", err)
	}

	out := make([]*model.BulkOperation, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		op, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	if len(stale) > 0 {
		_ = s.rdb.ZRem(ctx, config.CacheKey.OperationIndexKey(), stale...).Err()
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, config.CacheKey.OperationKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete operation: %w", err)
	}
	_ = s.rdb.ZRem(ctx, config.CacheKey.OperationIndexKey(), id).Err()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func decode(data []byte) (*model.BulkOperation, error) {
	var op model.BulkOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	return &op, nil
}
