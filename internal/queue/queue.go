// Package queue hands validated bulk uploads from HTTP handlers to workers.
package queue

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

// ErrEmpty is returned by Pop when no job arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// Job is one accepted upload waiting to be written.
type Job struct {
	OperationID    string                `json:"operation_id"`
	Kind           model.OperationType   `json:"kind"`
	TenantRows     []model.TenantRow     `json:"tenant_rows,omitempty"`
	EnrollmentRows []model.EnrollmentRow `json:"enrollment_rows,omitempty"`
	EnqueuedAt     time.Time             `json:"enqueued_at"`
}

// Queue is a FIFO of jobs.
type Queue interface {
	Push(ctx context.Context, job *Job) error
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
	Len(ctx context.Context) (int64, error)
}

// ─── Redis list ─────────────────────────────────────────────────────

// RedisQueue is a Redis list consumed with BLPOP, so any instance may pick
// up work submitted to any other.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a new RedisQueue on the bulk jobs list.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: config.WorkerKey.BulkJobsQueue}
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, raw).Err()
}

// Len reports how many jobs wait in the list.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(item) < 2 {
		return nil, ErrEmpty
	}
	var job Job
	if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}
	return &job, nil
}

// ─── In-process ─────────────────────────────────────────────────────

// MemoryQueue is a buffered channel for single-instance deployments.
type MemoryQueue struct {
	ch chan *Job
}

// NewMemoryQueue creates a new MemoryQueue holding up to size jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan *Job, size)}
}

func (q *MemoryQueue) Push(ctx context.Context, job *Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case job := <-q.ch:
		return job, nil
	case <-timer.C:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
