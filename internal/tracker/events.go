package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/model"
)

const subscriberBuffer = 16

// Events fans operation snapshots out to live subscribers.
type Events interface {
	Publish(ctx context.Context, op *model.BulkOperation) error
	// Subscribe delivers snapshots of one operation until ctx is done or
	// the returned cancel func is called.
	Subscribe(ctx context.Context, id string) (<-chan *model.BulkOperation, func(), error)
}

// ─── Redis Pub/Sub ──────────────────────────────────────────────────

// RedisEvents publishes snapshots on a per-operation channel so streams
// served by any instance see progress made by any worker.
type RedisEvents struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEvents creates a new RedisEvents.
func NewRedisEvents(rdb *redis.Client, log zerolog.Logger) *RedisEvents {
	return &RedisEvents{rdb: rdb, log: log.With().Str("component", "operation_events").Logger()}
}

func (e *RedisEvents) Publish(ctx context.Context, op *model.BulkOperation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return e.rdb.Publish(ctx, config.CacheKey.OperationEventsChannel(op.OperationID), data).Err()
}

func (e *RedisEvents) Subscribe(ctx context.Context, id string) (<-chan *model.BulkOperation, func(), error) {
	pubsub := e.rdb.Subscribe(ctx, config.CacheKey.OperationEventsChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan *model.BulkOperation, subscriberBuffer)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				op, err := decode([]byte(msg.Payload))
				if err != nil {
					e.log.Warn().Err(err).Str("operation_id", id).Msg("Dropping malformed event")
					continue
				}
				select {
				case out <- op:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() { once.Do(func() { _ = pubsub.Close() }) }
	return out, cancel, nil
}

// ─── In-process ─────────────────────────────────────────────────────

// MemoryEvents is the single-instance counterpart of RedisEvents.
type MemoryEvents struct {
	mu   sync.Mutex
	subs map[string]map[chan *model.BulkOperation]struct{}
}

// NewMemoryEvents creates a new MemoryEvents.
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{subs: make(map[string]map[chan *model.BulkOperation]struct{})}
}

// Publish never blocks; slow subscribers miss intermediate snapshots.
func (e *MemoryEvents) Publish(_ context.Context, op *model.BulkOperation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs[op.OperationID] {
		select {
		case ch <- clone(op):
		default:
		}
	}
	return nil
}

func (e *MemoryEvents) Subscribe(ctx context.Context, id string) (<-chan *model.BulkOperation, func(), error) {
	ch := make(chan *model.BulkOperation, subscriberBuffer)

	e.mu.Lock()
	if e.subs[id] == nil {
		e.subs[id] = make(map[chan *model.BulkOperation]struct{})
	}
	e.subs[id][ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs[id], ch)
			if len(e.subs[id]) == 0 {
				delete(e.subs, id)
			}
			e.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}
