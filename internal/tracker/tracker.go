package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/metrics"
	"github.com/schoolhub/bulkops-backend/internal/model"
)

// Progress is a cumulative snapshot reported by a running bulk writer.
type Progress struct {
	Processed  int
	Successful int
	Failed     int
}

// Tracker owns the operation state machine:
// processing -> completed | completed_with_errors | failed.
// Terminal states never change again.
type Tracker struct {
	store     Store
	events    Events
	maxErrors int
	metrics   *metrics.Collector
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a new Tracker. maxErrors bounds the stored error sample;
// error_count always holds the full total.
func New(store Store, events Events, maxErrors int, m *metrics.Collector, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		events:    events,
		maxErrors: maxErrors,
		metrics:   m,
		log:       log.With().Str("component", "tracker").Logger(),
		now:       time.Now,
	}
}

// Create registers a new processing operation seeded with the upload's
// validation errors.
func (t *Tracker) Create(ctx context.Context, opType model.OperationType, totalRows int, validationErrors []model.RowError) (*model.BulkOperation, error) {
	now := t.now().UTC()
	op := &model.BulkOperation{
		OperationID:   uuid.NewString(),
		OperationType: opType,
		Status:        model.OperationProcessing,
		TotalRows:     totalRows,
		Errors:        []model.RowError{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.appendErrors(op, validationErrors)

	if err := t.store.Create(ctx, op); err != nil {
		return nil, err
	}
	t.publish(ctx, op)
	return op, nil
}

// UpdateProgress records a cumulative progress snapshot. Counters never go
// backwards.
func (t *Tracker) UpdateProgress(ctx context.Context, id string, p Progress) error {
	op, err := t.store.Update(ctx, id, func(op *model.BulkOperation) error {
		if op.Status.Terminal() {
			return ErrTerminal
		}
		op.ProcessedRows = maxInt(op.ProcessedRows, minInt(p.Processed, op.TotalRows))
		op.SuccessfulUpdates = maxInt(op.SuccessfulUpdates, p.Successful)
		op.FailedUpdates = maxInt(op.FailedUpdates, p.Failed)
		op.ProgressPercentage = percent(op.ProcessedRows, op.TotalRows)
		op.UpdatedAt = t.now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	t.publish(ctx, op)
	return nil
}

// Complete moves the operation to completed or completed_with_errors.
func (t *Tracker) Complete(ctx context.Context, id string, res *model.BulkResult) (*model.BulkOperation, error) {
	op, err := t.store.Update(ctx, id, func(op *model.BulkOperation) error {
		if op.Status.Terminal() {
			return ErrTerminal
		}
		op.Status = res.Status()
		op.SuccessfulUpdates = res.Successful
		op.FailedUpdates = res.Failed
		op.ProcessedRows = res.Successful + res.Failed
		op.ProgressPercentage = 100
		t.appendErrors(op, res.Errors)
		t.finish(op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.metrics.OperationFinished(string(op.OperationType), string(op.Status), op.ProcessingTimeSeconds, op.SuccessfulUpdates, op.FailedUpdates)
	t.publish(ctx, op)
	return op, nil
}

// Fail moves the operation to failed with cause attached.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) (*model.BulkOperation, error) {
	op, err := t.store.Update(ctx, id, func(op *model.BulkOperation) error {
		if op.Status.Terminal() {
			return ErrTerminal
		}
		op.Status = model.OperationFailed
		t.appendErrors(op, []model.RowError{{Error: "Processing failed: " + cause.Error()}})
		t.finish(op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.metrics.OperationFinished(string(op.OperationType), string(op.Status), op.ProcessingTimeSeconds, op.SuccessfulUpdates, op.FailedUpdates)
	t.publish(ctx, op)
	return op, nil
}

// Get returns the operation or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, id string) (*model.BulkOperation, error) {
	return t.store.Get(ctx, id)
}

// List returns up to limit operations, newest first.
func (t *Tracker) List(ctx context.Context, limit int) ([]*model.BulkOperation, error) {
	return t.store.List(ctx, limit)
}

// Delete removes the operation's status record.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	return t.store.Delete(ctx, id)
}

// Subscribe streams snapshots of one operation.
func (t *Tracker) Subscribe(ctx context.Context, id string) (<-chan *model.BulkOperation, func(), error) {
	return t.events.Subscribe(ctx, id)
}

func (t *Tracker) finish(op *model.BulkOperation) {
	now := t.now().UTC()
	op.CompletedAt = &now
	op.UpdatedAt = now
	op.ProcessingTimeSeconds = now.Sub(op.CreatedAt).Seconds()
}

func (t *Tracker) appendErrors(op *model.BulkOperation, errs []model.RowError) {
	op.ErrorCount += len(errs)
	room := t.maxErrors - len(op.Errors)
	if t.maxErrors <= 0 {
		room = len(errs)
	}
	if room <= 0 {
		return
	}
	if len(errs) > room {
		errs = errs[:room]
	}
	op.Errors = append(op.Errors, errs...)
}

func (t *Tracker) publish(ctx context.Context, op *model.BulkOperation) {
	if t.events == nil {
		return
	}
	if err := t.events.Publish(ctx, op); err != nil {
		t.log.Warn().Err(err).Str("operation_id", op.OperationID).Msg("Failed to publish operation event")
	}
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
