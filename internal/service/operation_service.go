package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/queue"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// OperationService accepts validated uploads for background processing and
// answers status queries.
type OperationService struct {
	tracker *tracker.Tracker
	queue   queue.Queue
	log     zerolog.Logger
}

// NewOperationService creates a new OperationService.
func NewOperationService(tr *tracker.Tracker, q queue.Queue, log zerolog.Logger) *OperationService {
	return &OperationService{
		tracker: tr,
		queue:   q,
		log:     log.With().Str("component", "operation_service").Logger(),
	}
}

// SubmitTenantRows registers an operation and queues the rows.
func (s *OperationService) SubmitTenantRows(ctx context.Context, opType model.OperationType, rows []model.TenantRow, validationErrors []model.RowError) (*model.BulkOperation, error) {
	return s.submit(ctx, opType, len(rows), validationErrors, &queue.Job{Kind: opType, TenantRows: rows})
}

// SubmitEnrollmentRows registers an enrollment import and queues the rows.
func (s *OperationService) SubmitEnrollmentRows(ctx context.Context, rows []model.EnrollmentRow, validationErrors []model.RowError) (*model.BulkOperation, error) {
	return s.submit(ctx, model.OperationEnrollmentImport, len(rows), validationErrors,
		&queue.Job{Kind: model.OperationEnrollmentImport, EnrollmentRows: rows})
}

func (s *OperationService) submit(ctx context.Context, opType model.OperationType, total int, validationErrors []model.RowError, job *queue.Job) (*model.BulkOperation, error) {
	op, err := s.tracker.Create(ctx, opType, total, validationErrors)
	if err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	job.OperationID = op.OperationID
	job.EnqueuedAt = time.Now().UTC()
	if err := s.queue.Push(ctx, job); err != nil {
		if _, ferr := s.tracker.Fail(context.WithoutCancel(ctx), op.OperationID, err); ferr != nil {
			s.log.Error().Err(ferr).Str("operation_id", op.OperationID).Msg("Failed to mark unqueued operation as failed")
		}
		return nil, fmt.Errorf("enqueue operation: %w", err)
	}

	s.log.Info().
		Str("operation_id", op.OperationID).
		Str("operation_type", string(opType)).
		Int("rows", total).
		Int("validation_errors", len(validationErrors)).
		Msg("Bulk operation queued")
	return op, nil
}

// Get returns an operation's status or tracker.ErrNotFound.
func (s *OperationService) Get(ctx context.Context, id string) (*model.BulkOperation, error) {
	return s.tracker.Get(ctx, id)
}

// List returns recent operations.
func (s *OperationService) List(ctx context.Context, limit int) ([]model.OperationSummary, error) {
	ops, err := s.tracker.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.OperationSummary, len(ops))
	for i, op := range ops {
		out[i] = op.Summary()
	}
	return out, nil
}

// Delete removes an operation's status record.
func (s *OperationService) Delete(ctx context.Context, id string) error {
	return s.tracker.Delete(ctx, id)
}

// Subscribe streams an operation's snapshots.
func (s *OperationService) Subscribe(ctx context.Context, id string) (<-chan *model.BulkOperation, func(), error) {
	return s.tracker.Subscribe(ctx, id)
}
