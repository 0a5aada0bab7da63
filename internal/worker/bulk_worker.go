package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/logger"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/queue"
	"github.com/schoolhub/bulkops-backend/internal/service"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// BulkPollTimeout bounds each blocking pop so shutdown is noticed promptly.
const BulkPollTimeout = 1 * time.Second

// TenantWriter writes tenant rows.
type TenantWriter interface {
	Create(ctx context.Context, rows []model.TenantRow, progress service.ProgressFunc) (*model.BulkResult, error)
	Update(ctx context.Context, rows []model.TenantRow, progress service.ProgressFunc) (*model.BulkResult, error)
}

// EnrollmentImporter writes enrollment rows.
type EnrollmentImporter interface {
	ImportEnrollments(ctx context.Context, rows []model.EnrollmentRow, progress service.ProgressFunc) (*model.BulkResult, error)
}

// BulkWorker consumes bulk_jobs_queue and drives each job to a terminal
// tracker state.
type BulkWorker struct {
	queue       queue.Queue
	tracker     *tracker.Tracker
	tenants     TenantWriter
	enrollments EnrollmentImporter
	concurrency int
	log         zerolog.Logger
}

// NewBulkWorker creates a new BulkWorker running concurrency consumers.
func NewBulkWorker(q queue.Queue, tr *tracker.Tracker, tenants TenantWriter, enrollments EnrollmentImporter, concurrency int, log zerolog.Logger) *BulkWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BulkWorker{
		queue:       q,
		tracker:     tr,
		tenants:     tenants,
		enrollments: enrollments,
		concurrency: concurrency,
		log:         log.With().Str("component", "bulk_worker").Logger(),
	}
}

// Start runs the consumers until ctx is cancelled. A job already taken
// off the queue is finished before Start returns. Call in a goroutine.
func (w *BulkWorker) Start(ctx context.Context) {
	w.log.Info().Int("consumers", w.concurrency).Msg("BulkWorker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}
	wg.Wait()

	w.log.Info().Msg("BulkWorker stopped")
}

func (w *BulkWorker) consume(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Pop(ctx, BulkPollTimeout)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && ctx.Err() == nil {
				w.log.Error().Err(err).Int("consumer", id).Msg("Queue pop failed")
				time.Sleep(BulkPollTimeout)
			}
			continue
		}
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// Process executes one job synchronously.
func (w *BulkWorker) Process(ctx context.Context, job *queue.Job) {
	log := logger.ForOperation(w.log, job.OperationID, string(job.Kind))
	log.Info().Dur("queued_for", time.Since(job.EnqueuedAt)).Msg("Processing bulk operation")

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Bulk operation panicked")
			w.fail(ctx, log, job, fmt.Errorf("internal error: %v", r))
		}
	}()

	progress := func(p tracker.Progress) {
		if err := w.tracker.UpdateProgress(ctx, job.OperationID, p); err != nil {
			log.Warn().Err(err).Msg("Failed to record progress")
		}
	}

	var (
		res *model.BulkResult
		err error
	)
	switch job.Kind {
	case model.OperationTenantCreate:
		res, err = w.tenants.Create(ctx, job.TenantRows, progress)
	case model.OperationTenantUpdate:
		res, err = w.tenants.Update(ctx, job.TenantRows, progress)
	case model.OperationEnrollmentImport:
		res, err = w.enrollments.ImportEnrollments(ctx, job.EnrollmentRows, progress)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if err != nil {
		w.fail(ctx, log, job, err)
		return
	}

	op, err := w.tracker.Complete(ctx, job.OperationID, res)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record completion")
		return
	}
	log.Info().
		Str("status", string(op.Status)).
		Int("successful", op.SuccessfulUpdates).
		Int("failed", op.FailedUpdates).
		Float64("seconds", op.ProcessingTimeSeconds).
		Msg("Bulk operation finished")
}

func (w *BulkWorker) fail(ctx context.Context, log zerolog.Logger, job *queue.Job, cause error) {
	log.Error().Err(cause).Msg("Bulk operation failed")
	if _, err := w.tracker.Fail(ctx, job.OperationID, cause); err != nil {
		log.Error().Err(err).Msg("Failed to record failure")
	}
}
