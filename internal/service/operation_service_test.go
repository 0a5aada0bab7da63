package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/queue"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

type brokenQueue struct{}

func (brokenQueue) Push(context.Context, *queue.Job) error { return errors.New("redis down") }
func (brokenQueue) Pop(context.Context, time.Duration) (*queue.Job, error) {
	return nil, queue.ErrEmpty
}
func (brokenQueue) Len(context.Context) (int64, error) { return 0, errors.New("redis down") }

func newTestTracker() *tracker.Tracker {
	return tracker.New(tracker.NewMemoryStore(time.Hour), tracker.NewMemoryEvents(), 100, nil, zerolog.Nop())
}

func TestOperationService_SubmitQueuesJob(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(1)
	svc := NewOperationService(newTestTracker(), q, zerolog.Nop())

	rows := tenantRows("A", "B")
	valErrs := []model.RowError{{RowNumber: 3, Error: "Missing school_code"}}
	op, err := svc.SubmitTenantRows(ctx, model.OperationTenantCreate, rows, valErrs)
	require.NoError(t, err)
	assert.Equal(t, model.OperationProcessing, op.Status)
	assert.Equal(t, 2, op.TotalRows)

	job, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, op.OperationID, job.OperationID)
	assert.Equal(t, model.OperationTenantCreate, job.Kind)
	assert.Len(t, job.TenantRows, 2)

	got, err := svc.Get(ctx, op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ErrorCount)

	list, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, op.OperationID, list[0].OperationID)
}

func TestOperationService_QueueFailureFailsOperation(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()
	svc := NewOperationService(tr, brokenQueue{}, zerolog.Nop())

	_, err := svc.SubmitEnrollmentRows(ctx, []model.EnrollmentRow{{RowNumber: 2}}, nil)
	require.Error(t, err)

	ops, err := tr.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.OperationFailed, ops[0].Status)
}

func TestOperationService_UnknownOperation(t *testing.T) {
	svc := NewOperationService(newTestTracker(), queue.NewMemoryQueue(1), zerolog.Nop())
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), tracker.ErrNotFound)
}
