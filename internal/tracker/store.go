// Package tracker records the status of asynchronous bulk operations.
package tracker

import (
	"context"
	"errors"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

var (
	// ErrNotFound is returned for unknown or expired operation ids.
	ErrNotFound = errors.New("operation not found")
	// ErrTerminal is returned when mutating a finished operation.
	ErrTerminal = errors.New("operation already finished")
	// ErrExists is returned when creating an operation id twice.
	ErrExists = errors.New("operation already exists")
)

// Store persists operation documents. Update applies fn atomically with
// respect to other updates of the same id; fn's error aborts the write.
type Store interface {
	Create(ctx context.Context, op *model.BulkOperation) error
	Get(ctx context.Context, id string) (*model.BulkOperation, error)
	Update(ctx context.Context, id string, fn func(op *model.BulkOperation) error) (*model.BulkOperation, error)
	List(ctx context.Context, limit int) ([]*model.BulkOperation, error)
	Delete(ctx context.Context, id string) error
}

func clone(op *model.BulkOperation) *model.BulkOperation {
	cp := *op
	cp.Errors = append([]model.RowError(nil), op.Errors...)
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
