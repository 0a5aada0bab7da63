package model

import "time"

// OperationStatus is the state of a tracked bulk operation.
type OperationStatus string

const (
	OperationProcessing          OperationStatus = "processing"
	OperationCompleted           OperationStatus = "completed"
	OperationCompletedWithErrors OperationStatus = "completed_with_errors"
	OperationFailed              OperationStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationCompletedWithErrors || s == OperationFailed
}

// OperationType identifies what a bulk operation does.
type OperationType string

const (
	OperationTenantCreate     OperationType = "tenant_create"
	OperationTenantUpdate     OperationType = "tenant_update"
	OperationEnrollmentImport OperationType = "enrollment_import"
)

// RowError describes a failure scoped to one input row, or to a whole
// chunk when BatchStart/BatchEnd are set.
type RowError struct {
	RowNumber  int               `json:"row_number,omitempty"`
	Field      string            `json:"field,omitempty"`
	Key        string            `json:"key,omitempty"`
	Error      string            `json:"error"`
	Data       map[string]string `json:"data,omitempty"`
	BatchStart *int              `json:"batch_start,omitempty"`
	BatchEnd   *int              `json:"batch_end,omitempty"`
}

// BulkOperation is the tracked status of an asynchronous bulk job.
type BulkOperation struct {
	OperationID           string          `json:"operation_id"`
	OperationType         OperationType   `json:"operation_type"`
	Status                OperationStatus `json:"status"`
	ProgressPercentage    int             `json:"progress_percentage"`
	TotalRows             int             `json:"total_rows"`
	ProcessedRows         int             `json:"processed_rows"`
	SuccessfulUpdates     int             `json:"successful_updates"`
	FailedUpdates         int             `json:"failed_updates"`
	ProcessingTimeSeconds float64         `json:"processing_time_seconds"`
	ErrorCount            int             `json:"error_count"`
	Errors                []RowError      `json:"errors"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

// OperationSummary is the list view of a bulk operation.
type OperationSummary struct {
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	TotalRows     int             `json:"total_rows"`
	ProcessedRows int             `json:"processed_rows"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Summary returns the list view of op.
func (op *BulkOperation) Summary() OperationSummary {
	return OperationSummary{
		OperationID:   op.OperationID,
		OperationType: op.OperationType,
		Status:        op.Status,
		TotalRows:     op.TotalRows,
		ProcessedRows: op.ProcessedRows,
		CreatedAt:     op.CreatedAt,
		CompletedAt:   op.CompletedAt,
	}
}

// BulkResult is what a bulk writer reports when it finishes.
type BulkResult struct {
	TotalRows  int
	Successful int
	Failed     int
	Errors     []RowError
}

// Status derives the terminal status for a finished run.
func (r *BulkResult) Status() OperationStatus {
	if r.Failed == 0 {
		return OperationCompleted
	}
	return OperationCompletedWithErrors
}
