package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/importer"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/response"
	"github.com/schoolhub/bulkops-backend/internal/service"
	"github.com/schoolhub/bulkops-backend/internal/validator"
)

// EnrollmentOperations is the enrollment service surface used by the handler.
type EnrollmentOperations interface {
	BulkEnroll(ctx context.Context, req *model.BulkEnrollRequest) (*model.BulkEnrollResult, error)
	Rollover(ctx context.Context, req *model.RolloverRequest) (*model.RolloverResult, error)
	UpdateStatus(ctx context.Context, req *model.BulkStatusUpdateRequest) (*model.BulkUpdateResult, error)
	Transfer(ctx context.Context, req *model.BulkTransferRequest) (*model.TransferResult, error)
	Withdraw(ctx context.Context, req *model.BulkWithdrawRequest) (*model.BulkUpdateResult, error)
	Delete(ctx context.Context, req *model.BulkDeleteRequest) (*model.BulkUpdateResult, error)
	EnrollByGrade(ctx context.Context, req *model.EnrollByGradeRequest) (*model.AssignmentResult, error)
	AutoAssign(ctx context.Context, req *model.AutoAssignRequest) (*model.AssignmentResult, error)
	Statistics(ctx context.Context, tenantID uuid.UUID, year *string) (*model.EnrollmentStatistics, error)
}

// EnrollmentHandler handles bulk enrollment endpoints.
type EnrollmentHandler struct {
	enrollments EnrollmentOperations
	operations  *service.OperationService
	maxUpload   int64
	log         zerolog.Logger
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(enrollments EnrollmentOperations, operations *service.OperationService, maxUpload int64, log zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		operations:  operations,
		maxUpload:   maxUpload,
		log:         log.With().Str("component", "enrollment_handler").Logger(),
	}
}

// BulkEnroll godoc
// POST /api/v1/enrollments/bulk
// Enrolls many students into one class, all-or-nothing on capacity.
func (h *EnrollmentHandler) BulkEnroll(c *gin.Context) {
	var req model.BulkEnrollRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.BulkEnroll(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Rollover godoc
// POST /api/v1/enrollments/bulk/academic-year-rollover
// Promotes every student with an active enrollment in current_year.
func (h *EnrollmentHandler) Rollover(c *gin.Context) {
	var req model.RolloverRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.Rollover(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// UpdateStatus godoc
// POST /api/v1/enrollments/bulk/update-status
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req model.BulkStatusUpdateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.UpdateStatus(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Transfer godoc
// POST /api/v1/enrollments/bulk/transfer
func (h *EnrollmentHandler) Transfer(c *gin.Context) {
	var req model.BulkTransferRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.Transfer(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Withdraw godoc
// POST /api/v1/enrollments/bulk/withdraw
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	var req model.BulkWithdrawRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.Withdraw(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Delete godoc
// POST /api/v1/enrollments/bulk/delete
// Soft-deletes enrollments.
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	var req model.BulkDeleteRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.Delete(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// EnrollByGrade godoc
// POST /api/v1/enrollments/bulk/enroll-by-grade
func (h *EnrollmentHandler) EnrollByGrade(c *gin.Context) {
	var req model.EnrollByGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.EnrollByGrade(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// AutoAssign godoc
// POST /api/v1/enrollments/bulk/auto-assign
func (h *EnrollmentHandler) AutoAssign(c *gin.Context) {
	var req model.AutoAssignRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.enrollments.AutoAssign(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Statistics godoc
// GET /api/v1/enrollments/statistics?tenant_id=&academic_year=
func (h *EnrollmentHandler) Statistics(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrInvalidID,
			response.GetMessage(response.ErrInvalidID), "tenant_id")
		return
	}
	var year *string
	if y := c.Query("academic_year"); y != "" {
		year = &y
	}

	stats, err := h.enrollments.Statistics(c.Request.Context(), tenantID, year)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ImportCSV godoc
// POST /api/v1/enrollments/bulk/import-csv
// Validates an enrollment upload and queues it for background import.
func (h *EnrollmentHandler) ImportCSV(c *gin.Context) {
	table := readUpload(c, h.maxUpload, importer.EnrollmentRequiredColumns, h.log)
	if table == nil {
		return
	}

	rows, errs := importer.ParseEnrollmentRows(table)
	if len(rows) == 0 {
		failNoValidRows(c, errs)
		return
	}

	op, err := h.operations.SubmitEnrollmentRows(c.Request.Context(), rows, errs)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to queue enrollment upload")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, uploadAccepted{
		Message:               "CSV uploaded successfully. Importing enrollments in background.",
		OperationType:         "IMPORT",
		OperationID:           op.OperationID,
		TotalRows:             len(rows),
		ValidationErrorsCount: len(errs),
		ValidationErrors:      sample(errs, acceptedErrorSample),
	})
}

func (h *EnrollmentHandler) fail(c *gin.Context, err error) {
	var capErr *service.CapacityError
	switch {
	case errors.As(err, &capErr):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrCapacityExceeded, capErr.Error(), "")
	case errors.Is(err, service.ErrClassNotFound):
		response.FailWithMessage(c, http.StatusNotFound, response.ErrNotFound, "Class not found", "class_id")
	case errors.Is(err, service.ErrTenantNotFound):
		response.FailWithMessage(c, http.StatusNotFound, response.ErrNotFound, "Tenant not found", "tenant_id")
	case errors.Is(err, service.ErrSameAcademicYear):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation,
			"New academic year must be different from current year", "new_year")
	case errors.Is(err, service.ErrSameClass):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation,
			"Source and target class must differ", "to_class_id")
	case errors.Is(err, service.ErrClassTenantMismatch):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation,
			"Classes belong to different tenants", "")
	case errors.Is(err, service.ErrEnrollmentConflict):
		response.FailWithMessage(c, http.StatusConflict, response.ErrConflict,
			"Enrollment changed concurrently, retry the request", "")
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Enrollment operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
