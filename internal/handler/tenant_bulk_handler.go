package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/importer"
	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/response"
	"github.com/schoolhub/bulkops-backend/internal/service"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// uploadAccepted is returned when an upload has been queued.
type uploadAccepted struct {
	Message               string           `json:"message"`
	OperationType         string           `json:"operation_type"`
	OperationID           string           `json:"operation_id"`
	TotalRows             int              `json:"total_rows"`
	ValidationErrorsCount int              `json:"validation_errors_count"`
	ValidationErrors      []model.RowError `json:"validation_errors"`
}

// TenantBulkHandler handles tenant CSV/XLSX uploads and operation status.
type TenantBulkHandler struct {
	operations *service.OperationService
	maxUpload  int64
	log        zerolog.Logger
}

// NewTenantBulkHandler creates a new TenantBulkHandler.
func NewTenantBulkHandler(operations *service.OperationService, maxUpload int64, log zerolog.Logger) *TenantBulkHandler {
	return &TenantBulkHandler{
		operations: operations,
		maxUpload:  maxUpload,
		log:        log.With().Str("component", "tenant_bulk_handler").Logger(),
	}
}

// CreateCSV godoc
// POST /api/v1/tenants/bulk/create-csv
// Validates the upload and queues creation of new tenants.
func (h *TenantBulkHandler) CreateCSV(c *gin.Context) {
	h.submit(c, model.OperationTenantCreate, "CREATE",
		"CSV uploaded successfully. Creating new tenants in background.")
}

// UpdateCSV godoc
// POST /api/v1/tenants/bulk/update-csv
// Validates the upload and queues updates of existing tenants by school_code.
func (h *TenantBulkHandler) UpdateCSV(c *gin.Context) {
	h.submit(c, model.OperationTenantUpdate, "UPDATE",
		"CSV uploaded successfully. Updating existing tenants in background.")
}

func (h *TenantBulkHandler) submit(c *gin.Context, opType model.OperationType, label, message string) {
	table := readUpload(c, h.maxUpload, importer.TenantRequiredColumns, h.log)
	if table == nil {
		return
	}

	rows, errs := importer.ParseTenantRows(table)
	if len(rows) == 0 {
		failNoValidRows(c, errs)
		return
	}

	op, err := h.operations.SubmitTenantRows(c.Request.Context(), opType, rows, errs)
	if err != nil {
		h.log.Error().Err(err).Str("operation_type", string(opType)).Msg("Failed to queue tenant upload")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, uploadAccepted{
		Message:               message,
		OperationType:         label,
		OperationID:           op.OperationID,
		TotalRows:             len(rows),
		ValidationErrorsCount: len(errs),
		ValidationErrors:      sample(errs, acceptedErrorSample),
	})
}

// ValidateCSV godoc
// POST /api/v1/tenants/bulk/validate-csv
// Dry run: reports what an upload would do without queuing anything.
func (h *TenantBulkHandler) ValidateCSV(c *gin.Context) {
	table := readUpload(c, h.maxUpload, importer.TenantRequiredColumns, h.log)
	if table == nil {
		return
	}

	rows, errs := importer.ParseTenantRows(table)
	response.Success(c, http.StatusOK, gin.H{
		"is_valid":           len(errs) == 0,
		"total_rows":         len(rows) + len(errs),
		"valid_rows_count":   len(rows),
		"invalid_rows_count": len(errs),
		"validation_errors":  sample(errs, dryRunErrorSample),
		"sample_valid_data":  sample(rows, dryRunRowSample),
	})
}

// GetStatus godoc
// GET /api/v1/tenants/bulk/status/:operation_id
func (h *TenantBulkHandler) GetStatus(c *gin.Context) {
	op, err := h.operations.Get(c.Request.Context(), c.Param("operation_id"))
	if err != nil {
		h.failLookup(c, err)
		return
	}
	response.Success(c, http.StatusOK, op)
}

// ListOperations godoc
// GET /api/v1/tenants/bulk/operations?limit=50
func (h *TenantBulkHandler) ListOperations(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	ops, err := h.operations.List(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list operations")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"operations":       nonNil(ops),
		"total_operations": len(ops),
	})
}

// DeleteOperation godoc
// DELETE /api/v1/tenants/bulk/operations/:operation_id
func (h *TenantBulkHandler) DeleteOperation(c *gin.Context) {
	if err := h.operations.Delete(c.Request.Context(), c.Param("operation_id")); err != nil {
		h.failLookup(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Operation status deleted successfully"})
}

// DownloadTemplate godoc
// GET /api/v1/tenants/bulk/template/download
func (h *TenantBulkHandler) DownloadTemplate(c *gin.Context) {
	body, err := importer.Template()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to render template")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+importer.TemplateFilename)
	c.Data(http.StatusOK, "text/csv", body)
}

func (h *TenantBulkHandler) failLookup(c *gin.Context, err error) {
	if errors.Is(err, tracker.ErrNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrOperationNotFound)
		return
	}
	h.log.Error().Err(err).Msg("Failed to read operation")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
