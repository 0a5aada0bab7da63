package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/response"
	"github.com/schoolhub/bulkops-backend/internal/service"
)

// ClassOperations is the class service surface used by the handler.
type ClassOperations interface {
	Capacity(ctx context.Context, id uuid.UUID) (*model.ClassCapacity, error)
	Reconcile(ctx context.Context, tenantID *uuid.UUID) (*model.ReconcileResult, error)
}

// ClassHandler exposes class occupancy and counter reconciliation.
type ClassHandler struct {
	classes ClassOperations
	log     zerolog.Logger
}

// NewClassHandler creates a new ClassHandler.
func NewClassHandler(classes ClassOperations, log zerolog.Logger) *ClassHandler {
	return &ClassHandler{
		classes: classes,
		log:     log.With().Str("component", "class_handler").Logger(),
	}
}

// GetCapacity godoc
// GET /api/v1/classes/:id/capacity
func (h *ClassHandler) GetCapacity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	capacity, err := h.classes.Capacity(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrClassNotFound) {
			response.FailWithMessage(c, http.StatusNotFound, response.ErrNotFound, "Class not found", "id")
			return
		}
		h.log.Error().Err(err).Str("class_id", id.String()).Msg("Failed to read class capacity")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, capacity)
}

// Reconcile godoc
// POST /api/v1/classes/reconcile?tenant_id=
// Recomputes enrollment counters from active enrollments, for one tenant
// or all of them.
func (h *ClassHandler) Reconcile(c *gin.Context) {
	var tenantID *uuid.UUID
	if raw := c.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.FailWithMessage(c, http.StatusBadRequest, response.ErrInvalidID,
				response.GetMessage(response.ErrInvalidID), "tenant_id")
			return
		}
		tenantID = &id
	}

	res, err := h.classes.Reconcile(c.Request.Context(), tenantID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reconcile counters")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, res)
}
