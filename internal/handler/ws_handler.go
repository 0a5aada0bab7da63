package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/response"
	"github.com/schoolhub/bulkops-backend/internal/service"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
	ws "github.com/schoolhub/bulkops-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams bulk operation progress.
type WSHandler struct {
	operations *service.OperationService
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(operations *service.OperationService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		operations: operations,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
	}
}

// OperationStream godoc
// WS /ws/v1/bulk/operations/:operation_id/stream
// Sends the current snapshot, then one event per state change until the
// operation is terminal.
func (h *WSHandler) OperationStream(c *gin.Context) {
	id := c.Param("operation_id")
	// Operation ids end up in Redis keys, so only well-formed UUIDs pass.
	if _, err := uuid.Parse(id); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctx := c.Request.Context()

	// Subscribe before reading the snapshot so no transition is missed.
	events, unsubscribe, err := h.operations.Subscribe(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("operation_id", id).Msg("Subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer unsubscribe()

	op, err := h.operations.Get(ctx, id)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrOperationNotFound)
			return
		}
		h.log.Error().Err(err).Str("operation_id", id).Msg("Failed to read operation")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("operation_id", id).Logger()
	wsLog.Debug().Msg("Progress stream opened")

	if err := ws.WriteOperation(conn, ws.EventSnapshot, op); err != nil || op.Status.Terminal() {
		ws.Close(conn, "operation finished")
		return
	}

	gone := ws.DrainReads(conn)
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			wsLog.Debug().Msg("Client left progress stream")
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		case next, ok := <-events:
			if !ok {
				ws.WriteError(conn, "progress feed closed")
				return
			}
			if err := ws.WriteOperation(conn, ws.EventProgress, next); err != nil {
				wsLog.Debug().Err(err).Msg("Progress write failed")
				return
			}
			if next.Status.Terminal() {
				ws.Close(conn, "operation finished")
				return
			}
		}
	}
}
