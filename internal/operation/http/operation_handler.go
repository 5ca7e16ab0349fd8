// Package http provides HTTP handlers for the operation tracking ledger.
// Clients poll these endpoints with the correlation id returned by a send
// request to observe workflow progress and outcome.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/operation/http/dto"
	"github.com/allisson/courier/internal/operation/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// OperationHandler handles HTTP requests for operation tracking.
type OperationHandler struct {
	operationUseCase usecase.OperationUseCase
	logger           *slog.Logger
}

// NewOperationHandler creates a new operation handler.
func NewOperationHandler(operationUseCase usecase.OperationUseCase, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{
		operationUseCase: operationUseCase,
		logger:           logger,
	}
}

// GetHandler retrieves an operation by correlation id.
// GET /v1/operations/:correlation_id
func (h *OperationHandler) GetHandler(c *gin.Context) {
	correlationID, err := uuid.Parse(c.Param("correlation_id"))
	if err != nil {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid correlation_id parameter: must be a valid uuid"),
			h.logger,
		)
		return
	}

	op, err := h.operationUseCase.Get(c.Request.Context(), correlationID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToOperationResponse(op))
}

// CancelHandler cancels an active operation.
// POST /v1/operations/:correlation_id/cancel
func (h *OperationHandler) CancelHandler(c *gin.Context) {
	correlationID, err := uuid.Parse(c.Param("correlation_id"))
	if err != nil {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid correlation_id parameter: must be a valid uuid"),
			h.logger,
		)
		return
	}

	var req dto.CancelOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if err := h.operationUseCase.Cancel(c.Request.Context(), correlationID, req.Reason); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	op, err := h.operationUseCase.Get(c.Request.Context(), correlationID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToOperationResponse(op))
}

// ListByChatHandler retrieves operations attached to a chat.
// GET /v1/chats/:chat_id/operations
func (h *OperationHandler) ListByChatHandler(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil || chatID < 1 {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid chat_id parameter: must be a positive integer"),
			h.logger,
		)
		return
	}

	ops, err := h.operationUseCase.ListByChat(c.Request.Context(), chatID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToListOperationsResponse(ops))
}

// ListByUserHandler retrieves a page of a user's operations.
// GET /v1/users/:user_id/operations?offset=0&limit=50
func (h *OperationHandler) ListByUserHandler(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID < 1 {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid user_id parameter: must be a positive integer"),
			h.logger,
		)
		return
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	ops, total, err := h.operationUseCase.ListByUser(c.Request.Context(), userID, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToPagedOperationsResponse(ops, offset, limit, total))
}
