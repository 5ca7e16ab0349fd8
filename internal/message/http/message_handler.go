// Package http provides HTTP handlers for sending and reading chat messages.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/allisson/courier/internal/httputil"
	"github.com/allisson/courier/internal/message/http/dto"
	"github.com/allisson/courier/internal/message/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// MessageHandler handles HTTP requests for chat messages.
type MessageHandler struct {
	sender usecase.MessageSender
	reader usecase.MessageReader
	logger *slog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(sender usecase.MessageSender, reader usecase.MessageReader, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		sender: sender,
		reader: reader,
		logger: logger,
	}
}

// SendHandler accepts a message for asynchronous delivery.
// POST /v1/messages
// Returns 202 Accepted with the correlation id to poll for progress.
func (h *MessageHandler) SendHandler(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.sender.Send(c.Request.Context(), dto.ToSendInput(req))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.ToSendMessageResponse(result))
}

// ListChatMessagesHandler returns the most recent messages of a chat with
// decrypted content.
// GET /v1/chats/:chat_id/messages?limit=N
func (h *MessageHandler) ListChatMessagesHandler(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil || chatID <= 0 {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid chat_id parameter: must be a positive integer"),
			h.logger,
		)
		return
	}

	_, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	messages, err := h.reader.ListChatMessages(c.Request.Context(), chatID, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.ToListMessagesResponse(messages))
}
