package dto

import (
	"time"

	"github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/message/usecase"
)

// SendMessageResponse acknowledges an accepted delivery. Clients poll the
// operations endpoint with the correlation id for progress.
type SendMessageResponse struct {
	CorrelationID string `json:"correlation_id"`
	MessageID     int64  `json:"message_id"`
}

// ToSendMessageResponse converts a send result to a response DTO.
func ToSendMessageResponse(result *usecase.SendResult) SendMessageResponse {
	return SendMessageResponse{
		CorrelationID: result.CorrelationID.String(),
		MessageID:     result.MessageID,
	}
}

// MessageResponse is a chat message with decrypted content.
type MessageResponse struct {
	MessageID int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessagesResponse wraps a chat message listing.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ToListMessagesResponse converts domain messages to a response DTO.
func ToListMessagesResponse(messages []*domain.Message) ListMessagesResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, MessageResponse{
			MessageID: message.MessageID,
			ChatID:    message.ChatID,
			SenderID:  message.SenderID,
			Body:      message.Body,
			CreatedAt: message.CreatedAt,
		})
	}
	return ListMessagesResponse{Messages: out}
}
