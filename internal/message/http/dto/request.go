// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"

	"github.com/allisson/courier/internal/message/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// SendMessageRequest contains the parameters for sending a chat message.
type SendMessageRequest struct {
	ChatID       int64   `json:"chat_id"`
	SenderID     int64   `json:"sender_id"`
	Content      string  `json:"content"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// Validate checks if the send message request is valid.
func (r *SendMessageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ChatID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.SenderID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Content, validation.Required, customValidation.NotBlank, validation.Length(1, 4096)),
		validation.Field(&r.RecipientIDs, validation.Required, customValidation.PositiveIDs{}),
	)
}

// ToSendInput converts the request to a use case input.
func ToSendInput(r SendMessageRequest) usecase.SendInput {
	return usecase.SendInput{
		ChatID:       r.ChatID,
		SenderID:     r.SenderID,
		Content:      r.Content,
		RecipientIDs: r.RecipientIDs,
	}
}
