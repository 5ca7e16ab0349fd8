package usecase

import (
	"context"

	"github.com/allisson/courier/internal/message/domain"
)

// MessageSender accepts messages for asynchronous delivery.
type MessageSender interface {
	Send(ctx context.Context, input SendInput) (*SendResult, error)
}

// MessageReader reads chat messages with decrypted content.
type MessageReader interface {
	ListChatMessages(ctx context.Context, chatID int64, limit int) ([]*domain.Message, error)
}

var (
	_ MessageSender = (*Sender)(nil)
	_ MessageReader = (*Reader)(nil)
)
