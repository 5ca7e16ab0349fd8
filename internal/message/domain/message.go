// Package domain defines the chat message entity.
package domain

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	apperrors "github.com/allisson/courier/internal/errors"
)

// EventMessageBroadcast is the fan-out event carrying a published message to
// the chat's subscribers.
const EventMessageBroadcast = "message_broadcast"

// BroadcastPayload is the body of a message_broadcast event.
type BroadcastPayload struct {
	MessageID    int64   `json:"message_id"`
	ChatID       int64   `json:"chat_id"`
	Content      string  `json:"content"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// Message is a persisted chat message. Body holds the encrypted content; the
// plaintext never reaches the messages table.
type Message struct {
	MessageID int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message entity. CreatedAt is assigned by the database.
func NewMessage(messageID, chatID, senderID int64, body string) *Message {
	return &Message{
		MessageID: messageID,
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
	}
}

// NewMessageID generates a random positive message id. Ids are allocated
// before the message row exists so the delivery workflow can reference the
// message from its first event.
func NewMessageID() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, apperrors.Wrap(err, "failed to generate message id")
	}

	id := int64(binary.BigEndian.Uint64(buf[:]) >> 1)
	if id == 0 {
		id = 1
	}
	return id, nil
}
