package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageSender string

const (
	MessageSenderUser      = MessageSender("user")
	MessageSenderAssistant = MessageSender("assistant")
)

// Message is a single transcript entry. It is never changed after it has
// been appended.
type Message struct {
	ID        uuid.UUID
	Content   string
	Sender    MessageSender
	CreatedAt time.Time
}

func NewMessage(content string, sender MessageSender) Message {
	return Message{
		ID:        uuid.New(),
		Content:   content,
		Sender:    sender,
		CreatedAt: time.Now(),
	}
}

func (m Message) IsFromUser() bool {
	return m.Sender == MessageSenderUser
}
