package ports

import (
	"context"
	"time"

	"github.com/tunachat/chat-api/internal/core/domain"
)

// SendMessageInput is the DTO passed from the transport layer to MessageService.
type SendMessageInput struct {
	SendID      int64
	ReceiveID   int64
	ContentType string
	Content     string
}

// ConversationEntry is a message envelope as listed in a conversation.
type ConversationEntry struct {
	ID        int64
	SendID    int64
	ReceiveID int64
	SentTime  time.Time
}

// MessageService defines use-case operations on the message ledger.
type MessageService interface {
	Send(ctx context.Context, in SendMessageInput) (int64, error)
	GetContent(ctx context.Context, id int64) (*domain.MessageContent, error)
	ListAll(ctx context.Context) ([]domain.Message, error)
	Conversation(ctx context.Context, a, b int64) ([]ConversationEntry, error)
	Delete(ctx context.Context, id int64) error
}
