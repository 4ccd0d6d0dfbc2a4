package ports

import (
	"context"

	"github.com/tunachat/chat-api/internal/core/domain"
)

// MessageRepository persists messages together with their content.
type MessageRepository interface {
	// Create inserts the message and its content atomically and returns the
	// message id, which the content shares.
	Create(ctx context.Context, msg *domain.Message) (int64, error)
	// FindContentByID returns domain.ErrMessageNotFound when absent.
	FindContentByID(ctx context.Context, id int64) (*domain.MessageContent, error)
	ListAll(ctx context.Context) ([]domain.Message, error)
	// ListConversation returns messages exchanged between a and b in either
	// direction, oldest first.
	ListConversation(ctx context.Context, a, b int64) ([]domain.Message, error)
	// Delete removes the message and its content. Returns
	// domain.ErrMessageNotFound when absent.
	Delete(ctx context.Context, id int64) error
}
