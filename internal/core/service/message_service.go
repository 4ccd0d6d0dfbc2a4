package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

type messageService struct {
	repo    ports.MessageRepository
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewMessageService returns a MessageService implementation.
func NewMessageService(repo ports.MessageRepository, timeout time.Duration, log zerolog.Logger) ports.MessageService {
	if timeout <= 0 {
		timeout = defaultPersistenceTimeout
	}
	return &messageService{
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
		log:     log,
	}
}

// Send stamps the message with the current time and stores it with its content.
func (s *messageService) Send(ctx context.Context, in ports.SendMessageInput) (int64, error) {
	if in.SendID <= 0 || in.ReceiveID <= 0 {
		return 0, domain.Invalid("send_id and receive_id must be positive")
	}
	if strings.TrimSpace(in.Content) == "" {
		return 0, domain.Invalid("content is required")
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeText
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := &domain.Message{
		SendID:    in.SendID,
		ReceiveID: in.ReceiveID,
		SentTime:  s.now().UTC(),
		Content:   &domain.MessageContent{Type: contentType, Content: in.Content},
	}
	id, err := s.repo.Create(ctx, msg)
	if err != nil {
		return 0, domain.Persistence("send message", err)
	}

	s.log.Debug().
		Int64("message_id", id).
		Int64("send_id", in.SendID).
		Int64("receive_id", in.ReceiveID).
		Msg("message stored")

	return id, nil
}

func (s *messageService) GetContent(ctx context.Context, id int64) (*domain.MessageContent, error) {
	if id <= 0 {
		return nil, domain.ErrMessageNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.repo.FindContentByID(ctx, id)
	if err != nil {
		return nil, domain.Persistence("get message content", err)
	}
	return content, nil
}

func (s *messageService) ListAll(ctx context.Context) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, domain.Persistence("list messages", err)
	}
	return msgs, nil
}

// Conversation lists the envelopes exchanged between a and b in both directions.
func (s *messageService) Conversation(ctx context.Context, a, b int64) ([]ports.ConversationEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.repo.ListConversation(ctx, a, b)
	if err != nil {
		return nil, domain.Persistence("list conversation", err)
	}

	entries := make([]ports.ConversationEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, ports.ConversationEntry{
			ID:        m.ID,
			SendID:    m.SendID,
			ReceiveID: m.ReceiveID,
			SentTime:  m.SentTime,
		})
	}
	return entries, nil
}

// Delete removes the message; its content goes with it.
func (s *messageService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrMessageNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Delete(ctx, id); err != nil {
		return domain.Persistence("delete message", err)
	}
	s.log.Info().Int64("message_id", id).Msg("message deleted")
	return nil
}
