package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

// MessageRepository implements ports.MessageRepository over PostgreSQL.
// Content rows share the id of their message and are removed by
// ON DELETE CASCADE.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (int64, error) {
	if msg.Content == nil {
		return 0, domain.Invalid("message content is required")
	}

	var id int64
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO messages (send_id, receive_id, sent_time) VALUES ($1, $2, $3) RETURNING id`,
			msg.SendID, msg.ReceiveID, msg.SentTime,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO message_contents (id, content_type, content) VALUES ($1, $2, $3)`,
			id, msg.Content.Type, msg.Content.Content,
		); err != nil {
			return fmt.Errorf("insert message content: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *MessageRepository) FindContentByID(ctx context.Context, id int64) (*domain.MessageContent, error) {
	var c domain.MessageContent
	err := r.pool.QueryRow(ctx,
		`SELECT id, content_type, content FROM message_contents WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Type, &c.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message content: %w", err)
	}
	return &c, nil
}

func (r *MessageRepository) ListAll(ctx context.Context) ([]domain.Message, error) {
	return r.list(ctx,
		`SELECT id, send_id, receive_id, sent_time FROM messages ORDER BY id`)
}

func (r *MessageRepository) ListConversation(ctx context.Context, a, b int64) ([]domain.Message, error) {
	return r.list(ctx,
		`SELECT id, send_id, receive_id, sent_time
		   FROM messages
		  WHERE (send_id = $1 AND receive_id = $2) OR (send_id = $2 AND receive_id = $1)
		  ORDER BY sent_time, id`,
		a, b)
}

func (r *MessageRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) list(ctx context.Context, sql string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SendID, &m.ReceiveID, &m.SentTime); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SentTime = m.SentTime.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

var _ ports.MessageRepository = (*MessageRepository)(nil)
