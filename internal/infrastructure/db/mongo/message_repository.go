package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

type messageDoc struct {
	ID        int64     `bson:"_id"`
	SendID    int64     `bson:"send_id"`
	ReceiveID int64     `bson:"receive_id"`
	SentTime  time.Time `bson:"sent_time"`
}

type messageContentDoc struct {
	ID      int64  `bson:"_id"`
	Type    string `bson:"content_type"`
	Content string `bson:"content"`
}

// MessageRepository implements ports.MessageRepository over MongoDB. A
// message and its content are written and deleted in one transaction.
type MessageRepository struct {
	db *mongo.Database
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (int64, error) {
	if msg.Content == nil {
		return 0, domain.Invalid("message content is required")
	}

	var id int64
	err := withTx(ctx, r.db, func(sc mongo.SessionContext) error {
		var err error
		id, err = nextID(sc, r.db, messagesCollection)
		if err != nil {
			return err
		}
		if _, err := r.db.Collection(messagesCollection).InsertOne(sc, messageDoc{
			ID:        id,
			SendID:    msg.SendID,
			ReceiveID: msg.ReceiveID,
			SentTime:  msg.SentTime,
		}); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := r.db.Collection(messageContentsCollection).InsertOne(sc, messageContentDoc{
			ID:      id,
			Type:    msg.Content.Type,
			Content: msg.Content.Content,
		}); err != nil {
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
	var doc messageContentDoc
	err := r.db.Collection(messageContentsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("find message content: %w", err)
	}
	return &domain.MessageContent{ID: doc.ID, Type: doc.Type, Content: doc.Content}, nil
}

func (r *MessageRepository) ListAll(ctx context.Context) ([]domain.Message, error) {
	return r.list(ctx, bson.M{}, bson.D{{Key: "_id", Value: 1}})
}

func (r *MessageRepository) ListConversation(ctx context.Context, a, b int64) ([]domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"send_id": a, "receive_id": b},
		bson.M{"send_id": b, "receive_id": a},
	}}
	return r.list(ctx, filter, bson.D{{Key: "sent_time", Value: 1}, {Key: "_id", Value: 1}})
}

func (r *MessageRepository) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(sc mongo.SessionContext) error {
		res, err := r.db.Collection(messagesCollection).DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if res.DeletedCount == 0 {
			return domain.ErrMessageNotFound
		}
		if _, err := r.db.Collection(messageContentsCollection).DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return fmt.Errorf("delete message content: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) list(ctx context.Context, filter bson.M, sort bson.D) ([]domain.Message, error) {
	cur, err := r.db.Collection(messagesCollection).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Message{
			ID:        d.ID,
			SendID:    d.SendID,
			ReceiveID: d.ReceiveID,
			SentTime:  d.SentTime.UTC(),
		})
	}
	return out, nil
}

var _ ports.MessageRepository = (*MessageRepository)(nil)
