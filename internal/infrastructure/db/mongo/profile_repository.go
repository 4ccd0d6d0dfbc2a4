package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

type profileDoc struct {
	ID         int64  `bson:"_id"`
	AccountID  int64  `bson:"account_id"`
	FirstName  string `bson:"first_name"`
	MiddleName string `bson:"middle_name,omitempty"`
	LastName   string `bson:"last_name"`
	Age        int    `bson:"age"`
	Email      string `bson:"email"`
	Phone      string `bson:"phone_number"`
	Province   string `bson:"province,omitempty"`
}

// ProfileRepository implements ports.ProfileRepository over MongoDB.
type ProfileRepository struct {
	db *mongo.Database
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, p *domain.Profile) (int64, error) {
	n, err := r.db.Collection(accountsCollection).CountDocuments(ctx, bson.M{"_id": p.AccountID})
	if err != nil {
		return 0, fmt.Errorf("insert profile: %w", err)
	}
	if n == 0 {
		return 0, domain.ErrAccountNotFound
	}

	id, err := nextID(ctx, r.db, profilesCollection)
	if err != nil {
		return 0, err
	}
	_, err = r.db.Collection(profilesCollection).InsertOne(ctx, profileDoc{
		ID:         id,
		AccountID:  p.AccountID,
		FirstName:  p.FirstName,
		MiddleName: p.MiddleName,
		LastName:   p.LastName,
		Age:        p.Age,
		Email:      p.Email,
		Phone:      p.Phone,
		Province:   p.Province,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, domain.ErrProfileExists
		}
		return 0, fmt.Errorf("insert profile: %w", err)
	}
	return id, nil
}

func (r *ProfileRepository) ListProfilesExcept(ctx context.Context, accountID int64) ([]domain.Profile, error) {
	cur, err := r.db.Collection(profilesCollection).Find(ctx,
		bson.M{"account_id": bson.M{"$ne": accountID}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	var out []domain.Profile
	for _, d := range docs {
		out = append(out, domain.Profile{
			ID:         d.ID,
			AccountID:  d.AccountID,
			FirstName:  d.FirstName,
			MiddleName: d.MiddleName,
			LastName:   d.LastName,
			Age:        d.Age,
			Email:      d.Email,
			Phone:      d.Phone,
			Province:   d.Province,
		})
	}
	return out, nil
}

var _ ports.ProfileRepository = (*ProfileRepository)(nil)
