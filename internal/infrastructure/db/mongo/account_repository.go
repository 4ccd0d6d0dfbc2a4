package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

type accountDoc struct {
	ID           int64  `bson:"_id"`
	Username     string `bson:"username"`
	PasswordHash string `bson:"password_hash"`
}

type roleDoc struct {
	ID   int64  `bson:"_id"`
	Name string `bson:"role_name"`
}

type accountRoleDoc struct {
	ID        int64 `bson:"_id"`
	AccountID int64 `bson:"account_id"`
	RoleID    int64 `bson:"role_id"`
}

// AccountRepository implements ports.AccountRepository and
// ports.RoleRepository over MongoDB. Integer ids come from the counters
// collection so both stores expose the same identifiers.
type AccountRepository struct {
	db *mongo.Database
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var doc accountDoc
	err := r.db.Collection(accountsCollection).FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &domain.Account{ID: doc.ID, Username: doc.Username, CredentialDigest: doc.PasswordHash}, nil
}

func (r *AccountRepository) UpdateCredentialDigest(ctx context.Context, accountID int64, digest string) error {
	res, err := r.db.Collection(accountsCollection).UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{"$set": bson.M{"password_hash": digest}},
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) error {
	return withTx(ctx, r.db, func(sc mongo.SessionContext) error {
		return fn(sc, identityTx{db: r.db})
	})
}

func (r *AccountRepository) ListRolesForAccount(ctx context.Context, accountID int64) ([]domain.Role, error) {
	cur, err := r.db.Collection(accountRolesCollection).Find(ctx, bson.M{"account_id": accountID})
	if err != nil {
		return nil, fmt.Errorf("list account roles: %w", err)
	}
	var grants []accountRoleDoc
	if err := cur.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("decode account roles: %w", err)
	}

	roles := make([]domain.Role, 0, len(grants))
	if len(grants) == 0 {
		return roles, nil
	}

	ids := make([]int64, 0, len(grants))
	for _, g := range grants {
		ids = append(ids, g.RoleID)
	}
	cur, err = r.db.Collection(rolesCollection).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	var docs []roleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	for _, d := range docs {
		roles = append(roles, domain.Role{ID: d.ID, Name: d.Name})
	}
	return roles, nil
}

// identityTx writes through the session context handed to it by WithinTx.
type identityTx struct {
	db *mongo.Database
}

func (t identityTx) InsertAccount(ctx context.Context, a *domain.Account) (int64, error) {
	id, err := nextID(ctx, t.db, accountsCollection)
	if err != nil {
		return 0, err
	}
	_, err = t.db.Collection(accountsCollection).InsertOne(ctx, accountDoc{
		ID:           id,
		Username:     a.Username,
		PasswordHash: a.CredentialDigest,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, domain.ErrUsernameTaken
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

func (t identityTx) InsertAccountRole(ctx context.Context, accountID, roleID int64) (int64, error) {
	n, err := t.db.Collection(accountsCollection).CountDocuments(ctx, bson.M{"_id": accountID})
	if err != nil {
		return 0, fmt.Errorf("insert account role: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("insert account role: %w", domain.ErrAccountNotFound)
	}

	id, err := nextID(ctx, t.db, accountRolesCollection)
	if err != nil {
		return 0, err
	}
	_, err = t.db.Collection(accountRolesCollection).InsertOne(ctx, accountRoleDoc{
		ID:        id,
		AccountID: accountID,
		RoleID:    roleID,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("insert account role: %w", domain.ErrConflict)
		}
		return 0, fmt.Errorf("insert account role: %w", err)
	}
	return id, nil
}

var (
	_ ports.AccountRepository = (*AccountRepository)(nil)
	_ ports.RoleRepository    = (*AccountRepository)(nil)
)
