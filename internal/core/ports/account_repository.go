package ports

import (
	"context"

	"github.com/tunachat/chat-api/internal/core/domain"
)

// IdentityTx is the write surface available inside an account-creation
// transaction. All writes made through it commit or roll back together.
type IdentityTx interface {
	// InsertAccount persists a new account and returns its assigned id.
	// A duplicate username yields domain.ErrUsernameTaken.
	InsertAccount(ctx context.Context, account *domain.Account) (int64, error)
	InsertAccountRole(ctx context.Context, accountID, roleID int64) (int64, error)
}

// AccountRepository defines account persistence.
type AccountRepository interface {
	// FindByUsername performs a case-sensitive exact match. Returns
	// domain.ErrAccountNotFound when absent.
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	UpdateCredentialDigest(ctx context.Context, accountID int64, digest string) error
	// WithinTx runs fn in a single transaction, rolling back if fn returns an error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx IdentityTx) error) error
}

// RoleRepository resolves role grants against the seeded roles.
type RoleRepository interface {
	// ListRolesForAccount returns the account's roles ordered by role id.
	ListRolesForAccount(ctx context.Context, accountID int64) ([]domain.Role, error)
}

// ProfileRepository stores the one-to-one personal profile of an account.
type ProfileRepository interface {
	// CreateProfile returns domain.ErrProfileExists if the account already has one.
	CreateProfile(ctx context.Context, profile *domain.Profile) (int64, error)
	ListProfilesExcept(ctx context.Context, accountID int64) ([]domain.Profile, error)
}
