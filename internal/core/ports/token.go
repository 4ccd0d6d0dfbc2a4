package ports

import (
	"context"
	"time"

	"github.com/tunachat/chat-api/internal/core/domain"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(account *domain.Account, roles []string) (string, error)
}

// TokenVerifier validates a raw token and returns the identity it asserts.
// Every failure is reported as domain.ErrInvalidToken.
type TokenVerifier interface {
	Verify(raw string) (*domain.Identity, error)
}

// TokenDenylist records revoked token ids until their natural expiry.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
