package ports

import (
	"context"

	"github.com/tunachat/chat-api/internal/core/domain"
)

// ProfileInput carries the fields of a new profile.
type ProfileInput struct {
	FirstName  string
	MiddleName string
	LastName   string
	Age        int
	Email      string
	Phone      string
	Province   string
}

// PeerSummary is the public view of another account's profile.
type PeerSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// IdentityService orchestrates registration, authentication and profiles.
type IdentityService interface {
	Register(ctx context.Context, username, password string) (*domain.Account, error)
	Authenticate(ctx context.Context, username, password string) (string, error)
	CurrentIdentity(identity domain.Identity) domain.Identity
	CreateProfile(ctx context.Context, identity domain.Identity, in ProfileInput) (*domain.Profile, error)
	ListPeers(ctx context.Context, identity domain.Identity) ([]PeerSummary, error)
}
