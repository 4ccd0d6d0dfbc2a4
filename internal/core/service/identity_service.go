package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunachat/chat-api/internal/core/credential"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

const defaultPersistenceTimeout = 5 * time.Second

// CredentialCodec abstracts the password digest scheme.
type CredentialCodec interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
	NeedsRehash(digest string) bool
}

// IdentityService implements registration, login and profile management.
type IdentityService struct {
	accounts ports.AccountRepository
	profiles ports.ProfileRepository
	roles    *RoleStore
	codec    CredentialCodec
	tokens   ports.TokenIssuer
	timeout  time.Duration
	log      zerolog.Logger
}

// NewIdentityService wires the registry. Every persistence call is bounded by
// timeout; a non-positive value selects defaultPersistenceTimeout.
func NewIdentityService(
	accounts ports.AccountRepository,
	roles ports.RoleRepository,
	profiles ports.ProfileRepository,
	codec CredentialCodec,
	tokens ports.TokenIssuer,
	timeout time.Duration,
	log zerolog.Logger,
) *IdentityService {
	if timeout <= 0 {
		timeout = defaultPersistenceTimeout
	}
	return &IdentityService{
		accounts: accounts,
		profiles: profiles,
		roles:    NewRoleStore(roles),
		codec:    codec,
		tokens:   tokens,
		timeout:  timeout,
		log:      log,
	}
}

// Register creates an account holding the default User role. The account
// insert and the role grant commit in one transaction.
func (s *IdentityService) Register(ctx context.Context, username, password string) (*domain.Account, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Fast path only; the unique index on username is the authority.
	if _, err := s.accounts.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, domain.Persistence("register: find account", err)
	}

	digest, err := s.codec.Hash(password)
	if err != nil {
		if errors.Is(err, credential.ErrSecretTooLong) {
			return nil, domain.Invalid("password is too long")
		}
		return nil, fmt.Errorf("register: hash credential: %w", err)
	}

	account := &domain.Account{Username: username, CredentialDigest: digest}
	err = s.accounts.WithinTx(ctx, func(ctx context.Context, tx ports.IdentityTx) error {
		id, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		account.ID = id
		return s.roles.GrantDefaultRole(ctx, tx, id)
	})
	if err != nil {
		account.ID = 0
		return nil, domain.Persistence("register", err)
	}

	s.log.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Msg("account registered")

	return account, nil
}

// Authenticate verifies the credentials and returns a signed session token.
// Unknown usernames and wrong passwords yield the same error.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", domain.ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", domain.Persistence("authenticate: find account", err)
	}

	if !s.codec.Verify(password, account.CredentialDigest) {
		return "", domain.ErrInvalidCredentials
	}

	if s.codec.NeedsRehash(account.CredentialDigest) {
		s.upgradeDigest(ctx, account, password)
	}

	roles, err := s.roles.RolesOf(ctx, account.ID)
	if err != nil {
		return "", domain.Persistence("authenticate", err)
	}

	token, err := s.tokens.Issue(account, roles)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	s.log.Debug().Int64("account_id", account.ID).Strs("roles", roles).Msg("token issued")
	return token, nil
}

// upgradeDigest re-hashes a legacy digest with the active scheme. Failure is
// logged and does not fail the login.
func (s *IdentityService) upgradeDigest(ctx context.Context, account *domain.Account, password string) {
	digest, err := s.codec.Hash(password)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("credential rehash failed")
		return
	}
	if err := s.accounts.UpdateCredentialDigest(ctx, account.ID, digest); err != nil {
		s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("credential rehash not persisted")
		return
	}
	account.CredentialDigest = digest
	s.log.Info().Int64("account_id", account.ID).Msg("credential digest upgraded")
}

// CurrentIdentity projects already-verified claims. It never touches storage.
func (s *IdentityService) CurrentIdentity(identity domain.Identity) domain.Identity {
	roles := make([]string, len(identity.Roles))
	copy(roles, identity.Roles)
	return domain.Identity{ID: identity.ID, Username: identity.Username, Roles: roles}
}

// CreateProfile attaches a profile to the caller's account.
func (s *IdentityService) CreateProfile(ctx context.Context, identity domain.Identity, in ports.ProfileInput) (*domain.Profile, error) {
	accountID, err := accountIDOf(identity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, domain.Invalid("first_name and last_name are required")
	}
	if in.Age < 0 {
		return nil, domain.Invalid("age must not be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profile := &domain.Profile{
		AccountID:  accountID,
		FirstName:  in.FirstName,
		MiddleName: in.MiddleName,
		LastName:   in.LastName,
		Age:        in.Age,
		Email:      in.Email,
		Phone:      in.Phone,
		Province:   in.Province,
	}
	id, err := s.profiles.CreateProfile(ctx, profile)
	if err != nil {
		return nil, domain.Persistence("create profile", err)
	}
	profile.ID = id
	return profile, nil
}

// ListPeers returns the profiles of every account other than the caller's.
func (s *IdentityService) ListPeers(ctx context.Context, identity domain.Identity) ([]ports.PeerSummary, error) {
	accountID, err := accountIDOf(identity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profiles, err := s.profiles.ListProfilesExcept(ctx, accountID)
	if err != nil {
		return nil, domain.Persistence("list peers", err)
	}

	peers := make([]ports.PeerSummary, 0, len(profiles))
	for _, p := range profiles {
		peers = append(peers, ports.PeerSummary{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName})
	}
	return peers, nil
}

func validateCredentials(username, password string) error {
	switch {
	case strings.TrimSpace(username) == "":
		return domain.Invalid("username is required")
	case password == "":
		return domain.Invalid("password is required")
	case len(username) > domain.MaxUsernameLength:
		return domain.Invalid(fmt.Sprintf("username must be at most %d characters", domain.MaxUsernameLength))
	}
	return nil
}

func accountIDOf(identity domain.Identity) (int64, error) {
	id, err := strconv.ParseInt(identity.ID, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}

var _ ports.IdentityService = (*IdentityService)(nil)
