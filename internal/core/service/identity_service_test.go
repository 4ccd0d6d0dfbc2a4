package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tunachat/chat-api/internal/core/credential"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
	"github.com/tunachat/chat-api/internal/core/token"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

var seededRoles = map[int64]string{
	domain.RoleIDAdmin: domain.RoleAdmin,
	domain.RoleIDUser:  domain.RoleUser,
}

type stubIdentityStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	grants   map[int64][]int64
	profiles []domain.Profile
	nextID   int64

	findErr   error
	insertErr error
	grantErr  error
	updateErr error
	rolesErr  error
	blockFind bool
}

func newStubIdentityStore() *stubIdentityStore {
	return &stubIdentityStore{
		accounts: make(map[string]*domain.Account),
		grants:   make(map[int64][]int64),
	}
}

func (s *stubIdentityStore) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	if s.blockFind {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *stubIdentityStore) UpdateCredentialDigest(_ context.Context, accountID int64, digest string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == accountID {
			a.CredentialDigest = digest
			return nil
		}
	}
	return domain.ErrAccountNotFound
}

type pendingGrant struct{ accountID, roleID int64 }

type stubTx struct {
	store    *stubIdentityStore
	accounts []*domain.Account
	grants   []pendingGrant
}

func (tx *stubTx) InsertAccount(_ context.Context, a *domain.Account) (int64, error) {
	if tx.store.insertErr != nil {
		return 0, tx.store.insertErr
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if _, exists := tx.store.accounts[a.Username]; exists {
		return 0, domain.ErrUsernameTaken
	}
	tx.store.nextID++
	clone := *a
	clone.ID = tx.store.nextID
	tx.accounts = append(tx.accounts, &clone)
	return clone.ID, nil
}

func (tx *stubTx) InsertAccountRole(_ context.Context, accountID, roleID int64) (int64, error) {
	if tx.store.grantErr != nil {
		return 0, tx.store.grantErr
	}
	tx.grants = append(tx.grants, pendingGrant{accountID, roleID})
	return int64(len(tx.grants)), nil
}

func (s *stubIdentityStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.IdentityTx) error) error {
	tx := &stubTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range tx.accounts {
		s.accounts[a.Username] = a
	}
	for _, g := range tx.grants {
		s.grants[g.accountID] = append(s.grants[g.accountID], g.roleID)
	}
	return nil
}

func (s *stubIdentityStore) ListRolesForAccount(_ context.Context, accountID int64) ([]domain.Role, error) {
	if s.rolesErr != nil {
		return nil, s.rolesErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]int64(nil), s.grants[accountID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	roles := make([]domain.Role, 0, len(ids))
	for _, id := range ids {
		roles = append(roles, domain.Role{ID: id, Name: seededRoles[id]})
	}
	return roles, nil
}

func (s *stubIdentityStore) CreateProfile(_ context.Context, p *domain.Profile) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.profiles {
		if existing.AccountID == p.AccountID {
			return 0, domain.ErrProfileExists
		}
	}
	clone := *p
	clone.ID = int64(len(s.profiles) + 1)
	s.profiles = append(s.profiles, clone)
	return clone.ID, nil
}

func (s *stubIdentityStore) ListProfilesExcept(_ context.Context, accountID int64) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Profile
	for _, p := range s.profiles {
		if p.AccountID != accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubIdentityStore) accountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTokenService(t *testing.T) *token.Service {
	t.Helper()
	tokens, err := token.New(token.Config{Secret: []byte("secret"), Issuer: "chat-api", Audience: "chat-clients"})
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	return tokens
}

func newIdentitySvc(t *testing.T, store *stubIdentityStore) *IdentityService {
	t.Helper()
	codec, err := credential.New(credential.SchemeSHA256)
	if err != nil {
		t.Fatalf("credential.New: %v", err)
	}
	return NewIdentityService(store, store, store, codec, newTokenService(t), time.Second, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestIdentityService_Register_Success(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)

	acc, err := svc.Register(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if acc.ID != 1 {
		t.Fatalf("expected id 1, got %d", acc.ID)
	}
	if acc.CredentialDigest != credential.SHA256Digest("secret1") {
		t.Fatalf("expected sha256 digest, got %s", acc.CredentialDigest)
	}

	roles, err := svc.roles.RolesOf(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("RolesOf: %v", err)
	}
	if len(roles) != 1 || roles[0] != domain.RoleUser {
		t.Fatalf("expected exactly [User], got %v", roles)
	}
}

func TestIdentityService_Register_DigestNotRendered(t *testing.T) {
	svc := newIdentitySvc(t, newStubIdentityStore())

	acc, err := svc.Register(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	b, _ := json.Marshal(acc)
	if strings.Contains(string(b), acc.CredentialDigest) {
		t.Fatalf("digest leaked into JSON: %s", b)
	}
}

func TestIdentityService_Register_Duplicate(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)

	if _, err := svc.Register(context.Background(), "alice", "secret1"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := svc.Register(context.Background(), "alice", "secret2")
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if store.accountCount() != 1 {
		t.Fatalf("expected exactly one account, got %d", store.accountCount())
	}
}

func TestIdentityService_Register_UsernameIsCaseSensitive(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)

	if _, err := svc.Register(context.Background(), "alice", "secret1"); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.Register(context.Background(), "Alice", "secret1"); err != nil {
		t.Fatalf("register Alice: %v", err)
	}
	if store.accountCount() != 2 {
		t.Fatalf("expected two accounts, got %d", store.accountCount())
	}
}

func TestIdentityService_Register_StoreConflictWins(t *testing.T) {
	store := newStubIdentityStore()
	store.insertErr = domain.ErrUsernameTaken // a concurrent registration got there first
	svc := newIdentitySvc(t, store)

	if _, err := svc.Register(context.Background(), "alice", "secret1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestIdentityService_Register_Validation(t *testing.T) {
	svc := newIdentitySvc(t, newStubIdentityStore())

	cases := []struct{ username, password string }{
		{"", "secret"},
		{"   ", "secret"},
		{"alice", ""},
		{strings.Repeat("a", domain.MaxUsernameLength+1), "secret"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.username, tc.password); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation for %q/%q, got %v", tc.username, tc.password, err)
		}
	}
}

func TestIdentityService_Register_RollsBackWhenGrantFails(t *testing.T) {
	store := newStubIdentityStore()
	store.grantErr = errors.New("fk violation")
	svc := newIdentitySvc(t, store)

	_, err := svc.Register(context.Background(), "alice", "secret1")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if store.accountCount() != 0 {
		t.Fatalf("account must not survive a failed role grant")
	}
}

func TestIdentityService_Register_LookupFailure(t *testing.T) {
	store := newStubIdentityStore()
	store.findErr = errors.New("connection refused")
	svc := newIdentitySvc(t, store)

	_, err := svc.Register(context.Background(), "alice", "secret1")
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestIdentityService_Register_Timeout(t *testing.T) {
	store := newStubIdentityStore()
	store.blockFind = true
	codec, _ := credential.New(credential.SchemeSHA256)
	svc := NewIdentityService(store, store, store, codec, newTokenService(t), 20*time.Millisecond, zerolog.Nop())

	_, err := svc.Register(context.Background(), "alice", "secret1")
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected persistence timeout, got %v", err)
	}
}

func TestIdentityService_Register_BcryptTooLong(t *testing.T) {
	store := newStubIdentityStore()
	codec, _ := credential.New(credential.SchemeBcrypt, credential.WithBcryptCost(bcrypt.MinCost))
	svc := NewIdentityService(store, store, store, codec, newTokenService(t), time.Second, zerolog.Nop())

	if _, err := svc.Register(context.Background(), "alice", strings.Repeat("p", 80)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestIdentityService_Authenticate_Success(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)

	acc, err := svc.Register(context.Background(), "carol", "s3cret")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	raw, err := svc.Authenticate(context.Background(), "carol", "s3cret")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	id, err := newTokenService(t).Verify(raw)
	if err != nil {
		t.Fatalf("token invalid: %v", err)
	}
	if id.ID != strconv.FormatInt(acc.ID, 10) || id.Username != "carol" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !id.HasRole(domain.RoleUser) || id.HasRole(domain.RoleAdmin) {
		t.Fatalf("expected role User only, got %v", id.Roles)
	}
}

func TestIdentityService_Authenticate_CarriesEveryRole(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)

	acc, _ := svc.Register(context.Background(), "root", "toor")
	store.grants[acc.ID] = append(store.grants[acc.ID], domain.RoleIDAdmin)

	raw, err := svc.Authenticate(context.Background(), "root", "toor")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	id, _ := newTokenService(t).Verify(raw)
	if len(id.Roles) != 2 || id.Roles[0] != domain.RoleAdmin || id.Roles[1] != domain.RoleUser {
		t.Fatalf("expected [Admin User], got %v", id.Roles)
	}
}

func TestIdentityService_Authenticate_FailuresAreUndifferentiated(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)
	_, _ = svc.Register(context.Background(), "dave", "goodpass")

	_, wrongPass := svc.Authenticate(context.Background(), "dave", "badpass")
	_, unknown := svc.Authenticate(context.Background(), "ghost", "pass")
	_, empty := svc.Authenticate(context.Background(), "", "")

	for _, err := range []error{wrongPass, unknown, empty} {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if wrongPass.Error() != unknown.Error() {
		t.Fatalf("wrong password and unknown user must look identical: %q vs %q", wrongPass, unknown)
	}
}

func TestIdentityService_Authenticate_RoleLookupFailure(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)
	_, _ = svc.Register(context.Background(), "erin", "pass")
	store.rolesErr = errors.New("timeout")

	if _, err := svc.Authenticate(context.Background(), "erin", "pass"); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestIdentityService_Authenticate_UpgradesLegacyDigest(t *testing.T) {
	store := newStubIdentityStore()
	legacy := newIdentitySvc(t, store)
	if _, err := legacy.Register(context.Background(), "frank", "pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	codec, _ := credential.New(credential.SchemeBcrypt, credential.WithBcryptCost(bcrypt.MinCost))
	upgraded := NewIdentityService(store, store, store, codec, newTokenService(t), time.Second, zerolog.Nop())

	if _, err := upgraded.Authenticate(context.Background(), "frank", "pass"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	stored, _ := store.FindByUsername(context.Background(), "frank")
	if !strings.HasPrefix(stored.CredentialDigest, "$2") {
		t.Fatalf("expected digest to be upgraded to bcrypt, got %s", stored.CredentialDigest)
	}
	if _, err := upgraded.Authenticate(context.Background(), "frank", "pass"); err != nil {
		t.Fatalf("authenticate with upgraded digest: %v", err)
	}
}

func TestIdentityService_Authenticate_RehashFailureDoesNotBlockLogin(t *testing.T) {
	store := newStubIdentityStore()
	legacy := newIdentitySvc(t, store)
	_, _ = legacy.Register(context.Background(), "gina", "pass")
	store.updateErr = errors.New("read only")

	codec, _ := credential.New(credential.SchemeBcrypt, credential.WithBcryptCost(bcrypt.MinCost))
	upgraded := NewIdentityService(store, store, store, codec, newTokenService(t), time.Second, zerolog.Nop())

	if _, err := upgraded.Authenticate(context.Background(), "gina", "pass"); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Scenario: register twice, then log in with good and bad passwords.
// ---------------------------------------------------------------------------

func TestIdentityService_Scenario(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "alice", "secret1")
	if err != nil || acc.ID != 1 {
		t.Fatalf("expected account 1, got %+v, %v", acc, err)
	}
	if _, err := svc.Register(ctx, "alice", "secret2"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	raw, err := svc.Authenticate(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	id, err := newTokenService(t).Verify(raw)
	if err != nil || !id.HasRole(domain.RoleUser) {
		t.Fatalf("expected role=User in token, got %+v, %v", id, err)
	}

	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Identity projection and profiles
// ---------------------------------------------------------------------------

func TestIdentityService_CurrentIdentity(t *testing.T) {
	svc := newIdentitySvc(t, newStubIdentityStore())

	in := domain.Identity{ID: "4", Username: "hank", Roles: []string{domain.RoleUser}, TokenID: "jti"}
	out := svc.CurrentIdentity(in)

	if out.ID != "4" || out.Username != "hank" || len(out.Roles) != 1 {
		t.Fatalf("unexpected projection: %+v", out)
	}
	if out.TokenID != "" {
		t.Fatalf("projection must not carry token internals")
	}
	in.Roles[0] = "mutated"
	if out.Roles[0] != domain.RoleUser {
		t.Fatalf("projection must not alias the input roles")
	}
}

func TestIdentityService_Profiles(t *testing.T) {
	store := newStubIdentityStore()
	svc := newIdentitySvc(t, store)
	ctx := context.Background()

	alice := domain.Identity{ID: "1", Username: "alice"}
	bob := domain.Identity{ID: "2", Username: "bob"}

	if _, err := svc.CreateProfile(ctx, alice, ports.ProfileInput{FirstName: "Alice", LastName: "Liddell", Age: 20}); err != nil {
		t.Fatalf("create alice profile: %v", err)
	}
	if _, err := svc.CreateProfile(ctx, bob, ports.ProfileInput{FirstName: "Bob", LastName: "Builder"}); err != nil {
		t.Fatalf("create bob profile: %v", err)
	}
	if _, err := svc.CreateProfile(ctx, alice, ports.ProfileInput{FirstName: "A", LastName: "L"}); !errors.Is(err, domain.ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}

	peers, err := svc.ListPeers(ctx, alice)
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 1 || peers[0].FirstName != "Bob" {
		t.Fatalf("expected only bob, got %+v", peers)
	}
}

func TestIdentityService_CreateProfile_Validation(t *testing.T) {
	svc := newIdentitySvc(t, newStubIdentityStore())
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, domain.Identity{ID: "1"}, ports.ProfileInput{LastName: "L"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.CreateProfile(ctx, domain.Identity{ID: "1"}, ports.ProfileInput{FirstName: "F", LastName: "L", Age: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative age, got %v", err)
	}
	if _, err := svc.CreateProfile(ctx, domain.Identity{ID: "abc"}, ports.ProfileInput{FirstName: "F", LastName: "L"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for malformed subject, got %v", err)
	}
}
