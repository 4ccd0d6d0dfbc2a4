package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tunachat/chat-api/internal/api/middleware"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

type stubIdentityService struct {
	registerFn     func(ctx context.Context, username, password string) (*domain.Account, error)
	authenticateFn func(ctx context.Context, username, password string) (string, error)
	profileFn      func(ctx context.Context, identity domain.Identity, in ports.ProfileInput) (*domain.Profile, error)
	peersFn        func(ctx context.Context, identity domain.Identity) ([]ports.PeerSummary, error)
}

func (s *stubIdentityService) Register(ctx context.Context, username, password string) (*domain.Account, error) {
	return s.registerFn(ctx, username, password)
}

func (s *stubIdentityService) Authenticate(ctx context.Context, username, password string) (string, error) {
	return s.authenticateFn(ctx, username, password)
}

func (s *stubIdentityService) CurrentIdentity(identity domain.Identity) domain.Identity {
	return domain.Identity{ID: identity.ID, Username: identity.Username, Roles: identity.Roles}
}

func (s *stubIdentityService) CreateProfile(ctx context.Context, identity domain.Identity, in ports.ProfileInput) (*domain.Profile, error) {
	return s.profileFn(ctx, identity, in)
}

func (s *stubIdentityService) ListPeers(ctx context.Context, identity domain.Identity) ([]ports.PeerSummary, error) {
	return s.peersFn(ctx, identity)
}

type recordingDenylist struct {
	tokenID string
	until   time.Time
	err     error
}

func (d *recordingDenylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	d.tokenID, d.until = tokenID, until
	return d.err
}

func (d *recordingDenylist) IsRevoked(context.Context, string) (bool, error) { return false, nil }

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestAccountHandler_Register(t *testing.T) {
	e := newEcho()
	svc := &stubIdentityService{
		registerFn: func(_ context.Context, username, password string) (*domain.Account, error) {
			if username != "alice" || password != "secret" {
				t.Fatalf("unexpected credentials %q/%q", username, password)
			}
			return &domain.Account{ID: 1, Username: "alice", CredentialDigest: "digest"}, nil
		},
	}
	h := NewAccountHandler(svc, nil, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/account/register", `{"username":"alice","password":"secret"}`), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "digest") {
		t.Fatalf("credential digest leaked: %s", rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["username"] != "alice" || got["id"] != float64(1) {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestAccountHandler_RegisterValidation(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{
		registerFn: func(context.Context, string, string) (*domain.Account, error) {
			t.Fatalf("service should not be called")
			return nil, nil
		},
	}, nil, CookieOptions{})

	for _, body := range []string{
		`{"username":"","password":"secret"}`,
		`{"username":"alice","password":""}`,
		`{"username":"` + strings.Repeat("a", 65) + `","password":"x"}`,
		`{not json`,
	} {
		c := e.NewContext(jsonRequest(http.MethodPost, "/account/register", body), httptest.NewRecorder())
		if code := httpCode(t, h.Register(c)); code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, code)
		}
	}
}

func TestAccountHandler_RegisterConflictPropagates(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{
		registerFn: func(context.Context, string, string) (*domain.Account, error) {
			return nil, domain.ErrUsernameTaken
		},
	}, nil, CookieOptions{})

	c := e.NewContext(jsonRequest(http.MethodPost, "/account/register", `{"username":"alice","password":"x"}`), httptest.NewRecorder())
	if err := h.Register(c); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAccountHandler_LoginSetsCookie(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{
		authenticateFn: func(context.Context, string, string) (string, error) {
			return "signed.token.value", nil
		},
	}, nil, CookieOptions{Secure: true, TTL: time.Hour})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/account/login", `{"username":"alice","password":"x"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Token != "signed.token.value" {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	ck := cookies[0]
	if ck.Name != middleware.TokenCookie || ck.Value != "signed.token.value" {
		t.Fatalf("unexpected cookie %+v", ck)
	}
	if !ck.HttpOnly || !ck.Secure || ck.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie flags not applied: %+v", ck)
	}
}

func TestAccountHandler_LoginFailurePropagates(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{
		authenticateFn: func(context.Context, string, string) (string, error) {
			return "", domain.ErrInvalidCredentials
		},
	}, nil, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/account/login", `{"username":"alice","password":"bad"}`), rec)
	if err := h.Login(c); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("no cookie expected on failure")
	}
}

func TestAccountHandler_Current(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{}, nil, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/account/current", nil), rec)
	c.Set(middleware.IdentityKey, &domain.Identity{ID: "3", Username: "carol", Roles: []string{domain.RoleUser}, TokenID: "jti"})

	if err := h.Current(c); err != nil {
		t.Fatalf("current: %v", err)
	}
	var got currentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "3" || got.Username != "carol" || len(got.Roles) != 1 || got.Roles[0] != domain.RoleUser {
		t.Fatalf("unexpected body %+v", got)
	}
	if strings.Contains(rec.Body.String(), "jti") {
		t.Fatalf("token id leaked: %s", rec.Body.String())
	}
}

func TestAccountHandler_CurrentWithoutIdentity(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{}, nil, CookieOptions{})
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/account/current", nil), httptest.NewRecorder())
	if code := httpCode(t, h.Current(c)); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestAccountHandler_AdminOnly(t *testing.T) {
	e := newEcho()
	h := NewAccountHandler(&stubIdentityService{}, nil, CookieOptions{})
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/account/admin-only", nil), rec)
	if err := h.AdminOnly(c); err != nil {
		t.Fatalf("admin-only: %v", err)
	}
	if !strings.Contains(rec.Body.String(), adminOnlyMessage) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAccountHandler_LogoutRevokesAndClearsCookie(t *testing.T) {
	e := newEcho()
	deny := &recordingDenylist{}
	h := NewAccountHandler(&stubIdentityService{}, deny, CookieOptions{})

	expires := time.Now().Add(time.Hour)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/account/logout", nil), rec)
	c.Set(middleware.IdentityKey, &domain.Identity{ID: "1", Username: "alice", TokenID: "jti-1", ExpiresAt: expires})

	if err := h.Logout(c); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if deny.tokenID != "jti-1" || !deny.until.Equal(expires) {
		t.Fatalf("token not revoked: %+v", deny)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != middleware.TokenCookie || cookies[0].Value != "" || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", cookies)
	}
}

func TestAccountHandler_LogoutUnparsableHeader(t *testing.T) {
	e := newEcho()
	deny := &recordingDenylist{}
	h := NewAccountHandler(&stubIdentityService{}, deny, CookieOptions{})

	req := httptest.NewRequest(http.MethodPost, "/account/logout", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set(middleware.IdentityKey, &domain.Identity{ID: "1", TokenID: "jti-1"})

	if code := httpCode(t, h.Logout(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if deny.tokenID != "" {
		t.Fatalf("token should not be revoked")
	}
}

func TestAccountHandler_ListAndProfile(t *testing.T) {
	e := newEcho()
	var gotInput ports.ProfileInput
	h := NewAccountHandler(&stubIdentityService{
		peersFn: func(_ context.Context, identity domain.Identity) ([]ports.PeerSummary, error) {
			if identity.ID != "1" {
				t.Fatalf("unexpected identity %+v", identity)
			}
			return []ports.PeerSummary{{ID: 2, FirstName: "Bob", LastName: "Smith"}}, nil
		},
		profileFn: func(_ context.Context, _ domain.Identity, in ports.ProfileInput) (*domain.Profile, error) {
			gotInput = in
			return &domain.Profile{ID: 9, AccountID: 1, FirstName: in.FirstName, LastName: in.LastName}, nil
		},
	}, nil, CookieOptions{})
	identity := &domain.Identity{ID: "1", Username: "alice"}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/account/list", nil), rec)
	c.Set(middleware.IdentityKey, identity)
	if err := h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"first_name":"Bob"`) {
		t.Fatalf("unexpected list body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, "/account/profile",
		`{"first_name":"Alice","last_name":"Doe","age":30,"email":"alice@example.com"}`), rec)
	c.Set(middleware.IdentityKey, identity)
	if err := h.CreateProfile(c); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if gotInput.FirstName != "Alice" || gotInput.Age != 30 {
		t.Fatalf("unexpected input %+v", gotInput)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/account/profile", `{"first_name":"Alice","email":"nope"}`), httptest.NewRecorder())
	c.Set(middleware.IdentityKey, identity)
	if code := httpCode(t, h.CreateProfile(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}
