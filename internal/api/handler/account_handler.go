package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tunachat/chat-api/internal/api/metrics"
	"github.com/tunachat/chat-api/internal/api/middleware"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
	"github.com/tunachat/chat-api/internal/core/token"
)

const adminOnlyMessage = "This data is accessible only by admin."

// CookieOptions controls the session cookie set on login.
type CookieOptions struct {
	Secure bool
	TTL    time.Duration
}

// AccountHandler handles the /account routes.
type AccountHandler struct {
	service  ports.IdentityService
	denylist ports.TokenDenylist
	cookie   CookieOptions
}

// NewAccountHandler builds the handler. denylist may be nil when server-side
// revocation is disabled; logout then only clears the cookie.
func NewAccountHandler(service ports.IdentityService, denylist ports.TokenDenylist, cookie CookieOptions) *AccountHandler {
	return &AccountHandler{service: service, denylist: denylist, cookie: cookie}
}

// Register creates a new account holding the User role.
//
// @Summary      Register a new account
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      credentialsRequest  true  "Username and password"
// @Success      200   {object}  domain.Account
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /account/register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	account, err := h.service.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationResult(err)).Inc()
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, account)
}

// Login authenticates the account and returns a session token. The token is
// also set as an HTTP-only cookie.
//
// @Summary      Login
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      credentialsRequest  true  "Username and password"
// @Success      200   {object}  tokenResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /account/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	signed, err := h.service.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			metrics.LoginsTotal.WithLabelValues("failure").Inc()
		} else {
			metrics.LoginsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	c.SetCookie(h.sessionCookie(signed, time.Now().Add(h.cookie.TTL)))
	return c.JSON(http.StatusOK, tokenResponse{Token: signed})
}

// Current returns the caller's identity as asserted by the token.
//
// @Summary      Current account
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  currentResponse
// @Failure      401  {object}  errorResponse
// @Router       /account/current [get]
func (h *AccountHandler) Current(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	current := h.service.CurrentIdentity(identity)
	return c.JSON(http.StatusOK, currentResponse{
		ID:       current.ID,
		Username: current.Username,
		Roles:    current.Roles,
	})
}

// AdminOnly is reachable only by callers holding the Admin role.
//
// @Summary      Admin-only data
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /account/admin-only [get]
func (h *AccountHandler) AdminOnly(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{Message: adminOnlyMessage})
}

// Logout clears the session cookie and revokes the presented token.
//
// @Summary      Logout
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /account/logout [post]
func (h *AccountHandler) Logout(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	if raw, ok, err := middleware.BearerToken(c); ok {
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid token")
		}
		if _, err := token.ReadUnverified(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid token")
		}
	}

	if h.denylist != nil && identity.TokenID != "" {
		if err := h.denylist.Revoke(c.Request().Context(), identity.TokenID, identity.ExpiresAt); err != nil {
			return err
		}
		metrics.TokensRevokedTotal.Inc()
	}

	expired := h.sessionCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	c.SetCookie(expired)
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// List returns the profiles of every other account.
//
// @Summary      List other accounts
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   ports.PeerSummary
// @Failure      401  {object}  errorResponse
// @Router       /account/list [get]
func (h *AccountHandler) List(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	peers, err := h.service.ListPeers(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, peers)
}

// CreateProfile attaches a personal profile to the caller's account.
//
// @Summary      Create profile
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      profileRequest  true  "Profile details"
// @Success      201   {object}  domain.Profile
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /account/profile [post]
func (h *AccountHandler) CreateProfile(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	profile, err := h.service.CreateProfile(c.Request().Context(), identity, ports.ProfileInput{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Age:        req.Age,
		Email:      req.Email,
		Phone:      req.Phone,
		Province:   req.Province,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, profile)
}

func (h *AccountHandler) sessionCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func registrationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
