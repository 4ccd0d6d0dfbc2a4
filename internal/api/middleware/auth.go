package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tunachat/chat-api/internal/api/metrics"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

const (
	// IdentityKey is the echo context key holding the verified *domain.Identity.
	IdentityKey = "identity"
	// TokenCookie is the cookie carrying the session token for browser clients.
	TokenCookie = "jwtToken"
)

// Auth verifies the session token and injects the caller's identity into the
// context. The Authorization header takes precedence over the cookie. A nil
// denylist disables revocation checks.
func Auth(verifier ports.TokenVerifier, denylist ports.TokenDenylist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := tokenFrom(c)
			if err != nil {
				metrics.AccessDeniedTotal.WithLabelValues("unauthenticated").Inc()
				return err
			}

			identity, err := verifier.Verify(raw)
			if err != nil {
				metrics.AccessDeniedTotal.WithLabelValues("unauthenticated").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if denylist != nil {
				revoked, err := denylist.IsRevoked(c.Request().Context(), identity.TokenID)
				if err != nil {
					return fmt.Errorf("auth: %w", err)
				}
				if revoked {
					metrics.AccessDeniedTotal.WithLabelValues("revoked").Inc()
					return echo.NewHTTPError(http.StatusUnauthorized, "token revoked")
				}
			}

			c.Set(IdentityKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c echo.Context) (*domain.Identity, bool) {
	identity, ok := c.Get(IdentityKey).(*domain.Identity)
	return identity, ok && identity != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. ok is false when the header is absent.
func BearerToken(c echo.Context) (token string, ok bool, err error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", false, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", true, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), true, nil
}

func tokenFrom(c echo.Context) (string, error) {
	token, ok, err := BearerToken(c)
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}

	cookie, err := c.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	return cookie.Value, nil
}
