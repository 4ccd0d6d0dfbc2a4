package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tunachat/chat-api/internal/api/metrics"
)

// RequireRole admits callers holding at least one of allowedRoles. It must run
// after Auth.
func RequireRole(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := IdentityFrom(c)
			if !ok {
				metrics.AccessDeniedTotal.WithLabelValues("unauthenticated").Inc()
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing authentication claims"})
			}
			for _, role := range allowedRoles {
				if identity.HasRole(role) {
					return next(c)
				}
			}
			metrics.AccessDeniedTotal.WithLabelValues("forbidden").Inc()
			return c.JSON(http.StatusForbidden, map[string]string{"error": "access forbidden"})
		}
	}
}
