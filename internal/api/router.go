package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/tunachat/chat-api/docs"
	"github.com/tunachat/chat-api/internal/api/handler"
	"github.com/tunachat/chat-api/internal/api/middleware"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Identity ports.IdentityService
	Messages ports.MessageService
	Verifier ports.TokenVerifier
	// Denylist is nil when server-side revocation is disabled.
	Denylist ports.TokenDenylist
	Checks   map[string]handler.Check
	Cookie   handler.CookieOptions
	Log      zerolog.Logger
	// Registry overrides the default Prometheus registry (tests).
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "chat",
		Registerer: registerer,
	}))

	// --- Operational endpoints (no auth required) ---
	health := handler.NewHealthHandler(d.Checks)
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	authenticated := middleware.Auth(d.Verifier, d.Denylist)

	// --- Account routes ---
	accounts := handler.NewAccountHandler(d.Identity, d.Denylist, d.Cookie)
	account := e.Group("/account")
	account.POST("/register", accounts.Register)
	account.POST("/login", accounts.Login)
	account.GET("/current", accounts.Current, authenticated)
	account.GET("/admin-only", accounts.AdminOnly, authenticated, middleware.RequireRole(domain.RoleAdmin))
	account.POST("/logout", accounts.Logout, authenticated)
	account.GET("/list", accounts.List, authenticated)
	account.POST("/profile", accounts.CreateProfile, authenticated)

	// --- Message routes ---
	messages := handler.NewMessageHandler(d.Messages)
	message := e.Group("/message", authenticated)
	message.GET("/all", messages.All)
	message.GET("/:id", messages.Get)
	message.GET("/:sendId/:receiveId", messages.Conversation)
	message.POST("", messages.Send)
	message.POST("/send", messages.Send)
	message.DELETE("/:id", messages.Delete)

	return e
}
