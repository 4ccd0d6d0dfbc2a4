// Command api serves the chat backend over HTTP.
//
//	@title						Chat API
//	@version					1.0
//	@description				Accounts, authentication and message exchange for the chat backend.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunachat/chat-api/internal/api"
	"github.com/tunachat/chat-api/internal/api/handler"
	"github.com/tunachat/chat-api/internal/core/credential"
	"github.com/tunachat/chat-api/internal/core/ports"
	"github.com/tunachat/chat-api/internal/core/service"
	"github.com/tunachat/chat-api/internal/core/token"
	"github.com/tunachat/chat-api/internal/infrastructure/config"
	mongostore "github.com/tunachat/chat-api/internal/infrastructure/db/mongo"
	pgstore "github.com/tunachat/chat-api/internal/infrastructure/db/postgres"
	redisstore "github.com/tunachat/chat-api/internal/infrastructure/db/redis"
	"github.com/tunachat/chat-api/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// stores groups the persistence ports of the selected driver.
type stores struct {
	accounts ports.AccountRepository
	roles    ports.RoleRepository
	profiles ports.ProfileRepository
	messages ports.MessageRepository
	check    handler.Check
	shutdown func(ctx context.Context)
}

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "chat-api",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		st.shutdown(closeCtx)
	}()

	checks := map[string]handler.Check{cfg.StoreDriver: st.check}

	var denylist ports.TokenDenylist
	if cfg.Redis.RevocationEnabled {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		denylist = redisstore.NewDenylist(rdb)
		checks["redis"] = func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb, cfg.PersistenceTimeout)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("token revocation enabled")
	}

	codec, err := credential.New(credential.Scheme(cfg.Auth.PasswordScheme))
	if err != nil {
		return err
	}
	tokens, err := token.New(token.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	identity := service.NewIdentityService(
		st.accounts, st.roles, st.profiles, codec, tokens,
		cfg.PersistenceTimeout, logger.Component("identity"),
	)
	messages := service.NewMessageService(st.messages, cfg.PersistenceTimeout, logger.Component("messages"))

	e := api.NewRouter(api.Deps{
		Identity: identity,
		Messages: messages,
		Verifier: tokens,
		Denylist: denylist,
		Checks:   checks,
		Cookie:   handler.CookieOptions{Secure: cfg.Auth.CookieSecure, TTL: tokens.TTL()},
		Log:      logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreDriver).
			Str("password_scheme", string(codec.Scheme())).
			Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		if err := mongostore.EnsureSchema(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongo store ready")

		accounts := mongostore.NewAccountRepository(db)
		return &stores{
			accounts: accounts,
			roles:    accounts,
			profiles: mongostore.NewProfileRepository(db),
			messages: mongostore.NewMessageRepository(db),
			check: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			shutdown: func(ctx context.Context) {
				if err := client.Disconnect(ctx); err != nil {
					log.Warn().Err(err).Msg("mongo disconnect")
				}
			},
		}, nil

	default:
		if err := pgstore.RunMigrations(cfg.Postgres.URL); err != nil {
			return nil, err
		}
		pool, err := pgstore.Connect(ctx, pgstore.Config{URL: cfg.Postgres.URL})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("postgres store ready")

		accounts := pgstore.NewAccountRepository(pool)
		return &stores{
			accounts: accounts,
			roles:    accounts,
			profiles: pgstore.NewProfileRepository(pool),
			messages: pgstore.NewMessageRepository(pool),
			check:    pool.Ping,
			shutdown: func(context.Context) { pool.Close() },
		}, nil
	}
}
