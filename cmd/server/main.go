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

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/router"
	"github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/validator"
	"github.com/iliyamo/storefront/internal/view"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	users, checks, closeStore, err := openUserStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open credential store")
	}
	defer closeStore()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Fatal().Str("addr", cfg.Redis.Address()).Msg("redis unreachable; sessions need it")
	}
	defer rdb.Close()
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	m := metrics.New()
	auth := service.NewAuthService(users,
		service.NewMailPublisher(cfg.AMQPURL, cfg.MailQueue, log),
		validator.New(),
		service.Options{
			BcryptCost:    cfg.BcryptCost,
			ResetTokenTTL: cfg.ResetTokenTTL,
			BaseURL:       cfg.BaseURL,
			Metrics:       m,
		})

	pages, err := view.New()
	if err != nil {
		log.Fatal().Err(err).Msg("parse templates")
	}

	e := router.New(router.Deps{
		Log:           log,
		Renderer:      pages,
		Metrics:       m,
		Sessions:      repository.NewSessionRepo(rdb, cfg.SessionTTL),
		Users:         users,
		CookieName:    cfg.SessionCookieName,
		SecureCookies: cfg.SecureCookies(),
		Redis:         rdb,
		RateLimit:     cfg.RateLimit,
		Auth:          handler.NewAuthHandler(auth, log),
		Checks:        checks,
		PublicDir:     cfg.PublicDir,
		ImagesDir:     cfg.ImagesDir,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}

// openUserStore connects the credential store selected by STORE_DRIVER and
// prepares its schema or indexes.
func openUserStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (service.UserStore, map[string]handler.Check, func(), error) {
	checks := map[string]handler.Check{}
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, db, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := repository.NewMongoUserRepo(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return repo, checks, func() { _ = client.Disconnect(context.Background()) }, nil

	case config.DriverMySQL:
		db, err := database.OpenMySQL(ctx, database.MySQLParams{
			User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		repo := repository.NewUserRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		checks["mysql"] = db.PingContext
		return repo, checks, func() { _ = db.Close() }, nil

	default:
		log.Warn().Msg("using the in-memory credential store; users are lost on restart")
		return repository.NewMemoryUserRepo(), checks, func() {}, nil
	}
}
