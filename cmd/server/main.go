package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	linkapi "github.com/pterolink/pterolink/api/echo"
	"github.com/pterolink/pterolink/cache"
	rediscache "github.com/pterolink/pterolink/cache/redis"
	"github.com/pterolink/pterolink/config"
	"github.com/pterolink/pterolink/internal/vault"
	"github.com/pterolink/pterolink/mongodb"
	"github.com/pterolink/pterolink/ratelimit"
	"github.com/pterolink/pterolink/services"
	"github.com/pterolink/pterolink/updater"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	setupLogging(cfg)
	log.Info().Str("addr", cfg.HTTPAddr).Msg("PteroLink server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, db, err := mongodb.Connect(connectCtx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("MongoDB disconnect failed")
		}
	}()

	serverRepo := mongodb.NewServerRepository(db)
	challengeRepo := mongodb.NewChallengeRepository(db)
	telemetryRepo := mongodb.NewTelemetryRepository(db)
	credentialRepo := mongodb.NewCredentialRepository(db)
	if err := serverRepo.EnsureIndexes(connectCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure MongoDB indexes")
	}

	if cfg.VaultSecret == "" && cfg.DevMode {
		log.Warn().Msg("DEV MODE: using the built-in dev vault secret; stored credentials are NOT protected")
	}
	v, err := vault.New(cfg.EffectiveVaultSecret())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential vault")
	}

	counter := newCounter(cfg)
	defer counter.Close()
	limiter := ratelimit.NewWithConfig(counter, ratelimit.Config{
		MaxPerWindow: cfg.RateLimitMax,
		Window:       cfg.RateLimitWindow,
	})

	credentialSvc := services.NewCredentialService(credentialRepo, v)
	verificationSvc := services.NewVerificationService(challengeRepo, serverRepo, credentialSvc)
	serverSvc := services.NewServerService(serverRepo, telemetryRepo, verificationSvc, credentialSvc, limiter)

	upd := updater.New(updater.NopRenderer{}, verificationSvc, credentialSvc, telemetryRepo, updater.Config{
		Interval:        cfg.PollInterval,
		CleanupInterval: cfg.CleanupInterval,
		IdleTimeout:     cfg.IdleTimeout,
	})
	go upd.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	linkapi.NewLinkAPI(verificationSvc, credentialSvc, serverSvc, upd).RegisterRoutes(e)

	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}
}

func setupLogging(cfg config.Config) {
	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("configured_level", cfg.LogLevel).Msg("Invalid log level in config, defaulting to info")
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func newCounter(cfg config.Config) cache.Counter {
	if cfg.RedisAddr == "" {
		log.Info().Msg("Using in-process rate limit counter")
		return cache.NewMemoryCounter()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis rate limit counter")
	return rediscache.NewCounter(rdb)
}
