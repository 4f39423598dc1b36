package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"payout-ledger/config"
	"payout-ledger/internal/api"
	"payout-ledger/internal/auth"
	"payout-ledger/internal/cache"
	"payout-ledger/internal/database"
	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/scheduler"
	"payout-ledger/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := setupLogger(cfg.LoggingConfig)
	logger.Info().Msg("starting payout ledger")

	eventBus := events.NewEventBus()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	repo := database.NewRepository(db)

	service := ledger.NewService(repo, eventBus, logger, cfg.LedgerConfig.MaxPayoutRetries)
	engine := ledger.NewDistributionEngine(repo, eventBus, logger)
	reconciler := ledger.NewReconciler(service, logger)

	var cacheService *cache.Service
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cache disabled, serving reads from database")
			cacheService = nil
		} else {
			defer cacheService.Close()
		}
	}

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create vault client")
	}

	var authService *auth.Service
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, time.Duration(cfg.AuthConfig.TokenTTLMinutes)*time.Minute)
		authService = auth.NewService(repo, jwtManager, logger)
		if err := authService.SeedAdmin(context.Background(), cfg.AuthConfig.SeedAdminEmail, cfg.AuthConfig.SeedAdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed admin user")
		}
	}

	sched := scheduler.New(service, &scheduler.Config{
		Interval:  time.Duration(cfg.LedgerConfig.SchedulerIntervalSeconds) * time.Second,
		BatchSize: cfg.LedgerConfig.SchedulerBatchSize,
	}, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start payout scheduler")
	}

	server := api.NewServer(cfg.ServerConfig, api.Deps{
		Repo:        repo,
		Service:     service,
		Engine:      engine,
		Reconciler:  reconciler,
		EventBus:    eventBus,
		Cache:       cacheService,
		AuthService: authService,
		JWTManager:  jwtManager,
		VaultClient: vaultClient,
		AuthEnabled: cfg.AuthConfig.Enabled,
	}, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("payout ledger stopped")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
