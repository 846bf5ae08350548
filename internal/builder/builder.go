package builder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/api"
	sessionapi "github.com/futig/wizard-backend/internal/api/session"
	"github.com/futig/wizard-backend/internal/client"
	"github.com/futig/wizard-backend/internal/config"
	"github.com/futig/wizard-backend/internal/integration/generation"
	"github.com/futig/wizard-backend/internal/integration/transcription"
	"github.com/futig/wizard-backend/internal/localstate"
	"github.com/futig/wizard-backend/internal/pkg/validator"
	"github.com/futig/wizard-backend/internal/repository"
	"github.com/futig/wizard-backend/internal/telegram"
	"github.com/futig/wizard-backend/internal/usecase/session"
	"github.com/futig/wizard-backend/internal/wizard"
)

func Build() (*App, error) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building application",
		zap.String("environment", cfg.Environment),
		zap.String("server_addr", cfg.ServerAddr),
	)

	if err := wizard.ValidateAll(); err != nil {
		return nil, fmt.Errorf("validate wizard plans: %w", err)
	}

	db, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}

	logger.Info("Running database migrations")
	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Database migrations completed")

	sessionRepo := repository.NewSessionPostgres(db)
	messageRepo := repository.NewSessionMessagePostgres(db)
	resultRepo := repository.NewStepResultPostgres(db)
	logger.Info("Repositories initialized")

	var generator session.GenerationConnector
	var transcriber session.TranscriptionConnector

	if cfg.EnableMocks {
		logger.Info("Using mock connectors for external services")
		generator = generation.NewMockConnector(logger)
		transcriber = transcription.NewMockConnector(logger)
	} else {
		logger.Info("Using real connectors for external services")
		generator = generation.NewConnector(cfg.GenerationConnectorCfg, logger)
		transcriber = transcription.NewConnector(cfg.TranscriptionConnectorCfg, logger)
	}

	audioValidator := validator.NewValidator(cfg.MaxAudioBytes)

	sessionUC := session.NewUsecase(
		sessionRepo,
		messageRepo,
		resultRepo,
		audioValidator,
		generator,
		transcriber,
		logger,
	)
	logger.Info("Use cases initialized")

	sessionHandler := sessionapi.NewHandler(sessionUC)
	router := api.SetupRouter(sessionHandler, cfg.CORSAllowedOrigins, logger)
	logger.Info("HTTP router configured")

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Application built successfully",
		zap.String("environment", cfg.Environment),
	)

	return &App{
		server: server,
		db:     db,
		logger: logger,
	}, nil
}

// BuildTelegramBot assembles the bot process: local state store, backend
// client, Telegram front end. The bot holds no database; it talks to the
// wizard backend over HTTP only.
func BuildTelegramBot() (telegram.Bot, *zap.Logger, error) {
	cfg, err := config.LoadBotConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building Telegram bot",
		zap.String("environment", cfg.Environment),
	)

	if err := wizard.ValidateAll(); err != nil {
		return nil, nil, fmt.Errorf("validate wizard plans: %w", err)
	}

	store, err := setupLocalState(cfg.StateCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("setup local state: %w", err)
	}

	backend := client.New(cfg.BackendCfg, logger)

	bot, err := telegram.NewBot(cfg, store, backend, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	logger.Info("Telegram bot built successfully",
		zap.String("environment", cfg.Environment),
	)

	return bot, logger, nil
}

// setupLocalState opens the store the bot resumes wizard runs from.
func setupLocalState(cfg config.LocalStateConfig, logger *zap.Logger) (*localstate.Store, error) {
	var store *localstate.Store
	var err error

	switch cfg.Backend {
	case "sqlite":
		store, err = localstate.NewSQLite(cfg.SQLitePath)
	default:
		store, err = localstate.NewFile(cfg.Dir)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL > 0 {
		store = store.WithCache(cfg.CacheTTL)
	}

	logger.Info("local state store opened",
		zap.String("backend", cfg.Backend),
	)
	return store, nil
}
