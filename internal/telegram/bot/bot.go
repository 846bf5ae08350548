// Package bot drives wizard runs over Telegram long polling. Each chat maps
// to one workspace; the engine does the heavy lifting and the bot translates
// between Telegram updates and engine calls.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/client"
	"github.com/futig/wizard-backend/internal/config"
	"github.com/futig/wizard-backend/internal/localstate"
	"github.com/futig/wizard-backend/internal/telegram/keyboard"
	"github.com/futig/wizard-backend/internal/telegram/middleware"
)

// Bot is the long-polling Telegram front end.
type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.BotConfig
	store   *localstate.Store
	backend *client.Client

	keyboard *keyboard.Builder
	logger   *zap.Logger

	loggingMW   *middleware.LoggingMiddleware
	recoveryMW  *middleware.RecoveryMiddleware
	rateLimitMW *middleware.RateLimiterMiddleware

	runtimeMu sync.Mutex
	runtimes  map[int64]*chatRuntime

	sem         chan struct{}
	updatesChan tgbotapi.UpdatesChannel
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// New authorizes against the Telegram API and assembles the bot. The store
// and backend client are shared across every chat.
func New(
	cfg *config.BotConfig,
	store *localstate.Store,
	backend *client.Client,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramCfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	api.Debug = false

	logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
		zap.Int64("id", api.Self.ID),
	)

	b := &Bot{
		api:      api,
		cfg:      cfg,
		store:    store,
		backend:  backend,
		keyboard: keyboard.NewBuilder(),
		logger:   logger,
		runtimes: make(map[int64]*chatRuntime),
		sem:      make(chan struct{}, cfg.TelegramCfg.MaxConcurrentUsers),
		stopChan: make(chan struct{}),
	}

	b.loggingMW = middleware.NewLoggingMiddleware(logger)
	b.recoveryMW = middleware.NewRecoveryMiddleware(logger, api)
	b.rateLimitMW = middleware.NewRateLimiterMiddleware(
		cfg.TelegramCfg.RateLimitPerMinute,
		cfg.TelegramCfg.RateLimitBurst,
		logger,
		api,
	)

	return b, nil
}

// Start begins receiving updates over long polling.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("starting telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.TelegramCfg.UpdateTimeout
	b.updatesChan = b.api.GetUpdatesChan(u)

	ctx = ctxzap.ToContext(ctx, b.logger)
	go b.processUpdates(ctx)

	b.logger.Info("telegram bot started")
	return nil
}

// Stop drains in-flight handlers within the shutdown timeout, then flushes
// every chat's buffered state.
func (b *Bot) Stop() error {
	b.logger.Info("stopping telegram bot")

	close(b.stopChan)
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	shutdownTimeout := time.Duration(b.cfg.TelegramCfg.ShutdownTimeout) * time.Second
	var timedOut bool
	select {
	case <-done:
		b.logger.Info("all handlers completed")
	case <-time.After(shutdownTimeout):
		timedOut = true
		b.logger.Warn("shutdown timeout exceeded, some handlers may not have completed",
			zap.Duration("timeout", shutdownTimeout),
		)
	}

	b.flushRuntimes()

	if err := b.store.Close(); err != nil {
		b.logger.Warn("local state close failed", zap.Error(err))
	}

	if timedOut {
		return fmt.Errorf("shutdown timeout exceeded")
	}
	b.logger.Info("telegram bot stopped")
	return nil
}

// processUpdates fans updates out to per-update goroutines, bounded by the
// concurrency semaphore.
func (b *Bot) processUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			ctxzap.Info(ctx, "context cancelled, stopping update processing")
			return
		case <-b.stopChan:
			ctxzap.Info(ctx, "stop signal received, stopping update processing")
			return
		case update := <-b.updatesChan:
			select {
			case b.sem <- struct{}{}:
			case <-b.stopChan:
				return
			}
			b.wg.Add(1)
			go func(u tgbotapi.Update) {
				defer b.wg.Done()
				defer func() { <-b.sem }()
				b.handleUpdateWithMiddleware(u)
			}(update)
		}
	}
}

// handleUpdateWithMiddleware runs the update through the middleware chain,
// rate limiting outermost.
func (b *Bot) handleUpdateWithMiddleware(update tgbotapi.Update) {
	b.rateLimitMW.Handle(update, func(u tgbotapi.Update) {
		b.loggingMW.Handle(u, func(u2 tgbotapi.Update) {
			b.recoveryMW.Handle(u2, func(u3 tgbotapi.Update) {
				b.handleUpdate(u3)
			})
		})
	})
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	ctx := ctxzap.ToContext(context.Background(), b.logger)

	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}
