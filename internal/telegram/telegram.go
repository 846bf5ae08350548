package telegram

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/client"
	"github.com/futig/wizard-backend/internal/config"
	"github.com/futig/wizard-backend/internal/localstate"
	"github.com/futig/wizard-backend/internal/telegram/bot"
)

// Bot is the surface the process entrypoint drives.
type Bot interface {
	Start(ctx context.Context) error
	Stop() error
}

// NewBot assembles the Telegram front end over the shared local store and
// backend client.
func NewBot(
	cfg *config.BotConfig,
	store *localstate.Store,
	backend *client.Client,
	logger *zap.Logger,
) (Bot, error) {
	b, err := bot.New(cfg, store, backend, logger)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	logger.Info("telegram bot initialized")
	return b, nil
}
