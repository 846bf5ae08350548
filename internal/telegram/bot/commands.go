package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/telegram/render"
)

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	ctxzap.Info(ctx, "command received",
		zap.String("command", command),
		zap.Int64("user_id", message.From.ID),
	)

	switch command {
	case "start":
		b.handleStartCommand(ctx, message)
	case "help":
		b.handleHelpCommand(ctx, message)
	case "cancel":
		b.handleCancelCommand(ctx, message)
	case "export":
		b.handleExportCommand(ctx, message)
	case "progress":
		b.handleProgressCommand(ctx, message)
	default:
		b.sendText(message.Chat.ID, render.ErrUnknownCommand)
	}
}

// handleStartCommand offers the plan selection, or points at the run already
// in progress.
func (b *Bot) handleStartCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	rt := b.runtime(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := b.mountRuntime(ctx, rt, chatID, message.From.ID); err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	rt.pendingCancel = false

	if rt.eng != nil && rt.eng.Session() != nil {
		if rt.eng.Stage().Kind == entity.StageComplete {
			b.sendMessage(chatID, render.MsgAlreadyComplete, "", b.keyboard.ExportKeyboard())
			return
		}
		text := fmt.Sprintf(render.MsgSessionInProgress, rt.plan.Title)
		b.sendMessage(chatID, text, "", b.keyboard.SessionInProgressKeyboard())
		return
	}

	b.sendText(chatID, render.MsgWelcome)
	b.sendMessage(chatID, render.MsgChoosePlan, "", b.keyboard.PlanSelectionKeyboard(planChoices()))
}

func (b *Bot) handleHelpCommand(_ context.Context, message *tgbotapi.Message) {
	b.sendText(message.Chat.ID, render.MsgHelp)
}

// handleCancelCommand asks for confirmation before anything is lost. The
// actual cancel happens in the confirm callback.
func (b *Bot) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	rt := b.runtime(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := b.mountRuntime(ctx, rt, chatID, message.From.ID); err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	b.promptCancel(rt, chatID)
}

func (b *Bot) handleExportCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	rt := b.runtime(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := b.mountRuntime(ctx, rt, chatID, message.From.ID); err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	if rt.eng == nil || rt.eng.Session() == nil {
		b.sendText(chatID, render.MsgNothingToExport)
		return
	}

	b.sendMessage(chatID, render.MsgExportPick, "", b.keyboard.ExportKeyboard())
}

func (b *Bot) handleProgressCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	rt := b.runtime(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := b.mountRuntime(ctx, rt, chatID, message.From.ID); err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	if rt.eng == nil || rt.eng.Session() == nil {
		b.sendText(chatID, render.MsgNoRunYet)
		return
	}

	text := render.Progress(rt.plan.Title, rt.eng.Stage(), rt.eng.Progress(), rt.plan.TotalSteps())
	b.sendText(chatID, text)
}

// promptCancel arms the two-step cancel confirmation. Call with the chat
// lock held.
func (b *Bot) promptCancel(rt *chatRuntime, chatID int64) {
	if rt.eng == nil || rt.eng.Session() == nil {
		b.sendText(chatID, render.MsgNothingToCancel)
		return
	}

	rt.pendingCancel = true
	text := fmt.Sprintf(render.MsgCancelConfirm, rt.plan.Title)
	b.sendMessage(chatID, text, "", b.keyboard.CancelConfirmKeyboard())
}
