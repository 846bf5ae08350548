package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/telegram/keyboard"
	"github.com/futig/wizard-backend/internal/telegram/render"
	"github.com/futig/wizard-backend/internal/wizard"
)

// handleCallbackQuery routes one button press. The press is acknowledged
// immediately so the client stops its spinner; results arrive as ordinary
// messages.
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	data, err := keyboard.ParseCallback(query.Data)
	if err != nil {
		ctxzap.Warn(ctx, "invalid callback data",
			zap.Error(err),
			zap.String("data", query.Data),
		)
		b.answerCallback(query.ID, render.ErrUnknownButton)
		return
	}

	b.answerCallback(query.ID, "")

	if query.Message == nil {
		ctxzap.Warn(ctx, "callback without source message",
			zap.String("data", query.Data),
		)
		return
	}
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	ctxzap.Info(ctx, "callback received",
		zap.String("action", data.Action),
		zap.String("value", data.Value),
		zap.Int64("user_id", userID),
	)

	rt := b.runtime(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := b.mountRuntime(ctx, rt, chatID, userID); err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	switch data.Action {
	case "plan":
		b.handlePlanCallback(ctx, rt, chatID, userID, data.Value)
	case "action":
		b.handleActionCallback(ctx, rt, chatID, data.Value)
	case "confirm":
		b.handleConfirmCallback(ctx, rt, chatID, data.Value)
	case "export":
		b.handleExportCallback(ctx, rt, chatID, data.Value)
	default:
		b.sendText(chatID, render.ErrUnknownButton)
	}
}

// handlePlanCallback starts the chosen wizard, resuming an earlier run of the
// same wizard when one is still on record.
func (b *Bot) handlePlanCallback(ctx context.Context, rt *chatRuntime, chatID, userID int64, name string) {
	if rt.eng != nil && rt.eng.Session() != nil {
		// Stale selection button; a wizard is already running.
		text := fmt.Sprintf(render.MsgSessionInProgress, rt.plan.Title)
		b.sendMessage(chatID, text, "", b.keyboard.SessionInProgressKeyboard())
		return
	}

	plan, err := wizard.Get(name)
	if err != nil {
		ctxzap.Warn(ctx, "unknown plan selected",
			zap.String("wizard", name),
			zap.Int64("chat_id", chatID),
		)
		b.sendText(chatID, render.ErrUnknownButton)
		return
	}

	eng := b.newEngine(plan, chatID, userID)
	res, err := eng.Mount(ctx)
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	rt.eng = eng
	rt.plan = plan
	rt.pendingCancel = false
	if err := b.store.SaveActivePlan(ctx, workspaceID(chatID), plan.Name); err != nil {
		ctxzap.Warn(ctx, "active plan save failed",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
	}

	if !res.Fresh && eng.Session() != nil {
		// An earlier run of this wizard was still resumable; Mount has
		// already re-rendered anything that needed it.
		b.sendText(chatID, fmt.Sprintf(render.MsgResumed, plan.Title))
		return
	}

	b.beginRun(ctx, rt, chatID)
}

func (b *Bot) handleActionCallback(ctx context.Context, rt *chatRuntime, chatID int64, value string) {
	switch value {
	case "resume":
		if rt.eng == nil || rt.eng.Session() == nil {
			b.sendMessage(chatID, render.MsgNoActiveSession, "", b.keyboard.PlanSelectionKeyboard(planChoices()))
			return
		}
		if rt.eng.Stage().Kind == entity.StageComplete {
			b.sendMessage(chatID, render.MsgAlreadyComplete, "", b.keyboard.ExportKeyboard())
			return
		}
		b.sendText(chatID, fmt.Sprintf(render.MsgResumed, rt.plan.Title))
		b.resendActiveQuestion(rt, chatID)
	case "cancel":
		b.promptCancel(rt, chatID)
	default:
		b.sendText(chatID, render.ErrUnknownButton)
	}
}

// handleConfirmCallback resolves the cancel confirmation. Only an armed
// prompt counts; stale confirm buttons from before a new run must not kill it.
func (b *Bot) handleConfirmCallback(ctx context.Context, rt *chatRuntime, chatID int64, value string) {
	switch value {
	case "cancel":
		if !rt.pendingCancel || rt.eng == nil {
			b.sendText(chatID, render.ErrUnknownButton)
			return
		}
		err := rt.eng.Cancel(ctx)
		if err != nil && !errors.Is(err, entity.ErrSessionNotFound) {
			b.reportError(ctx, chatID, err)
			return
		}
		b.dropRuntime(ctx, rt, chatID)
		b.sendText(chatID, render.MsgSessionCancelled)
	case "keep":
		rt.pendingCancel = false
		b.sendText(chatID, render.MsgCancelKept)
	default:
		b.sendText(chatID, render.ErrUnknownButton)
	}
}

// handleExportCallback downloads the transcript in the chosen format and
// drops it into the chat as a document.
func (b *Bot) handleExportCallback(ctx context.Context, rt *chatRuntime, chatID int64, value string) {
	if rt.eng == nil || rt.eng.Session() == nil {
		b.sendText(chatID, render.MsgNothingToExport)
		return
	}
	sessionID := rt.eng.Session().ID

	typing := newTypingNotifier(b.api, chatID, b.logger)
	typing.Start(ctx)
	doc, err := b.backend.Export(ctx, sessionID, entity.ExportFormat(value))
	typing.Stop()

	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	if err := b.sendDocument(chatID, doc.Filename, doc.Data); err != nil {
		ctxzap.Error(ctx, "export delivery failed",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		b.sendText(chatID, render.ErrGeneric)
		return
	}
	b.sendText(chatID, render.MsgExportReady)
}

// resendActiveQuestion repeats the question the run is waiting on, so the
// user doesn't have to scroll back after a break.
func (b *Bot) resendActiveQuestion(rt *chatRuntime, chatID int64) {
	msgs := rt.eng.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == entity.RoleAssistant && msgs[i].IsQuestion {
			text, parseMode := render.Message(msgs[i])
			_ = b.sendMessage(chatID, text, parseMode, nil)
			return
		}
	}
}
