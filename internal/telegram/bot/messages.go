package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/telegram/render"
)

// handleMessage routes one non-command message into the chat's wizard run.
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	rt := b.runtime(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := b.mountRuntime(ctx, rt, chatID, message.From.ID); err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	// Any ordinary message resolves a pending cancel prompt in favor of
	// continuing.
	rt.pendingCancel = false

	switch {
	case message.Voice != nil:
		b.handleVoice(ctx, rt, message)
	case message.Text != "":
		b.handleText(ctx, rt, chatID, message.Text)
	default:
		b.sendText(chatID, render.ErrUnsupportedContent)
	}
}

// handleText feeds one answer into the engine. Call with the chat lock held.
func (b *Bot) handleText(ctx context.Context, rt *chatRuntime, chatID int64, text string) {
	if rt.eng == nil {
		b.sendMessage(chatID, render.MsgNoActiveSession, "", b.keyboard.PlanSelectionKeyboard(planChoices()))
		return
	}

	// A chosen plan with no session means the start never went through;
	// this message is the retry.
	if rt.eng.Session() == nil {
		b.beginRun(ctx, rt, chatID)
		return
	}

	switch rt.eng.Stage().Kind {
	case entity.StageComplete:
		b.sendMessage(chatID, render.MsgAlreadyComplete, "", b.keyboard.ExportKeyboard())
		return
	case entity.StageSubmitting:
		b.sendText(chatID, render.MsgStillWorking)
		return
	}

	typing := newTypingNotifier(b.api, chatID, b.logger)
	typing.Start(ctx)
	err := rt.eng.HandleInput(ctx, text)
	typing.Stop()

	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	if rt.eng.Stage().Kind == entity.StageComplete {
		b.sendMessage(chatID, render.MsgExportPick, "", b.keyboard.ExportKeyboard())
	}
}

// handleVoice transcribes a voice note and feeds the text through the same
// path a typed answer takes. Call with the chat lock held.
func (b *Bot) handleVoice(ctx context.Context, rt *chatRuntime, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if rt.eng == nil {
		b.sendMessage(chatID, render.MsgNoActiveSession, "", b.keyboard.PlanSelectionKeyboard(planChoices()))
		return
	}

	typing := newTypingNotifier(b.api, chatID, b.logger)
	typing.Start(ctx)
	text, err := b.transcribeVoice(ctx, message.Voice)
	typing.Stop()

	if err != nil {
		ctxzap.Warn(ctx, "voice transcription failed",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		switch {
		case errors.Is(err, entity.ErrFileTooLarge):
			b.sendText(chatID, render.ErrVoiceTooLarge)
		case errors.Is(err, context.DeadlineExceeded):
			b.sendText(chatID, render.ErrTimeout)
		default:
			b.sendText(chatID, render.ErrTranscription)
		}
		return
	}

	// Echo what was heard so recognition mistakes are visible before the
	// answer is taken.
	b.sendText(chatID, render.Transcribed(text))
	b.handleText(ctx, rt, chatID, text)
}

func (b *Bot) transcribeVoice(ctx context.Context, voice *tgbotapi.Voice) (string, error) {
	data, err := downloadVoiceFile(ctx, b.api, voice.FileID, b.cfg.TelegramCfg.MaxVoiceBytes)
	if err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}

	text, err := b.backend.Transcribe(ctx, data, voiceFilename(voice))
	if err != nil {
		return "", fmt.Errorf("transcribe voice: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("transcription returned no text")
	}
	return text, nil
}

// beginRun starts the session for an already selected plan. Call with the
// chat lock held.
func (b *Bot) beginRun(ctx context.Context, rt *chatRuntime, chatID int64) {
	typing := newTypingNotifier(b.api, chatID, b.logger)
	typing.Start(ctx)
	err := rt.eng.Begin(ctx)
	typing.Stop()

	if err != nil {
		b.reportError(ctx, chatID, err)
	}
}
