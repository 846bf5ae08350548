package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	maxSendRetries = 3
	retrySleepBase = time.Second
)

// sendMessage sends one text message, retrying transient Telegram failures
// with a linearly growing pause.
func (b *Bot) sendMessage(chatID int64, text, parseMode string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	var lastErr error
	for attempt := 0; attempt < maxSendRetries; attempt++ {
		_, err := b.api.Send(msg)
		if err == nil {
			if attempt > 0 {
				b.logger.Info("message sent after retry",
					zap.Int("attempt", attempt+1),
					zap.Int64("chat_id", chatID),
				)
			}
			return nil
		}
		lastErr = err

		if attempt < maxSendRetries-1 {
			sleep := retrySleepBase * time.Duration(attempt+1)
			b.logger.Warn("failed to send message, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_in", sleep),
				zap.Int64("chat_id", chatID),
			)
			time.Sleep(sleep)
		}
	}

	b.logger.Error("failed to send message after all retries",
		zap.Error(lastErr),
		zap.Int64("chat_id", chatID),
	)
	return lastErr
}

// sendText sends plain text with no keyboard, dropping the error after the
// retries inside sendMessage already logged it.
func (b *Bot) sendText(chatID int64, text string) {
	_ = b.sendMessage(chatID, text, "", nil)
}

// sendDocument uploads a generated export into the chat.
func (b *Bot) sendDocument(chatID int64, filename string, data []byte) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  filename,
		Bytes: data,
	})
	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("send document '%s': %w", filename, err)
	}
	return nil
}

// answerCallback acknowledges a button press so the client stops its spinner.
func (b *Bot) answerCallback(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Error("failed to answer callback",
			zap.Error(err),
			zap.String("callback_id", callbackID),
		)
	}
}
