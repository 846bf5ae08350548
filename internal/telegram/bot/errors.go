package bot

import (
	"context"
	"errors"
	"net"
	"strings"
	"unicode"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/telegram/render"
	pkghttp "github.com/futig/wizard-backend/pkg/http"
)

type errorSeverity int

const (
	severityWarning errorSeverity = iota
	severityError
)

// handlerError pairs what the user sees with what the log records.
type handlerError struct {
	Err         error
	UserMessage string
	LogMessage  string
	Severity    errorSeverity
}

// classifyError sorts an engine or backend failure into the reply the user
// gets. Validation failures carry their hint in the message tail, so the tail
// is surfaced verbatim.
func classifyError(err error) *handlerError {
	switch {
	case errors.Is(err, entity.ErrAnswerTooShort),
		errors.Is(err, entity.ErrNotYesNo),
		errors.Is(err, entity.ErrAnswerEchoesQuestion):
		return &handlerError{
			Err:         err,
			UserMessage: "✋ " + validationHint(err),
			LogMessage:  "answer rejected",
			Severity:    severityWarning,
		}
	case errors.Is(err, entity.ErrSessionNotFound),
		errors.Is(err, entity.ErrInvalidSessionStatus):
		return &handlerError{
			Err:         err,
			UserMessage: render.ErrSessionGone,
			LogMessage:  "session unavailable",
			Severity:    severityWarning,
		}
	case errors.Is(err, entity.ErrStepNotActive):
		return &handlerError{
			Err:         err,
			UserMessage: render.MsgStillWorking,
			LogMessage:  "input outside an active step",
			Severity:    severityWarning,
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &handlerError{
			Err:         err,
			UserMessage: render.ErrTimeout,
			LogMessage:  "operation timed out",
			Severity:    severityError,
		}
	}

	var netOpErr *pkghttp.NetworkError
	if errors.As(err, &netOpErr) {
		return &handlerError{
			Err:         err,
			UserMessage: render.ErrNetworkIssue,
			LogMessage:  "backend unreachable",
			Severity:    severityError,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &handlerError{
				Err:         err,
				UserMessage: render.ErrTimeout,
				LogMessage:  "network timeout",
				Severity:    severityError,
			}
		}
		return &handlerError{
			Err:         err,
			UserMessage: render.ErrNetworkIssue,
			LogMessage:  "network error",
			Severity:    severityError,
		}
	}

	var httpErr *pkghttp.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 {
		return &handlerError{
			Err:         err,
			UserMessage: render.ErrServiceUnavailable,
			LogMessage:  "backend error",
			Severity:    severityError,
		}
	}

	return &handlerError{
		Err:         err,
		UserMessage: render.ErrGeneric,
		LogMessage:  "handler error",
		Severity:    severityError,
	}
}

// validationHint extracts the user-facing tail of a validation error, the
// part after the final ": ".
func validationHint(err error) string {
	s := err.Error()
	if idx := strings.LastIndex(s, ": "); idx >= 0 && idx+2 < len(s) {
		s = s[idx+2:]
	}
	r := []rune(s)
	if len(r) == 0 {
		return "That answer didn't work, please try again."
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r) + "."
}

// reportError logs a handler failure and tells the user what happened in
// their terms.
func (b *Bot) reportError(ctx context.Context, chatID int64, err error) {
	if err == nil {
		return
	}

	he := classifyError(err)
	switch he.Severity {
	case severityWarning:
		ctxzap.Warn(ctx, he.LogMessage,
			zap.Error(he.Err),
			zap.Int64("chat_id", chatID),
		)
	default:
		ctxzap.Error(ctx, he.LogMessage,
			zap.Error(he.Err),
			zap.Int64("chat_id", chatID),
		)
	}

	b.sendText(chatID, he.UserMessage)
}
