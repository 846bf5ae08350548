package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/telegram/render"
	pkghttp "github.com/futig/wizard-backend/pkg/http"
)

func TestClassifyValidationErrorSurfacesHint(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: please give at least 25 characters", entity.ErrAnswerTooShort)
	he := classifyError(err)

	if he.Severity != severityWarning {
		t.Fatalf("expected a warning, got %v", he.Severity)
	}
	if he.UserMessage != "✋ Please give at least 25 characters." {
		t.Fatalf("unexpected user message: %s", he.UserMessage)
	}
}

func TestClassifyYesNoError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: please answer yes or no", entity.ErrNotYesNo)
	he := classifyError(err)

	if he.UserMessage != "✋ Please answer yes or no." {
		t.Fatalf("unexpected user message: %s", he.UserMessage)
	}
}

func TestClassifySessionErrors(t *testing.T) {
	t.Parallel()

	gone := classifyError(fmt.Errorf("no active session: %w", entity.ErrSessionNotFound))
	if gone.UserMessage != render.ErrSessionGone || gone.Severity != severityWarning {
		t.Fatalf("unexpected classification: %+v", gone)
	}

	conflict := classifyError(fmt.Errorf("submit step 'x': %w", entity.ErrInvalidSessionStatus))
	if conflict.UserMessage != render.ErrSessionGone {
		t.Fatalf("unexpected classification: %+v", conflict)
	}

	busy := classifyError(fmt.Errorf("input ignored on stage 'submitting': %w", entity.ErrStepNotActive))
	if busy.UserMessage != render.MsgStillWorking {
		t.Fatalf("unexpected classification: %+v", busy)
	}
}

func TestClassifyTimeoutAndNetwork(t *testing.T) {
	t.Parallel()

	timeout := classifyError(fmt.Errorf("submit step 'x': %w", context.DeadlineExceeded))
	if timeout.UserMessage != render.ErrTimeout || timeout.Severity != severityError {
		t.Fatalf("unexpected classification: %+v", timeout)
	}

	network := classifyError(fmt.Errorf("submit step 'x': %w",
		&pkghttp.NetworkError{Err: errors.New("dial tcp: connection refused")}))
	if network.UserMessage != render.ErrNetworkIssue {
		t.Fatalf("unexpected classification: %+v", network)
	}
}

func TestClassifyBackendStatus(t *testing.T) {
	t.Parallel()

	unavailable := classifyError(fmt.Errorf("submit step 'x': %w",
		&pkghttp.HTTPError{StatusCode: 503, Message: "upstream down"}))
	if unavailable.UserMessage != render.ErrServiceUnavailable {
		t.Fatalf("unexpected classification: %+v", unavailable)
	}

	// Client-side statuses without a mapped sentinel stay generic.
	teapot := classifyError(fmt.Errorf("submit step 'x': %w",
		&pkghttp.HTTPError{StatusCode: 418, Message: "short and stout"}))
	if teapot.UserMessage != render.ErrGeneric {
		t.Fatalf("unexpected classification: %+v", teapot)
	}
}

func TestClassifyUnknownErrorIsGeneric(t *testing.T) {
	t.Parallel()

	he := classifyError(errors.New("something odd"))
	if he.UserMessage != render.ErrGeneric || he.Severity != severityError {
		t.Fatalf("unexpected classification: %+v", he)
	}
}

func TestValidationHintWithoutTail(t *testing.T) {
	t.Parallel()

	hint := validationHint(errors.New("too short"))
	if hint != "Too short." {
		t.Fatalf("unexpected hint: %s", hint)
	}
}

func TestVoiceFilename(t *testing.T) {
	t.Parallel()

	named := voiceFilename(&tgbotapi.Voice{FileUniqueID: "AgADb567"})
	if named != "AgADb567.ogg" {
		t.Fatalf("unexpected filename: %s", named)
	}
	if !strings.HasSuffix(voiceFilename(&tgbotapi.Voice{}), ".ogg") {
		t.Fatal("expected an ogg fallback")
	}
}

func TestWorkspaceIDIsChatScoped(t *testing.T) {
	t.Parallel()

	if workspaceID(42) == workspaceID(43) {
		t.Fatal("expected distinct workspaces per chat")
	}
	if workspaceID(42) != "tg-42" {
		t.Fatalf("unexpected workspace id: %s", workspaceID(42))
	}
}
