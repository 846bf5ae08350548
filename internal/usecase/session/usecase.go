package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/pkg/validator"
	"github.com/futig/wizard-backend/internal/repository"
	"github.com/futig/wizard-backend/internal/wizard"
)

// SessionUsecase implements the wizard session business logic
type SessionUsecase struct {
	sessionRepo repository.SessionRepository
	messageRepo repository.SessionMessageRepository
	resultRepo  repository.StepResultRepository
	validator   *validator.Validator
	generator   GenerationConnector
	transcriber TranscriptionConnector
	logger      *zap.Logger
}

// NewUsecase creates a new session use case
func NewUsecase(
	sessionRepo repository.SessionRepository,
	messageRepo repository.SessionMessageRepository,
	resultRepo repository.StepResultRepository,
	validator *validator.Validator,
	generator GenerationConnector,
	transcriber TranscriptionConnector,
	logger *zap.Logger,
) *SessionUsecase {
	return &SessionUsecase{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		resultRepo:  resultRepo,
		validator:   validator,
		generator:   generator,
		transcriber: transcriber,
		logger:      logger,
	}
}

// StartSession creates a fresh session for the requested wizard and seeds the
// conversation log with the welcome texts and the first question.
func (uc *SessionUsecase) StartSession(ctx context.Context, req *entity.StartSessionRequest) (
	*entity.SessionResponse, error,
) {
	if err := uc.validator.ValidateStartSession(req); err != nil {
		return nil, err
	}

	plan, err := wizard.Get(req.Wizard)
	if err != nil {
		return nil, err
	}

	session := &entity.Session{
		ID:          uuid.New().String(),
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		Wizard:      req.Wizard,
		Status:      entity.SessionStatusActive,
		CurrentStep: 1,
		Completed:   make([]bool, plan.TotalSteps()),
	}

	created, err := uc.sessionRepo.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	messages := welcomeMessages(plan)
	if err := uc.messageRepo.AppendMessages(ctx, created.ID, messages); err != nil {
		return nil, fmt.Errorf("seed conversation log: %w", err)
	}

	ctxzap.Info(ctx, "session started",
		zap.String("session_id", created.ID),
		zap.String("wizard", plan.Name),
		zap.String("workspace_id", req.WorkspaceID),
	)

	return &entity.SessionResponse{Session: created, Messages: messages}, nil
}

// SubmitStep applies one step action: records the submitted answers, runs
// generation for generate steps, marks the step complete and returns the
// messages the step produced. Re-submitting an already completed step replays
// its stored messages verbatim, so a client may safely re-issue a call whose
// outcome it never saw; generation runs at most once per step.
func (uc *SessionUsecase) SubmitStep(
	ctx context.Context,
	sessionID, action string,
	req *entity.StepActionRequest,
) (*entity.StepActionResponse, error) {
	session, err := uc.sessionRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Status == entity.SessionStatusCancelled {
		return nil, statusConflict(session.Status)
	}

	plan, err := wizard.Get(session.Wizard)
	if err != nil {
		return nil, err
	}

	step, ok := plan.StepByAction(action)
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownAction, action)
	}

	alreadyComplete := session.StepCompleted(step.Number)
	if alreadyComplete {
		stored, err := uc.resultRepo.GetResult(ctx, sessionID, step.Number)
		if err == nil {
			ctxzap.Info(ctx, "step replayed from stored result",
				zap.String("session_id", sessionID),
				zap.Int("step", step.Number),
				zap.String("action", action),
			)
			return &entity.StepActionResponse{
				Session:  session,
				Messages: stored.Messages,
				Replayed: true,
			}, nil
		}
		if !errors.Is(err, entity.ErrNoResult) {
			return nil, fmt.Errorf("get step result: %w", err)
		}
		// Completed flag without a stored result. Run the step again below
		// to reconstruct its outcome, even on a completed session; SaveResult
		// keeps whichever outcome lands first.
	}

	if !alreadyComplete && session.Status != entity.SessionStatusActive {
		return nil, statusConflict(session.Status)
	}

	if err := uc.validator.ValidateStepAction(req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode step payload: %w", err)
	}

	var messages []entity.Message
	var updated *entity.Session

	switch step.Kind {
	case wizard.StepKindGenerate:
		// Generate first, complete after: a failed generation must leave the
		// step incomplete so the client can retry it.
		messages, err = uc.runGeneration(ctx, plan, step, session)
		if err != nil {
			return nil, err
		}

		updated, err = uc.sessionRepo.CompleteStep(ctx, sessionID, step.Number, payload)
		if err != nil {
			return nil, fmt.Errorf("complete step: %w", err)
		}

		if step.Number == plan.TotalSteps() {
			messages = append(messages, completionMessage(plan))
			updated, err = uc.sessionRepo.UpdateSessionStatus(ctx, sessionID, entity.SessionStatusCompleted)
			if err != nil {
				return nil, fmt.Errorf("update session status: %w", err)
			}
		} else if next, pending := firstPendingStep(plan, updated); pending && next.Kind == wizard.StepKindInput {
			messages = append(messages, questionMessage(plan, next))
		}

	default:
		updated, err = uc.sessionRepo.CompleteStep(ctx, sessionID, step.Number, payload)
		if err != nil {
			return nil, fmt.Errorf("complete step: %w", err)
		}

		if next, pending := firstPendingStep(plan, updated); pending && next.Kind == wizard.StepKindInput {
			messages = []entity.Message{questionMessage(plan, next)}
		}
	}

	stored, err := uc.resultRepo.SaveResult(ctx, &entity.StepResult{
		SessionID: sessionID,
		Step:      step.Number,
		Action:    action,
		Request:   payload,
		Messages:  messages,
	})
	if err != nil {
		// The step itself succeeded; losing the replay record must not fail
		// the submit. A later duplicate reruns the step instead.
		ctxzap.Warn(ctx, "store step result failed",
			zap.String("session_id", sessionID),
			zap.Int("step", step.Number),
			zap.Error(err),
		)
	} else {
		messages = stored.Messages
	}

	ctxzap.Info(ctx, "step completed",
		zap.String("session_id", sessionID),
		zap.String("wizard", plan.Name),
		zap.Int("step", step.Number),
		zap.String("action", action),
		zap.Int("message_count", len(messages)),
	)

	return &entity.StepActionResponse{Session: updated, Messages: messages}, nil
}

// CurrentQuestion returns the opening question of the first step still
// waiting for input, or Done when the wizard has nothing left to ask. A
// pending generate step also reports Done: triggering generation is the
// client's move, not a question.
func (uc *SessionUsecase) CurrentQuestion(ctx context.Context, sessionID string) (
	*entity.CurrentQuestionResponse, error,
) {
	session, err := uc.sessionRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Status == entity.SessionStatusCancelled {
		return nil, statusConflict(session.Status)
	}

	plan, err := wizard.Get(session.Wizard)
	if err != nil {
		return nil, err
	}

	step, ok := firstPendingStep(plan, session)
	if !ok || step.Kind != wizard.StepKindInput {
		return &entity.CurrentQuestionResponse{SessionID: session.ID, Done: true}, nil
	}

	msg := questionMessage(plan, step)
	return &entity.CurrentQuestionResponse{SessionID: session.ID, Message: &msg}, nil
}

// GetSession retrieves a session by ID
func (uc *SessionUsecase) GetSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	session, err := uc.sessionRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// GetHistory returns the full ordered conversation log.
func (uc *SessionUsecase) GetHistory(ctx context.Context, sessionID string) (*entity.ConversationHistory, error) {
	if _, err := uc.sessionRepo.GetSessionByID(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	messages, err := uc.messageRepo.GetSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get conversation history: %w", err)
	}

	return &entity.ConversationHistory{Messages: messages}, nil
}

// OverwriteHistory replaces the stored conversation log with the submitted
// one, last write wins. Completed sessions still accept the final flush, so
// there is no status gate beyond the session existing.
func (uc *SessionUsecase) OverwriteHistory(ctx context.Context, sessionID string, req *entity.ConversationHistory) error {
	if err := uc.validator.ValidateHistoryOverwrite(req); err != nil {
		return err
	}

	if _, err := uc.sessionRepo.GetSessionByID(ctx, sessionID); err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	if err := uc.messageRepo.ReplaceMessages(ctx, sessionID, req.Messages); err != nil {
		return fmt.Errorf("overwrite conversation history: %w", err)
	}

	ctxzap.Debug(ctx, "conversation history overwritten",
		zap.String("session_id", sessionID),
		zap.Int("message_count", len(req.Messages)),
	)

	return nil
}

// CancelSession cancels an active session
func (uc *SessionUsecase) CancelSession(ctx context.Context, sessionID string) error {
	session, err := uc.sessionRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	if session.Status != entity.SessionStatusActive {
		return statusConflict(session.Status)
	}

	if _, err := uc.sessionRepo.UpdateSessionStatus(ctx, sessionID, entity.SessionStatusCancelled); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}

	ctxzap.Info(ctx, "session cancelled", zap.String("session_id", sessionID))

	return nil
}

// DeleteSession removes the session with its conversation log and stored
// step results.
func (uc *SessionUsecase) DeleteSession(ctx context.Context, sessionID string) error {
	if err := uc.sessionRepo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	ctxzap.Info(ctx, "session deleted", zap.String("session_id", sessionID))

	return nil
}

// ExportTranscript builds the plain-text export document for a session: the
// collected answers so far plus the conversation log. The caller picks the
// binary format.
func (uc *SessionUsecase) ExportTranscript(ctx context.Context, sessionID string) (title, text string, err error) {
	session, err := uc.sessionRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("get session: %w", err)
	}

	if session.Status == entity.SessionStatusCancelled {
		return "", "", statusConflict(session.Status)
	}

	plan, err := wizard.Get(session.Wizard)
	if err != nil {
		return "", "", err
	}

	messages, err := uc.messageRepo.GetSessionMessages(ctx, sessionID)
	if err != nil {
		return "", "", fmt.Errorf("get conversation history: %w", err)
	}

	return plan.Title, buildTranscript(plan, session, messages), nil
}

// Transcribe converts a recorded voice note to text.
func (uc *SessionUsecase) Transcribe(ctx context.Context, audioData []byte, filename string) (string, error) {
	transcript, err := uc.transcriber.TranscribeBytes(ctx, audioData, filename)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	if transcript == "" {
		return "", fmt.Errorf("transcription is empty")
	}

	return transcript, nil
}
