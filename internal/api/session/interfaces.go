package session

import (
	"context"
	"mime/multipart"

	"github.com/futig/wizard-backend/internal/entity"
)

type SessionUsecase interface {
	StartSession(ctx context.Context, req *entity.StartSessionRequest) (*entity.SessionResponse, error)
	SubmitStep(ctx context.Context, sessionID, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error)
	CurrentQuestion(ctx context.Context, sessionID string) (*entity.CurrentQuestionResponse, error)
	GetSession(ctx context.Context, sessionID string) (*entity.Session, error)
	GetHistory(ctx context.Context, sessionID string) (*entity.ConversationHistory, error)
	OverwriteHistory(ctx context.Context, sessionID string, req *entity.ConversationHistory) error
	CancelSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	ExportTranscript(ctx context.Context, sessionID string) (title, text string, err error)
	TranscribeHTTPAudio(ctx context.Context, audioFile *multipart.FileHeader) (string, error)
}
