package session

import (
	"context"

	"github.com/futig/wizard-backend/internal/entity"
)

type GenerationConnector interface {
	GenerateStep(ctx context.Context, req *entity.GenerateStepRequest) (*entity.GenerateStepResponse, error)
}

type TranscriptionConnector interface {
	TranscribeBytes(ctx context.Context, audioData []byte, filename string) (string, error)
}
