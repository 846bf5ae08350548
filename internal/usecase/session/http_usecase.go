package session

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
)

// TranscribeHTTPAudio validates an uploaded voice file and transcribes it.
// This is the multipart entry point used by the transcription endpoint; the
// bot ships voice notes through it.
func (uc *SessionUsecase) TranscribeHTTPAudio(ctx context.Context, audioFile *multipart.FileHeader) (string, error) {
	if err := uc.validator.ValidateAudioFile(audioFile); err != nil {
		return "", err
	}

	file, err := audioFile.Open()
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	return uc.Transcribe(ctx, audioData, audioFile.Filename)
}
