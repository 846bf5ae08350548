package bot

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/futig/wizard-backend/internal/entity"
)

const downloadTimeout = 30 * time.Second

var voiceHTTPClient = &http.Client{
	Timeout: downloadTimeout,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// downloadVoiceFile fetches a voice note from Telegram's file API. The
// backend transcribes ogg/opus directly, so no conversion happens here.
func downloadVoiceFile(ctx context.Context, api *tgbotapi.BotAPI, fileID string, maxBytes int64) ([]byte, error) {
	file, err := api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}

	if int64(file.FileSize) > maxBytes {
		return nil, fmt.Errorf("%w: voice note is %d bytes (max %d)", entity.ErrFileTooLarge, file.FileSize, maxBytes)
	}

	fileURL := file.Link(api.Token)
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return nil, fmt.Errorf("invalid file URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("insecure file URL scheme: %s", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := voiceHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// GetFile sizes are advisory; cap the read as well.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file data: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: voice note exceeds %d bytes", entity.ErrFileTooLarge, maxBytes)
	}

	return data, nil
}

// voiceFilename derives the upload filename the transcription endpoint
// validates the extension of.
func voiceFilename(voice *tgbotapi.Voice) string {
	if voice.FileUniqueID != "" {
		return voice.FileUniqueID + ".ogg"
	}
	return "voice.ogg"
}
