// Package client is the HTTP client for the wizard backend. It speaks the
// session API the bot-side engine drives and maps transport failures onto the
// session sentinels.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/config"
	"github.com/futig/wizard-backend/internal/engine"
	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/integration/common"
	pkghttp "github.com/futig/wizard-backend/pkg/http"
)

var (
	_ engine.SessionAPI            = (*Client)(nil)
	_ engine.ConversationLogClient = (*Client)(nil)
)

type Client struct {
	config    config.BackendConnectorConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

// New builds a backend client from the connector config. Retries are not done
// here: the engine reissues interrupted step calls from durable markers and
// retries the log fetch itself, so another retry layer would nest with those.
func New(cfg config.BackendConnectorConfig, logger *zap.Logger) *Client {
	return &Client{
		config:    cfg,
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		logger:    logger,
	}
}

func (c *Client) CreateSession(ctx context.Context, req *entity.StartSessionRequest) (*entity.SessionResponse, error) {
	ctxzap.Info(ctx, "creating wizard session",
		zap.String("workspace_id", req.WorkspaceID),
		zap.String("wizard", req.Wizard),
	)

	var resp entity.SessionResponse
	if err := c.connector.DoRequest(ctx, http.MethodPost, "/sessions", req, &resp); err != nil {
		return nil, mapError(err)
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("invalid create session response: no session")
	}

	return &resp, nil
}

func (c *Client) SubmitStep(ctx context.Context, sessionID, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error) {
	ctxzap.Info(ctx, "submitting step action",
		zap.String("session_id", sessionID),
		zap.String("step_action", action),
	)

	endpoint := fmt.Sprintf("/sessions/%s/%s", sessionID, action)

	var resp entity.StepActionResponse
	if err := c.connector.DoRequest(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, mapError(err)
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("invalid step action response: no session")
	}

	return &resp, nil
}

func (c *Client) CurrentQuestion(ctx context.Context, sessionID string) (*entity.CurrentQuestionResponse, error) {
	endpoint := fmt.Sprintf("/sessions/%s/current-question", sessionID)

	var resp entity.CurrentQuestionResponse
	if err := c.connector.DoRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, mapError(err)
	}

	return &resp, nil
}

func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	ctxzap.Info(ctx, "cancelling session", zap.String("session_id", sessionID))

	endpoint := fmt.Sprintf("/sessions/%s/cancel", sessionID)
	if err := c.connector.DoRequest(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return mapError(err)
	}

	return nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	ctxzap.Info(ctx, "deleting session", zap.String("session_id", sessionID))

	endpoint := fmt.Sprintf("/sessions/%s", sessionID)
	if err := c.connector.DoRequest(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return mapError(err)
	}

	return nil
}

// FetchHistory reads the server-held conversation log. An empty log returns
// an empty slice, not an error.
func (c *Client) FetchHistory(ctx context.Context, sessionID string) ([]entity.Message, error) {
	endpoint := fmt.Sprintf("/sessions/%s/conversation-history", sessionID)

	var resp entity.ConversationHistory
	if err := c.connector.DoRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, mapError(err)
	}

	return resp.Messages, nil
}

// SaveHistory overwrites the server-held conversation log, last write wins.
func (c *Client) SaveHistory(ctx context.Context, sessionID string, msgs []entity.Message) error {
	ctxzap.Debug(ctx, "pushing conversation log",
		zap.String("session_id", sessionID),
		zap.Int("message_count", len(msgs)),
	)

	endpoint := fmt.Sprintf("/sessions/%s/conversation-history", sessionID)
	body := entity.ConversationHistory{Messages: msgs}
	if err := c.connector.DoRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return mapError(err)
	}

	return nil
}

// ExportedDocument is a rendered transcript file fetched from the backend.
type ExportedDocument struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export downloads the session transcript rendered in the given format.
func (c *Client) Export(ctx context.Context, sessionID string, format entity.ExportFormat) (*ExportedDocument, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrInvalidParameter, err)
	}

	ctxzap.Info(ctx, "exporting transcript",
		zap.String("session_id", sessionID),
		zap.String("format", string(format)),
	)

	endpoint := fmt.Sprintf("/sessions/%s/export?format=%s", sessionID, format)

	data, header, err := c.connector.DoRawRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, mapError(err)
	}

	return &ExportedDocument{
		Filename:    exportFilename(header.Get("Content-Disposition"), sessionID, format),
		ContentType: header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Transcribe converts a recorded audio file to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctxzap.Info(ctx, "transcribing audio",
		zap.String("filename", filename),
		zap.Int("size_bytes", len(audio)),
	)

	prepareBody := func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("audio", filename)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(audio); err != nil {
			return fmt.Errorf("write audio data: %w", err)
		}
		return nil
	}

	var resp entity.TranscribeResponse
	if err := c.connector.DoMultipartRequest(ctx, http.MethodPost, "/transcriptions", prepareBody, &resp); err != nil {
		return "", mapError(err)
	}

	return resp.Text, nil
}

// exportFilename takes the server-suggested name from Content-Disposition and
// falls back to a derived one when the header is missing or malformed.
func exportFilename(disposition, sessionID string, format entity.ExportFormat) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}

	ext := ".md"
	switch format {
	case entity.ExportFormatPDF:
		ext = ".pdf"
	case entity.ExportFormatDOCX:
		ext = ".docx"
	}
	return fmt.Sprintf("transcript-%s%s", sessionID, ext)
}

// mapError converts HTTP failures into the session sentinels callers branch
// on. The server's error body carries the human-readable cause; network-level
// failures pass through unchanged so callers can tell the two apart.
func mapError(err error) error {
	var httpErr *pkghttp.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	msg := httpErr.Message
	var body entity.ErrorResponse
	if uerr := json.Unmarshal([]byte(httpErr.Message), &body); uerr == nil && body.Message != "" {
		msg = body.Message
	}

	switch httpErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", entity.ErrSessionNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", entity.ErrInvalidSessionStatus, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", entity.ErrInvalidParameter, msg)
	default:
		return err
	}
}
