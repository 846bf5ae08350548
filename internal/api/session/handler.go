package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/pkg/formatter"
	"github.com/futig/wizard-backend/internal/pkg/logger"
	"github.com/futig/wizard-backend/internal/pkg/response"
	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

type Handler struct {
	usecase SessionUsecase
}

func NewHandler(usecase SessionUsecase) *Handler {
	return &Handler{
		usecase: usecase,
	}
}

// StartSession handles POST /sessions - Start a wizard session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "StartSession")

	var req entity.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx = logger.AddFields(ctx,
		zap.String("workspace_id", req.WorkspaceID),
		zap.String("wizard", req.Wizard),
	)
	ctxzap.Info(ctx, "starting wizard session")

	resp, err := h.usecase.StartSession(ctx, &req)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "session started",
		zap.String("session_id", resp.Session.ID),
	)

	response.Created(w, toSessionEnvelope(resp.Session, resp.Messages, false))
}

// GetSession handles GET /sessions/{id} - Get session status and progress
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "GetSession"),
	)

	ctxzap.Debug(ctx, "fetching session")

	session, err := h.usecase.GetSession(ctx, sessionID)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	response.Success(w, toSessionDTO(session))
}

// SubmitStep handles POST /sessions/{id}/{action} - Submit one step's answers.
// Replaying an already-completed step returns its stored messages verbatim.
func (h *Handler) SubmitStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")
	stepAction := chi.URLParam(r, "action")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("step", stepAction),
		zap.String("action", "SubmitStep"),
	)

	var req entity.StepActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctxzap.Info(ctx, "submitting step action",
		zap.Int("answers", len(req.Answers)),
	)

	resp, err := h.usecase.SubmitStep(ctx, sessionID, stepAction, &req)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "step action processed",
		zap.Bool("replayed", resp.Replayed),
		zap.String("status", string(resp.Session.Status)),
	)

	response.Success(w, toSessionEnvelope(resp.Session, resp.Messages, resp.Replayed))
}

// CurrentQuestion handles GET /sessions/{id}/current-question - Next pending
// question, for clients recovering from an interrupted step.
func (h *Handler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "CurrentQuestion"),
	)

	ctxzap.Debug(ctx, "resolving current question")

	resp, err := h.usecase.CurrentQuestion(ctx, sessionID)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	response.Success(w, resp)
}

// GetHistory handles GET /sessions/{id}/conversation-history - Full ordered log
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "GetHistory"),
	)

	ctxzap.Debug(ctx, "fetching conversation history")

	history, err := h.usecase.GetHistory(ctx, sessionID)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	response.Success(w, history)
}

// OverwriteHistory handles POST /sessions/{id}/conversation-history - Replace
// the stored log with the client's copy, last write wins.
func (h *Handler) OverwriteHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "OverwriteHistory"),
	)

	var req entity.ConversationHistory
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctxzap.Info(ctx, "overwriting conversation history",
		zap.Int("messages", len(req.Messages)),
	)

	if err := h.usecase.OverwriteHistory(ctx, sessionID, &req); err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	response.NoContent(w)
}

// ExportTranscript handles GET /sessions/{id}/export - Download the session
// transcript as markdown, pdf or docx.
func (h *Handler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "ExportTranscript"),
	)

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" {
		formatParam = string(entity.ExportFormatMarkdown)
	}

	format := entity.ExportFormat(formatParam)
	if err := format.Validate(); err != nil {
		ctxzap.Warn(ctx, "invalid format parameter", zap.String("format", formatParam))
		h.respondError(ctx, w, http.StatusBadRequest, "invalid format parameter",
			fmt.Errorf("format must be one of: markdown, pdf, docx"))
		return
	}

	ctx = logger.AddFields(ctx, zap.String("format", string(format)))
	ctxzap.Debug(ctx, "exporting session transcript")

	title, text, err := h.usecase.ExportTranscript(ctx, sessionID)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	factory := formatter.NewFactory()
	fmtr, err := factory.Create(format)
	if err != nil {
		ctxzap.Error(ctx, "format not implemented", zap.Error(err))
		h.respondError(ctx, w, http.StatusNotImplemented, "format not implemented", err)
		return
	}

	document, err := fmtr.Format(title, text)
	if err != nil {
		ctxzap.Error(ctx, "failed to format transcript", zap.Error(err))
		h.respondError(ctx, w, http.StatusInternalServerError, "failed to format transcript", err)
		return
	}

	ctxzap.Info(ctx, "transcript exported")
	w.Header().Set("Content-Type", fmtr.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"transcript-%s%s\"", sessionID, fmtr.FileExtension()))
	w.WriteHeader(http.StatusOK)
	w.Write(document)
}

// CancelSession handles POST /sessions/{id}/cancel - Cancel session
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "CancelSession"),
	)

	ctxzap.Info(ctx, "cancelling session")

	if err := h.usecase.CancelSession(ctx, sessionID); err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "session cancelled")
	response.Success(w, map[string]string{
		"message": "session cancelled successfully",
	})
}

// DeleteSession handles DELETE /sessions/{id} - Delete session and its data
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	ctx = logger.AddFields(ctx,
		zap.String("session_id", sessionID),
		zap.String("action", "DeleteSession"),
	)

	ctxzap.Info(ctx, "deleting session")

	if err := h.usecase.DeleteSession(ctx, sessionID); err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "session deleted")
	response.NoContent(w)
}

// Transcribe handles POST /transcriptions - Voice note to text, multipart
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "Transcribe")

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "failed to parse form", err)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "audio file is required", err)
		return
	}
	defer file.Close()

	ctxzap.Info(ctx, "transcribing audio",
		zap.String("filename", header.Filename),
		zap.Int64("size_bytes", header.Size),
	)

	text, err := h.usecase.TranscribeHTTPAudio(ctx, header)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "audio transcribed", zap.Int("text_len", len(text)))
	response.Success(w, entity.TranscribeResponse{Text: text})
}

// Helper methods
func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	ctxzap.Error(ctx, message, zap.Error(err))
	response.Error(w, status, message)
}

func (h *Handler) handleUsecaseError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, entity.ErrSessionNotFound) || errors.Is(err, entity.ErrUnknownWizard) || errors.Is(err, entity.ErrUnknownAction) {
		h.respondError(ctx, w, http.StatusNotFound, "resource not found", err)
	} else if errors.Is(err, entity.ErrInvalidParameter) || errors.Is(err, entity.ErrInvalidFormat) || errors.Is(err, entity.ErrMissingField) {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid parameter", err)
	} else if errors.Is(err, entity.ErrSessionCancelled) || errors.Is(err, entity.ErrSessionCompleted) || errors.Is(err, entity.ErrInvalidSessionStatus) || errors.Is(err, entity.ErrNoResult) {
		h.respondError(ctx, w, http.StatusConflict, "invalid session state", err)
	} else if errors.Is(err, entity.ErrInvalidExtension) || errors.Is(err, entity.ErrFileTooLarge) {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid file", err)
	} else {
		h.respondError(ctx, w, http.StatusInternalServerError, "internal server error", err)
	}
}
