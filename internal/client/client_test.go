package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/config"
	"github.com/futig/wizard-backend/internal/entity"
	pkghttp "github.com/futig/wizard-backend/pkg/http"
)

func testConnectorConfig(url string) config.BackendConnectorConfig {
	return config.BackendConnectorConfig{
		HTTPClientConfig: config.HTTPClientConfig{
			RequestTimeout:        5 * time.Second,
			ConnTimeout:           5 * time.Second,
			KeepAlive:             30 * time.Second,
			IdleConnTimeout:       30 * time.Second,
			ResponseHeaderTimeout: 5 * time.Second,
			Url:                   url,
		},
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testConnectorConfig(srv.URL), zap.NewNop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCreateSessionPostsAndDecodes(t *testing.T) {
	t.Parallel()

	var gotReq entity.StartSessionRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(t, w, http.StatusCreated, map[string]any{
			"session": map[string]any{
				"session_id":   "s-1",
				"workspace_id": gotReq.WorkspaceID,
				"wizard":       gotReq.Wizard,
				"status":       "ACTIVE",
			},
			"messages": []map[string]any{
				{"role": "assistant", "content": "Welcome!"},
				{"role": "assistant", "content": "What is your name?", "is_question": true},
			},
		})
	}))

	resp, err := c.CreateSession(context.Background(), &entity.StartSessionRequest{
		WorkspaceID: "ws-1",
		UserID:      "u-1",
		Wizard:      "profile",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if gotReq.Wizard != "profile" || gotReq.WorkspaceID != "ws-1" {
		t.Fatalf("request not forwarded: %+v", gotReq)
	}
	if resp.Session.ID != "s-1" || resp.Session.Status != entity.SessionStatusActive {
		t.Fatalf("unexpected session: %+v", resp.Session)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(resp.Messages))
	}
}

func TestCreateSessionRejectsEmptyEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusCreated, map[string]any{})
	}))

	if _, err := c.CreateSession(context.Background(), &entity.StartSessionRequest{Wizard: "profile"}); err == nil {
		t.Fatal("expected error for envelope without session")
	}
}

func TestSubmitStepBuildsPath(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/s-1/challenges" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req entity.StepActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Answers["pain"] != "slow reports" {
			t.Errorf("answers not forwarded: %+v", req.Answers)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"session":  map[string]any{"session_id": "s-1", "status": "ACTIVE"},
			"replayed": true,
		})
	}))

	resp, err := c.SubmitStep(context.Background(), "s-1", "challenges", &entity.StepActionRequest{
		Answers: map[string]string{"pain": "slow reports"},
	})
	if err != nil {
		t.Fatalf("SubmitStep: %v", err)
	}
	if !resp.Replayed {
		t.Fatal("replayed flag lost in decoding")
	}
}

func TestNotFoundMapsToSessionSentinel(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, entity.ErrorResponse{
			Error:   "Not Found",
			Message: "session not found: s-9",
		})
	}))

	_, err := c.CurrentQuestion(context.Background(), "s-9")
	if !errors.Is(err, entity.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "session not found: s-9") {
		t.Fatalf("server message lost: %v", err)
	}
}

func TestConflictMapsToInvalidStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusConflict, entity.ErrorResponse{
			Error:   "Conflict",
			Message: "session is cancelled",
		})
	}))

	err := c.CancelSession(context.Background(), "s-1")
	if !errors.Is(err, entity.ErrInvalidSessionStatus) {
		t.Fatalf("expected ErrInvalidSessionStatus, got %v", err)
	}
}

func TestServerErrorPassesThrough(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, entity.ErrorResponse{Error: "Internal Server Error"})
	}))

	err := c.DeleteSession(context.Background(), "s-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *pkghttp.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected raw HTTPError 500, got %v", err)
	}
	if errors.Is(err, entity.ErrSessionNotFound) || errors.Is(err, entity.ErrInvalidParameter) {
		t.Fatalf("500 must not map to a session sentinel: %v", err)
	}
}

func TestNetworkErrorPassesThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(testConnectorConfig(url), zap.NewNop())

	_, err := c.FetchHistory(context.Background(), "s-1")
	var netErr *pkghttp.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestFetchHistoryEmptyLog(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/sessions/s-1/conversation-history" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, entity.ConversationHistory{Messages: []entity.Message{}})
	}))

	msgs, err := c.FetchHistory(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty log, got %d messages", len(msgs))
	}
}

func TestSaveHistoryPostsLog(t *testing.T) {
	t.Parallel()

	var got entity.ConversationHistory
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions/s-1/conversation-history" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	msgs := []entity.Message{
		{ID: "m-1", Role: entity.RoleUser, Content: "hi"},
		{Role: entity.RoleAssistant, Content: "Question 1", IsQuestion: true, QuestionNumber: 1},
	}
	if err := c.SaveHistory(context.Background(), "s-1", msgs); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].ID != "m-1" {
		t.Fatalf("log not forwarded: %+v", got.Messages)
	}
}

func TestExportDownloadsDocument(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/s-3/export" || r.URL.Query().Get("format") != "pdf" {
			t.Errorf("unexpected request: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="transcript-s-3.pdf"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("%PDF-1.4 fake")); err != nil {
			t.Errorf("write body: %v", err)
		}
	}))

	doc, err := c.Export(context.Background(), "s-3", entity.ExportFormatPDF)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if doc.Filename != "transcript-s-3.pdf" {
		t.Fatalf("unexpected filename: %q", doc.Filename)
	}
	if doc.ContentType != "application/pdf" {
		t.Fatalf("unexpected content type: %q", doc.ContentType)
	}
	if string(doc.Data) != "%PDF-1.4 fake" {
		t.Fatalf("body corrupted: %q", doc.Data)
	}
}

func TestExportRejectsUnknownFormatLocally(t *testing.T) {
	t.Parallel()

	var called bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.Export(context.Background(), "s-1", entity.ExportFormat("csv"))
	if !errors.Is(err, entity.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if called {
		t.Fatal("invalid format must not reach the server")
	}
}

func TestExportFilenameFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		disposition string
		format      entity.ExportFormat
		want        string
	}{
		{`attachment; filename="custom.docx"`, entity.ExportFormatDOCX, "custom.docx"},
		{"", entity.ExportFormatMarkdown, "transcript-s-1.md"},
		{"attachment", entity.ExportFormatPDF, "transcript-s-1.pdf"},
		{"not a header;;;", entity.ExportFormatDOCX, "transcript-s-1.docx"},
	}
	for _, tc := range cases {
		if got := exportFilename(tc.disposition, "s-1", tc.format); got != tc.want {
			t.Errorf("exportFilename(%q, %v) = %q, want %q", tc.disposition, tc.format, got, tc.want)
		}
	}
}

func TestTranscribeSendsMultipart(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("form file: %v", err)
			writeJSON(t, w, http.StatusBadRequest, entity.ErrorResponse{Error: "Bad Request"})
			return
		}
		defer file.Close()
		if header.Filename != "note.ogg" {
			t.Errorf("unexpected filename: %q", header.Filename)
		}
		writeJSON(t, w, http.StatusOK, entity.TranscribeResponse{Text: "hello from voice"})
	}))

	text, err := c.Transcribe(context.Background(), []byte("fake-ogg-bytes"), "note.ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello from voice" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestAuthTokenAttached(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(t, w, http.StatusOK, entity.ConversationHistory{})
	}))
	t.Cleanup(srv.Close)

	cfg := testConnectorConfig(srv.URL)
	cfg.Token = "secret-token"
	c := New(cfg, zap.NewNop())

	if _, err := c.FetchHistory(context.Background(), "s-1"); err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected Authorization header: %q", gotAuth)
	}
}
