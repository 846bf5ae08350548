package entity

import (
	"fmt"
	"time"
)

type StartSessionRequest struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	Wizard      string `json:"wizard"`
}

// SessionDTO is the wire shape of a session. Raw step payloads stay internal.
type SessionDTO struct {
	ID          string        `json:"session_id"`
	WorkspaceID string        `json:"workspace_id"`
	UserID      string        `json:"user_id"`
	Wizard      string        `json:"wizard"`
	Status      SessionStatus `json:"status"`
	CurrentStep int           `json:"current_step"`
	Completed   []bool        `json:"completed_steps"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// StepActionRequest carries the aggregate payload of one step: the literal
// answers keyed by sub-question and the order they were collected in.
type StepActionRequest struct {
	Answers map[string]string `json:"answers,omitempty"`
	Order   []string          `json:"order,omitempty"`
}

// StepActionResponse returns updated session fields plus the messages the
// step produced: the next question for input steps, the generated result
// blocks for generate steps. Replayed is true when the step was already
// complete and stored messages were returned without rerunning generation.
type StepActionResponse struct {
	Session  *Session  `json:"session"`
	Messages []Message `json:"messages,omitempty"`
	Replayed bool      `json:"replayed,omitempty"`
}

type SessionResponse struct {
	Session  *Session  `json:"session"`
	Messages []Message `json:"messages,omitempty"`
}

// CurrentQuestionResponse carries the next pending question, or Done when the
// wizard has nothing left to ask.
type CurrentQuestionResponse struct {
	SessionID string   `json:"session_id"`
	Message   *Message `json:"message,omitempty"`
	Done      bool     `json:"done,omitempty"`
}

// ConversationHistory is the full ordered message log. POSTing it overwrites
// the stored log, last write wins.
type ConversationHistory struct {
	Messages []Message `json:"messages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ExportFormat string

const (
	ExportFormatMarkdown ExportFormat = "markdown"
	ExportFormatPDF      ExportFormat = "pdf"
	ExportFormatDOCX     ExportFormat = "docx"
)

func (f ExportFormat) Validate() error {
	switch f {
	case ExportFormatMarkdown, ExportFormatPDF, ExportFormatDOCX:
		return nil
	default:
		return fmt.Errorf("unknown export format: %s", f)
	}
}
