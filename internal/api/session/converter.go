package session

import "github.com/futig/wizard-backend/internal/entity"

// sessionEnvelope is the common response body for session-mutating endpoints.
type sessionEnvelope struct {
	Session  *entity.SessionDTO `json:"session"`
	Messages []entity.Message   `json:"messages,omitempty"`
	Replayed bool               `json:"replayed,omitempty"`
}

// toSessionDTO converts Session entity to its wire shape
func toSessionDTO(session *entity.Session) *entity.SessionDTO {
	return &entity.SessionDTO{
		ID:          session.ID,
		WorkspaceID: session.WorkspaceID,
		UserID:      session.UserID,
		Wizard:      session.Wizard,
		Status:      session.Status,
		CurrentStep: session.CurrentStep,
		Completed:   session.Completed,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
	}
}

func toSessionEnvelope(session *entity.Session, messages []entity.Message, replayed bool) *sessionEnvelope {
	return &sessionEnvelope{
		Session:  toSessionDTO(session),
		Messages: messages,
		Replayed: replayed,
	}
}
