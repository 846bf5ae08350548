package repository

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/futig/wizard-backend/internal/entity"
)

func parseUUID(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("%w: invalid session ID %q", entity.ErrInvalidParameter, id)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

// sessionRow mirrors one sessions row before conversion to the entity.
type sessionRow struct {
	ID          pgtype.UUID
	WorkspaceID string
	UserID      string
	Wizard      string
	Status      string
	CurrentStep int32
	Completed   []bool
	Payloads    []byte
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

func (r *sessionRow) scanTargets() []any {
	return []any{
		&r.ID, &r.WorkspaceID, &r.UserID, &r.Wizard, &r.Status,
		&r.CurrentStep, &r.Completed, &r.Payloads, &r.CreatedAt, &r.UpdatedAt,
	}
}

func toEntitySession(row *sessionRow) (*entity.Session, error) {
	sessionUUID := uuid.UUID(row.ID.Bytes)

	session := &entity.Session{
		ID:          sessionUUID.String(),
		WorkspaceID: row.WorkspaceID,
		UserID:      row.UserID,
		Wizard:      row.Wizard,
		Status:      entity.SessionStatus(row.Status),
		CurrentStep: int(row.CurrentStep),
		Completed:   row.Completed,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}

	if len(row.Payloads) > 0 {
		if err := json.Unmarshal(row.Payloads, &session.Payloads); err != nil {
			return nil, fmt.Errorf("decode step payloads: %w", err)
		}
	}

	return session, nil
}

func marshalPayloads(session *entity.Session) ([]byte, error) {
	if len(session.Payloads) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(session.Payloads)
	if err != nil {
		return nil, fmt.Errorf("encode step payloads: %w", err)
	}
	return data, nil
}
