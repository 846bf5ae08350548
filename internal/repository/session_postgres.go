package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/futig/wizard-backend/internal/entity"
)

const sessionColumns = `id, workspace_id, user_id, wizard, status, current_step, completed, step_payloads, created_at, updated_at`

// SessionRepository defines the interface for session persistence
type SessionRepository interface {
	CreateSession(ctx context.Context, session *entity.Session) (*entity.Session, error)
	GetSessionByID(ctx context.Context, id string) (*entity.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status entity.SessionStatus) (*entity.Session, error)
	CompleteStep(ctx context.Context, id string, step int, payload json.RawMessage) (*entity.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

var _ SessionRepository = &SessionPostgres{}

// SessionPostgres implements SessionRepository using PostgreSQL
type SessionPostgres struct {
	db *pgxpool.Pool
}

func NewSessionPostgres(db *pgxpool.Pool) *SessionPostgres {
	return &SessionPostgres{db: db}
}

func (r *SessionPostgres) CreateSession(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	sessionID, err := parseUUID(session.ID)
	if err != nil {
		return nil, err
	}

	payloads, err := marshalPayloads(session)
	if err != nil {
		return nil, err
	}

	var row sessionRow
	err = r.db.QueryRow(ctx, `
		INSERT INTO sessions (id, workspace_id, user_id, wizard, status, current_step, completed, step_payloads)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+sessionColumns,
		sessionID, session.WorkspaceID, session.UserID, session.Wizard,
		string(session.Status), int32(session.CurrentStep), session.Completed, payloads,
	).Scan(row.scanTargets()...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return toEntitySession(&row)
}

func (r *SessionPostgres) GetSessionByID(ctx context.Context, id string) (*entity.Session, error) {
	sessionID, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	var row sessionRow
	err = r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(row.scanTargets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return toEntitySession(&row)
}

func (r *SessionPostgres) UpdateSessionStatus(ctx context.Context, id string, status entity.SessionStatus) (
	*entity.Session, error,
) {
	sessionID, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	var row sessionRow
	err = r.db.QueryRow(ctx, `
		UPDATE sessions
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		sessionID, string(status),
	).Scan(row.scanTargets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update session status: %w", err)
	}

	return toEntitySession(&row)
}

// CompleteStep marks step done, never un-done: the flag only ever flips to
// true and current_step only ever grows. The submitted payload is recorded
// under the step number for export and replay inspection.
func (r *SessionPostgres) CompleteStep(ctx context.Context, id string, step int, payload json.RawMessage) (
	*entity.Session, error,
) {
	sessionID, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	var row sessionRow
	err = r.db.QueryRow(ctx, `
		UPDATE sessions
		SET completed[$2] = true,
		    current_step = GREATEST(current_step, $2 + 1),
		    step_payloads = jsonb_set(COALESCE(step_payloads, '{}'::jsonb), ARRAY[$3::text], $4::jsonb),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		sessionID, int32(step), strconv.Itoa(step), []byte(payload),
	).Scan(row.scanTargets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("complete step: %w", err)
	}

	return toEntitySession(&row)
}

func (r *SessionPostgres) DeleteSession(ctx context.Context, id string) error {
	sessionID, err := parseUUID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrSessionNotFound
	}

	return nil
}
