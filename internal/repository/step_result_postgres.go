package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/futig/wizard-backend/internal/entity"
)

// StepResultRepository stores the outcome of each completed step. First write
// wins; a re-submit reads the stored messages back instead of regenerating.
type StepResultRepository interface {
	SaveResult(ctx context.Context, result *entity.StepResult) (*entity.StepResult, error)
	GetResult(ctx context.Context, sessionID string, step int) (*entity.StepResult, error)
}

var _ StepResultRepository = &StepResultPostgres{}

// StepResultPostgres implements StepResultRepository using PostgreSQL
type StepResultPostgres struct {
	db *pgxpool.Pool
}

func NewStepResultPostgres(db *pgxpool.Pool) *StepResultPostgres {
	return &StepResultPostgres{db: db}
}

// SaveResult inserts the result unless one already exists for the step, then
// returns whatever is stored. Under a concurrent duplicate submit both
// callers end up returning the same winner row.
func (r *StepResultPostgres) SaveResult(ctx context.Context, result *entity.StepResult) (*entity.StepResult, error) {
	sessID, err := parseUUID(result.SessionID)
	if err != nil {
		return nil, err
	}

	messages, err := json.Marshal(result.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode result messages: %w", err)
	}

	var request []byte
	if len(result.Request) > 0 {
		request = []byte(result.Request)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO step_results (session_id, step, action, request, messages)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, step) DO NOTHING`,
		sessID, int32(result.Step), result.Action, request, messages,
	)
	if err != nil {
		return nil, fmt.Errorf("save step result: %w", err)
	}

	return r.GetResult(ctx, result.SessionID, result.Step)
}

func (r *StepResultPostgres) GetResult(ctx context.Context, sessionID string, step int) (*entity.StepResult, error) {
	sessID, err := parseUUID(sessionID)
	if err != nil {
		return nil, err
	}

	var (
		action    string
		request   []byte
		messages  []byte
		createdAt pgtype.Timestamptz
	)
	err = r.db.QueryRow(ctx, `
		SELECT action, request, messages, created_at
		FROM step_results
		WHERE session_id = $1 AND step = $2`,
		sessID, int32(step),
	).Scan(&action, &request, &messages, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("get step result: %w", err)
	}

	result := &entity.StepResult{
		SessionID: sessionID,
		Step:      step,
		Action:    action,
		CreatedAt: createdAt.Time,
	}
	if len(request) > 0 {
		result.Request = json.RawMessage(request)
	}
	if err := json.Unmarshal(messages, &result.Messages); err != nil {
		return nil, fmt.Errorf("decode result messages: %w", err)
	}

	return result, nil
}
