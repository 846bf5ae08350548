package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/futig/wizard-backend/internal/entity"
)

// SessionMessageRepository defines the interface for conversation log persistence.
// Messages are stored as ordered JSON payloads; replace is the overwrite
// semantics of the history endpoint, append serves the step flow.
type SessionMessageRepository interface {
	GetSessionMessages(ctx context.Context, sessionID string) ([]entity.Message, error)
	AppendMessages(ctx context.Context, sessionID string, msgs []entity.Message) error
	ReplaceMessages(ctx context.Context, sessionID string, msgs []entity.Message) error
	DeleteSessionMessages(ctx context.Context, sessionID string) error
}

var _ SessionMessageRepository = &SessionMessagePostgres{}

// SessionMessagePostgres implements SessionMessageRepository using PostgreSQL
type SessionMessagePostgres struct {
	db *pgxpool.Pool
}

func NewSessionMessagePostgres(db *pgxpool.Pool) *SessionMessagePostgres {
	return &SessionMessagePostgres{db: db}
}

func (r *SessionMessagePostgres) GetSessionMessages(ctx context.Context, sessionID string) ([]entity.Message, error) {
	sessID, err := parseUUID(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT payload FROM session_messages
		WHERE session_id = $1
		ORDER BY position`,
		sessID,
	)
	if err != nil {
		return nil, fmt.Errorf("get session messages: %w", err)
	}
	defer rows.Close()

	messages := make([]entity.Message, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		var msg entity.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("decode session message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session messages: %w", err)
	}

	return messages, nil
}

func (r *SessionMessagePostgres) AppendMessages(ctx context.Context, sessionID string, msgs []entity.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	sessID, err := parseUUID(sessionID)
	if err != nil {
		return err
	}

	var next int32
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM session_messages WHERE session_id = $1`,
		sessID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next message position: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range msgs {
		payload, err := json.Marshal(msgs[i])
		if err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
		batch.Queue(`
			INSERT INTO session_messages (id, session_id, position, payload)
			VALUES ($1, $2, $3, $4)`,
			pgtype.UUID{Bytes: uuid.New(), Valid: true}, sessID, next+int32(i), payload,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range msgs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}

	return nil
}

// ReplaceMessages swaps the whole log in one transaction, last write wins.
func (r *SessionMessagePostgres) ReplaceMessages(ctx context.Context, sessionID string, msgs []entity.Message) error {
	sessID, err := parseUUID(sessionID)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace messages: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_messages WHERE session_id = $1`, sessID); err != nil {
		return fmt.Errorf("clear session messages: %w", err)
	}

	if len(msgs) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"session_messages"},
			[]string{"id", "session_id", "position", "payload"},
			pgx.CopyFromSlice(len(msgs), func(i int) ([]any, error) {
				payload, err := json.Marshal(msgs[i])
				if err != nil {
					return nil, fmt.Errorf("encode message %d: %w", i, err)
				}
				return []any{pgtype.UUID{Bytes: uuid.New(), Valid: true}, sessID, int32(i), payload}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy session messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace messages: %w", err)
	}

	return nil
}

func (r *SessionMessagePostgres) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	sessID, err := parseUUID(sessionID)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM session_messages WHERE session_id = $1`, sessID); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}

	return nil
}
