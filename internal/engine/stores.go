package engine

import (
	"context"

	"github.com/futig/wizard-backend/internal/entity"
)

// The engine never touches storage or the network directly. All three
// persistence sources and the backend surface are injected, which is what
// makes the merge-on-read reconciliation unit-testable.

// SessionStore persists whole-run snapshots plus the minimal per-workspace
// resume pointer that is read before anything else on mount.
type SessionStore interface {
	LoadPointer(ctx context.Context, wizard, workspaceID string) (*entity.ResumePointer, error)
	SavePointer(ctx context.Context, wizard, workspaceID string, p *entity.ResumePointer) error
	LoadSnapshot(ctx context.Context, wizard, workspaceID, sessionID string) (*entity.Snapshot, error)
	SaveSnapshot(ctx context.Context, wizard, workspaceID string, s *entity.Snapshot) error
	// Delete removes the snapshot and, when it points at sessionID, the
	// resume pointer. Used by explicit reset and workspace-mismatch discard.
	Delete(ctx context.Context, wizard, workspaceID, sessionID string) error
}

// FieldCacheStore persists the in-flight state of a single step at a higher
// frequency than snapshots, so a reload mid-answer loses nothing.
type FieldCacheStore interface {
	LoadFields(ctx context.Context, wizard, workspaceID, sessionID string, step int) (*entity.FieldCache, error)
	SaveFields(ctx context.Context, wizard, workspaceID, sessionID string, step int, fc *entity.FieldCache) error
	ClearFields(ctx context.Context, wizard, workspaceID, sessionID string, step int) error
}

// MarkerStore persists the durable flags that interrupted-operation and
// dangling-step recovery depend on. Markers are scoped by workspace so runs
// sharing one store never see each other's flags.
type MarkerStore interface {
	LoadMarker(ctx context.Context, wizard, workspaceID, action string) (*entity.OperationMarker, error)
	SaveMarker(ctx context.Context, wizard, workspaceID, action string, m *entity.OperationMarker) error
	ClearMarker(ctx context.Context, wizard, workspaceID, action string) error

	LoadAwaiting(ctx context.Context, wizard, workspaceID string) (*entity.AwaitingQuestion, error)
	SaveAwaiting(ctx context.Context, wizard, workspaceID string, a *entity.AwaitingQuestion) error
	ClearAwaiting(ctx context.Context, wizard, workspaceID string) error

	RecoveryAttempted(ctx context.Context, sessionID string) (bool, error)
	SetRecoveryAttempted(ctx context.Context, sessionID string, attempted bool) error
}

// ConversationLogClient reads and overwrites the server-held message log.
// The log is authoritative for message content whenever it is non-empty.
type ConversationLogClient interface {
	FetchHistory(ctx context.Context, sessionID string) ([]entity.Message, error)
	SaveHistory(ctx context.Context, sessionID string, msgs []entity.Message) error
}

// SessionAPI is the backend surface the engine drives. Step submissions must
// be idempotent server-side: re-submitting a completed step returns the
// stored result messages without rerunning generation.
type SessionAPI interface {
	CreateSession(ctx context.Context, req *entity.StartSessionRequest) (*entity.SessionResponse, error)
	SubmitStep(ctx context.Context, sessionID, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error)
	CurrentQuestion(ctx context.Context, sessionID string) (*entity.CurrentQuestionResponse, error)
	CancelSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}
