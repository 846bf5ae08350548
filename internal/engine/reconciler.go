package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/avast/retry-go/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	pkgretry "github.com/futig/wizard-backend/internal/pkg/retry"
	"github.com/futig/wizard-backend/internal/wizard"
)

// MessageSink renders one newly produced message to the user. A sink error
// stops rendering; durable markers keep the remainder for the next mount.
type MessageSink func(ctx context.Context, msg entity.Message) error

// Resumption is the single consistent view the reconciler produces on mount.
type Resumption struct {
	Fresh    bool
	Session  *entity.Session
	Stage    entity.Stage
	UserName string
	Messages []entity.Message
	Question *entity.QuestionState
	Input    string
}

// Reconciler merges the three persistence sources into one coherent state on
// mount: local snapshot first (synchronously), then the remote conversation
// log, then the field cache, re-driving any operation a reload interrupted.
type Reconciler struct {
	plan     *wizard.Plan
	sessions SessionStore
	fields   FieldCacheStore
	markers  MarkerStore
	log      ConversationLogClient
	api      SessionAPI
	retryCfg *pkgretry.RetryConfig
}

func NewReconciler(
	plan *wizard.Plan,
	sessions SessionStore,
	fields FieldCacheStore,
	markers MarkerStore,
	log ConversationLogClient,
	api SessionAPI,
	retryCfg *pkgretry.RetryConfig,
) *Reconciler {
	if retryCfg == nil {
		retryCfg = pkgretry.DefaultRetryConfig()
	}
	return &Reconciler{
		plan:     plan,
		sessions: sessions,
		fields:   fields,
		markers:  markers,
		log:      log,
		api:      api,
		retryCfg: retryCfg,
	}
}

// Resume produces the reconciled view for a workspace. Any per-source load
// failure degrades to starting fresh for that source only; Resume itself
// fails only on context cancellation.
func (r *Reconciler) Resume(ctx context.Context, workspaceID string, sink MessageSink) (*Resumption, error) {
	ptr, err := r.sessions.LoadPointer(ctx, r.plan.Name, workspaceID)
	if err != nil || ptr == nil || ptr.SessionID == "" {
		if err != nil && !errors.Is(err, entity.ErrStateNotFound) {
			ctxzap.Warn(ctx, "resume pointer unreadable, starting fresh", zap.Error(err))
		}
		return freshResumption(), ctx.Err()
	}

	snap, err := r.sessions.LoadSnapshot(ctx, r.plan.Name, workspaceID, ptr.SessionID)
	if err != nil || snap == nil {
		if err != nil && !errors.Is(err, entity.ErrStateNotFound) {
			ctxzap.Warn(ctx, "session snapshot unreadable, starting fresh",
				zap.String("session_id", ptr.SessionID),
				zap.Error(err))
		}
		return freshResumption(), ctx.Err()
	}

	session := cloneSession(&snap.Session)

	// A restored run from another workspace is discarded, never merged.
	if session.WorkspaceID != "" && session.WorkspaceID != workspaceID {
		ctxzap.Info(ctx, "discarding session from another workspace",
			zap.String("session_id", session.ID),
			zap.String("session_workspace", session.WorkspaceID),
			zap.String("active_workspace", workspaceID))
		_ = r.sessions.Delete(ctx, r.plan.Name, workspaceID, session.ID)
		return freshResumption(), ctx.Err()
	}

	if session.Status == entity.SessionStatusCancelled {
		_ = r.sessions.Delete(ctx, r.plan.Name, workspaceID, session.ID)
		return freshResumption(), ctx.Err()
	}

	remote, fetchErr := r.fetchRemoteLog(ctx, session.ID)
	if fetchErr != nil {
		ctxzap.Warn(ctx, "conversation log fetch failed, continuing with local copy",
			zap.String("session_id", session.ID),
			zap.Error(fetchErr))
	}

	var messages []entity.Message
	switch {
	case len(remote) > 0:
		// Remote is authoritative for content; local contributes only what
		// the remote never received.
		messages = MergeMessages(remote, snap.Messages)
	case len(snap.Messages) > 0:
		messages = Dedupe(snap.Messages)
		if fetchErr == nil {
			// True empty remote with local history means a debounced push
			// never flushed; heal the gap.
			if herr := r.log.SaveHistory(ctx, session.ID, messages); herr != nil {
				ctxzap.Warn(ctx, "conversation log heal push failed", zap.Error(herr))
			}
		}
	}

	messages, session = r.resumeInterrupted(ctx, workspaceID, session, messages, sink)

	// The question state only applies to the step the snapshot was taken on.
	// A reissued call may have completed that step, and a snapshot taken
	// mid-submit holds the submitted step's state; both are stale now.
	activeStep := CurrentStepNumber(session.Completed, r.plan.TotalSteps())
	question := snap.Question
	input := snap.Input
	if snap.Stage.Kind != entity.StageAwaiting || snap.Stage.Step != activeStep {
		question = nil
		input = ""
	}

	// The field cache is written on every keystroke-sized change; prefer it
	// over the snapshot's coarser copy when it is the newer record.
	if fc, ferr := r.fields.LoadFields(ctx, r.plan.Name, workspaceID, session.ID, activeStep); ferr == nil && fc != nil {
		if question == nil || fc.SavedAt.After(snap.SavedAt) {
			q := fc.Question
			question = &q
			input = fc.Input
		}
	} else if ferr != nil && !errors.Is(ferr, entity.ErrStateNotFound) {
		ctxzap.Warn(ctx, "field cache unreadable, continuing without it", zap.Error(ferr))
	}

	messages = r.recoverDangling(ctx, workspaceID, session, question, messages, sink)

	// Normalize the restored key against the descriptor: the derivation
	// resumes an open category slot rather than its gate.
	if step, ok := r.plan.Step(activeStep); ok && step.Kind == wizard.StepKindInput {
		ctrl := NewController(r.plan, step, question)
		question = ctrl.State()
		if key := ctrl.ActiveKey(); key != "" {
			question.CurrentKey = key
		}
	}

	userName := snap.UserName
	if userName == "" {
		userName = ptr.UserName
	}

	return &Resumption{
		Session:  session,
		Stage:    r.computeStage(session, messages),
		UserName: userName,
		Messages: messages,
		Question: question,
		Input:    input,
	}, ctx.Err()
}

// fetchRemoteLog fetches the conversation log with bounded exponential
// backoff, because an empty result is ambiguous between truly empty and a
// transient failure. Retry.Timeout caps the whole fetch, attempts included,
// so a dead backend cannot stall the mount.
func (r *Reconciler) fetchRemoteLog(ctx context.Context, sessionID string) ([]entity.Message, error) {
	if r.retryCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.retryCfg.Timeout)
		defer cancel()
	}

	var msgs []entity.Message
	opts := append(
		r.retryCfg.ToRetryOptions(),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	err := retry.Do(func() error {
		fetched, ferr := r.log.FetchHistory(ctx, sessionID)
		if ferr != nil {
			return ferr
		}
		msgs = fetched
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// resumeInterrupted re-issues any step call a reload interrupted: a durable
// marker for this session means the call's outcome was never rendered. The
// server replays completed steps idempotently, and RenderedCount guarantees
// only the remainder of the result array reaches the user.
func (r *Reconciler) resumeInterrupted(
	ctx context.Context,
	workspaceID string,
	session *entity.Session,
	messages []entity.Message,
	sink MessageSink,
) ([]entity.Message, *entity.Session) {
	for i := range r.plan.Steps {
		action := r.plan.Steps[i].Action

		marker, err := r.markers.LoadMarker(ctx, r.plan.Name, workspaceID, action)
		if err != nil || marker == nil {
			continue
		}
		if marker.SessionID != session.ID {
			// A marker for a session that no longer resumes here is stale.
			_ = r.markers.ClearMarker(ctx, r.plan.Name, workspaceID, action)
			continue
		}

		ctxzap.Info(ctx, "reissuing interrupted step call",
			zap.String("session_id", session.ID),
			zap.String("step_action", action),
			zap.Int("rendered_count", marker.RenderedCount))

		var req entity.StepActionRequest
		if len(marker.Payload) > 0 {
			if uerr := json.Unmarshal(marker.Payload, &req); uerr != nil {
				ctxzap.Warn(ctx, "interrupted call payload unreadable, clearing marker", zap.Error(uerr))
				_ = r.markers.ClearMarker(ctx, r.plan.Name, workspaceID, action)
				continue
			}
		}

		resp, err := r.api.SubmitStep(ctx, session.ID, action, &req)
		if err != nil {
			// Marker stays; the next mount tries again.
			ctxzap.Warn(ctx, "reissued step call failed",
				zap.String("step_action", action),
				zap.Error(err))
			continue
		}

		session = MergeSessions(session, resp.Session)

		// Messages before RenderedCount were already displayed; they rejoin
		// the list without going through the sink again.
		for idx := 0; idx < marker.RenderedCount && idx < len(resp.Messages); idx++ {
			msg := resp.Messages[idx]
			if !ContainsIdentity(messages, &msg) {
				messages = append(messages, msg)
			}
		}

		for idx := marker.RenderedCount; idx < len(resp.Messages); idx++ {
			msg := resp.Messages[idx]
			if !ContainsIdentity(messages, &msg) {
				if sink != nil {
					if serr := sink(ctx, msg); serr != nil {
						ctxzap.Error(ctx, "rendering recovered message failed", zap.Error(serr))
						_ = r.markers.SaveMarker(ctx, r.plan.Name, workspaceID, action, marker)
						return messages, session
					}
				}
				messages = append(messages, msg)
			}
			marker.RenderedCount = idx + 1
			_ = r.markers.SaveMarker(ctx, r.plan.Name, workspaceID, action, marker)
		}

		_ = r.markers.ClearMarker(ctx, r.plan.Name, workspaceID, action)
	}

	return messages, session
}

// recoverDangling handles "answer saved, next question never rendered": a
// trailing user message, or an awaiting-question marker whose question is
// missing. When the restored question state can still derive the next
// sub-question locally the runtime presents it; otherwise ask the server,
// exactly once, guarded so a persistent failure cannot loop.
func (r *Reconciler) recoverDangling(
	ctx context.Context,
	workspaceID string,
	session *entity.Session,
	question *entity.QuestionState,
	messages []entity.Message,
	sink MessageSink,
) []entity.Message {
	awaiting, err := r.markers.LoadAwaiting(ctx, r.plan.Name, workspaceID)
	if err == nil && awaiting != nil {
		if awaiting.SessionID != session.ID || HasQuestionNumbered(messages, awaiting.QuestionNumber) {
			_ = r.markers.ClearAwaiting(ctx, r.plan.Name, workspaceID)
			awaiting = nil
		}
	}

	last := LastMessage(messages)
	dangling := awaiting != nil || (last != nil && last.Role == entity.RoleUser)
	if !dangling || HasCompletionMarker(messages) {
		return messages
	}

	if step, ok := r.plan.Step(ActiveStep(session.Completed)); ok && step.Kind == wizard.StepKindInput {
		if question != nil && len(question.Order) > 0 {
			ctrl := NewController(r.plan, step, question)
			if ctrl.ActiveKey() != "" {
				// Derivable locally; nothing to fetch.
				return messages
			}
		}
	}

	attempted, _ := r.markers.RecoveryAttempted(ctx, session.ID)
	if attempted {
		return messages
	}
	_ = r.markers.SetRecoveryAttempted(ctx, session.ID, true)

	cq, err := r.api.CurrentQuestion(ctx, session.ID)
	if err != nil {
		// The flag stays set: no retry loop on persistent failure.
		ctxzap.Warn(ctx, "current-question recovery fetch failed",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return messages
	}

	if cq.Message != nil {
		msg := *cq.Message
		if !ContainsIdentity(messages, &msg) {
			if sink != nil {
				if serr := sink(ctx, msg); serr != nil {
					ctxzap.Error(ctx, "rendering recovered question failed", zap.Error(serr))
					return messages
				}
			}
			messages = append(messages, msg)
		}
	}

	_ = r.markers.SetRecoveryAttempted(ctx, session.ID, false)
	_ = r.markers.ClearAwaiting(ctx, r.plan.Name, workspaceID)
	return messages
}

// computeStage derives the stage from the reconciled messages rather than
// trusting a stored value: a completion marker the user saw wins over any
// stale stage, and a stored "submitting" without a live marker demotes to
// awaiting input.
func (r *Reconciler) computeStage(session *entity.Session, messages []entity.Message) entity.Stage {
	if HasCompletionMarker(messages) || AllCompleted(session.Completed, r.plan.TotalSteps()) {
		return entity.Stage{Kind: entity.StageComplete}
	}
	return entity.Stage{
		Kind: entity.StageAwaiting,
		Step: CurrentStepNumber(session.Completed, r.plan.TotalSteps()),
	}
}

func freshResumption() *Resumption {
	return &Resumption{
		Fresh: true,
		Stage: entity.Stage{Kind: entity.StageInitial},
	}
}

func cloneSession(s *entity.Session) *entity.Session {
	out := *s
	out.Completed = append([]bool(nil), s.Completed...)
	if s.Payloads != nil {
		out.Payloads = make(map[int]json.RawMessage, len(s.Payloads))
		for k, v := range s.Payloads {
			out.Payloads[k] = v
		}
	}
	return &out
}
