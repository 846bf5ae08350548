package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
	pkgretry "github.com/futig/wizard-backend/internal/pkg/retry"
	"github.com/futig/wizard-backend/internal/wizard"
)

const (
	defaultPushDebounce = 1500 * time.Millisecond
	pushTimeout         = 10 * time.Second

	busyPlaceholder  = "Working on it..."
	retryPlaceholder = "Send any message to retry."
)

// Config wires an Engine for one workspace. Plan, stores, API and Sink are
// required; the rest defaults.
type Config struct {
	Plan        *wizard.Plan
	WorkspaceID string
	UserID      string

	Sessions SessionStore
	Fields   FieldCacheStore
	Markers  MarkerStore
	Log      ConversationLogClient
	API      SessionAPI

	Broker *Broker
	Sink   MessageSink

	Retry        *pkgretry.RetryConfig
	Logger       *zap.Logger
	PushDebounce time.Duration
}

// Engine drives one wizard run for one workspace: it resumes state on mount,
// routes user input through the active step's controller, submits completed
// steps, and keeps the three persistence stores in sync. All public methods
// are safe for concurrent use, though the intended caller is a single event
// loop.
type Engine struct {
	plan        *wizard.Plan
	workspaceID string
	userID      string

	sessions SessionStore
	fields   FieldCacheStore
	markers  MarkerStore
	log      ConversationLogClient
	api      SessionAPI

	rec    *Reconciler
	broker *Broker
	sink   MessageSink
	logger *zap.Logger

	mu       sync.Mutex
	session  *entity.Session
	stage    entity.Stage
	userName string
	messages []entity.Message
	question *entity.QuestionState
	input    string

	pushDebounce time.Duration
	pushMu       sync.Mutex
	pushTimer    *time.Timer
}

func NewEngine(cfg Config) *Engine {
	broker := cfg.Broker
	if broker == nil {
		broker = NewBroker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := cfg.PushDebounce
	if debounce <= 0 {
		debounce = defaultPushDebounce
	}
	return &Engine{
		plan:         cfg.Plan,
		workspaceID:  cfg.WorkspaceID,
		userID:       cfg.UserID,
		sessions:     cfg.Sessions,
		fields:       cfg.Fields,
		markers:      cfg.Markers,
		log:          cfg.Log,
		api:          cfg.API,
		rec:          NewReconciler(cfg.Plan, cfg.Sessions, cfg.Fields, cfg.Markers, cfg.Log, cfg.API, cfg.Retry),
		broker:       broker,
		sink:         cfg.Sink,
		logger:       logger,
		stage:        entity.Stage{Kind: entity.StageInitial},
		pushDebounce: debounce,
	}
}

// Mount reconciles the persistence stores into the engine's working state.
// Fresh means there is nothing to resume and Begin should run on the user's
// first input. Messages already rendered in a previous run are NOT replayed
// through the sink; only recovered ones are.
func (e *Engine) Mount(ctx context.Context) (*Resumption, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.rec.Resume(ctx, e.workspaceID, e.sink)
	if err != nil {
		return nil, fmt.Errorf("resume workspace '%s': %w", e.workspaceID, err)
	}

	if res.Fresh {
		e.session = nil
		e.stage = entity.Stage{Kind: entity.StageInitial}
		e.userName = ""
		e.messages = nil
		e.question = nil
		e.input = ""
		e.broker.Reset()
		return res, nil
	}

	e.session = res.Session
	e.stage = res.Stage
	e.userName = res.UserName
	e.messages = res.Messages
	e.question = res.Question
	e.input = res.Input

	// The reconciled view becomes the new local truth.
	e.persistLocked(ctx)

	if e.stage.Kind == entity.StageAwaiting {
		step, ok := e.plan.Step(e.stage.Step)
		if !ok {
			return res, nil
		}
		if step.Kind == wizard.StepKindGenerate {
			// A reload landed between completing the previous step and the
			// auto-submit; pick the call back up.
			if err := e.submitStepLocked(ctx, step); err != nil {
				return res, err
			}
			return res, nil
		}
		if err := e.representQuestionLocked(ctx, step); err != nil {
			return res, err
		}
		e.registerInputLocked(step)
	}

	return res, nil
}

// Begin activates a fresh session and renders the welcome sequence plus the
// first question. It refuses to run over an existing session; cancel or
// discard first.
func (e *Engine) Begin(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return fmt.Errorf("session '%s' already active: %w", e.session.ID, entity.ErrInvalidSessionStatus)
	}

	resp, err := e.api.CreateSession(ctx, &entity.StartSessionRequest{
		WorkspaceID: e.workspaceID,
		UserID:      e.userID,
		Wizard:      e.plan.Name,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if resp == nil || resp.Session == nil {
		return fmt.Errorf("create session: %w", entity.ErrSessionNotFound)
	}

	e.session = cloneSession(resp.Session)
	e.persistLocked(ctx)

	ctxzap.Info(ctx, "session started",
		zap.String("session_id", e.session.ID),
		zap.String("wizard", e.plan.Name),
		zap.String("workspace_id", e.workspaceID))

	welcome := resp.Messages
	if len(welcome) == 0 {
		welcome = wizard.WelcomeMessages(e.plan, time.Now())
	}
	for i := range welcome {
		if err := e.appendLocked(ctx, welcome[i]); err != nil {
			return fmt.Errorf("render welcome: %w", err)
		}
	}

	return e.advanceLocked(ctx)
}

// HandleInput routes one user submission into the active step. Validation
// failures come back wrapped in the entity sentinels and are never sent to
// the server.
func (e *Engine) HandleInput(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return fmt.Errorf("no active session: %w", entity.ErrSessionNotFound)
	}
	if e.stage.Kind != entity.StageAwaiting {
		return fmt.Errorf("input ignored on stage '%s': %w", e.stage.Kind, entity.ErrStepNotActive)
	}

	step, ok := e.plan.Step(e.stage.Step)
	if !ok || step.Kind != wizard.StepKindInput {
		return fmt.Errorf("step %d takes no input: %w", e.stage.Step, entity.ErrStepNotActive)
	}

	ctrl := NewController(e.plan, step, e.question)
	e.question = ctrl.State()

	// Every sub-question already answered means a previous submit failed
	// and the user is nudging us; any input retries the call.
	if ctrl.Ready() {
		return e.submitStepLocked(ctx, step)
	}

	res, err := ctrl.Submit(text)
	if err != nil {
		return err
	}

	if step.IsName && res.Recorded != "" {
		e.userName = res.Recorded
	}

	answer := wizard.UserAnswerMessage(step, strings.TrimSpace(text), step.IsName, time.Now())
	if err := e.appendLocked(ctx, answer); err != nil {
		return fmt.Errorf("render answer: %w", err)
	}

	e.input = ""
	e.saveFieldsLocked(ctx)

	if res.Ready {
		return e.submitStepLocked(ctx, step)
	}
	return e.askQuestionLocked(ctx, step, res.NextKey)
}

// SetInput records the current free-text draft so a reload mid-keystroke
// restores it.
func (e *Engine) SetInput(ctx context.Context, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input = text
	e.saveFieldsLocked(ctx)
}

// Cancel terminates the session remotely and removes every persisted copy.
// A session already gone server-side still gets its local copies removed.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return fmt.Errorf("cancel session: %w", entity.ErrSessionNotFound)
	}
	if err := e.api.CancelSession(ctx, e.session.ID); err != nil && !errors.Is(err, entity.ErrSessionNotFound) {
		return fmt.Errorf("cancel session '%s': %w", e.session.ID, err)
	}
	e.clearLocalLocked(ctx)
	return nil
}

// Discard deletes the session remotely and removes every persisted copy.
func (e *Engine) Discard(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return fmt.Errorf("discard session: %w", entity.ErrSessionNotFound)
	}
	if err := e.api.DeleteSession(ctx, e.session.ID); err != nil && !errors.Is(err, entity.ErrSessionNotFound) {
		return fmt.Errorf("discard session '%s': %w", e.session.ID, err)
	}
	e.clearLocalLocked(ctx)
	return nil
}

// Flush cancels any pending debounced push and writes everything out
// synchronously. Call on teardown; blocking here is acceptable.
func (e *Engine) Flush(ctx context.Context) {
	e.stopPushTimer()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	e.persistLocked(ctx)
	e.pushLogLocked(ctx)
}

func (e *Engine) Stage() entity.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

func (e *Engine) Session() *entity.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return cloneSession(e.session)
}

func (e *Engine) Messages() []entity.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]entity.Message(nil), e.messages...)
}

func (e *Engine) UserName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userName
}

// Progress reports the completed fraction of the run, 0 to 1.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return 0
	}
	return Progress(e.session.Completed, e.plan.TotalSteps()) / 100
}

// ActiveInput exposes the broker slot for the input widget.
func (e *Engine) ActiveInput() (int, *InputDescriptor) {
	return e.broker.Active()
}

// advanceLocked moves to the lowest incomplete step, or completes the run.
// Generate steps auto-submit; input steps get their first question asked.
func (e *Engine) advanceLocked(ctx context.Context) error {
	n := ActiveStep(e.session.Completed)
	if n > e.plan.TotalSteps() {
		return e.completeLocked(ctx)
	}

	step, ok := e.plan.Step(n)
	if !ok {
		return fmt.Errorf("plan '%s' has no step %d", e.plan.Name, n)
	}

	e.stage = entity.Stage{Kind: entity.StageAwaiting, Step: n}
	e.question = entity.NewQuestionState()

	if step.Kind == wizard.StepKindGenerate {
		return e.submitStepLocked(ctx, step)
	}

	ctrl := NewController(e.plan, step, e.question)
	e.question = ctrl.State()
	key := ctrl.ActiveKey()
	if key == "" {
		return fmt.Errorf("step '%s' has nothing to ask", step.Key)
	}
	return e.askQuestionLocked(ctx, step, key)
}

// askQuestionLocked renders the prompt for one sub-question. The awaiting
// marker brackets the render so a reload in the gap is detectable.
func (e *Engine) askQuestionLocked(ctx context.Context, step *wizard.Step, key string) error {
	msg, ok := e.plan.QuestionMessage(step, key, time.Now())
	if !ok {
		return fmt.Errorf("step '%s' has no prompt for key '%s'", step.Key, key)
	}

	e.question.Ask(key)
	e.saveFieldsLocked(ctx)

	aw := &entity.AwaitingQuestion{
		SessionID:      e.session.ID,
		QuestionNumber: msg.QuestionNumber,
		Timestamp:      time.Now(),
	}
	if err := e.markers.SaveAwaiting(ctx, e.plan.Name, e.workspaceID, aw); err != nil {
		ctxzap.Warn(ctx, "awaiting marker save failed", zap.Error(err))
	}

	if err := e.appendLocked(ctx, msg); err != nil {
		// Marker stays set; the next mount re-presents the question.
		return fmt.Errorf("render question '%s': %w", key, err)
	}

	_ = e.markers.ClearAwaiting(ctx, e.plan.Name, e.workspaceID)
	e.registerInputLocked(step)
	return nil
}

// representQuestionLocked re-renders the active question's prompt when the
// reconciled history does not end with it, so a resumed user always sees what
// to answer next.
func (e *Engine) representQuestionLocked(ctx context.Context, step *wizard.Step) error {
	ctrl := NewController(e.plan, step, e.question)
	e.question = ctrl.State()
	key := ctrl.ActiveKey()
	if key == "" {
		return nil
	}
	prompt, ok := step.PromptFor(key)
	if !ok {
		return nil
	}

	last := LastMessage(e.messages)
	if last != nil && last.Role == entity.RoleAssistant && last.IsQuestion && last.Content == prompt {
		return nil
	}
	return e.askQuestionLocked(ctx, step, key)
}

// submitStepLocked performs the marker-bracketed step call. On success the
// result messages from RenderedCount onward render exactly once; on a known
// failure the marker clears so the user can just retry.
func (e *Engine) submitStepLocked(ctx context.Context, step *wizard.Step) error {
	action := step.Action

	e.stage = entity.Stage{Kind: entity.StageSubmitting, Step: step.Number}
	e.registerInputLocked(step)

	req := &entity.StepActionRequest{}
	if step.Kind == wizard.StepKindInput {
		req = NewController(e.plan, step, e.question).Aggregate()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode step payload: %w", err)
	}

	marker := &entity.OperationMarker{
		SessionID: e.session.ID,
		Step:      step.Number,
		Action:    action,
		Payload:   payload,
		StartedAt: time.Now(),
	}
	if err := e.markers.SaveMarker(ctx, e.plan.Name, e.workspaceID, action, marker); err != nil {
		ctxzap.Warn(ctx, "operation marker save failed", zap.Error(err))
	}
	e.persistLocked(ctx)

	resp, err := e.api.SubmitStep(ctx, e.session.ID, action, req)
	if err != nil {
		// The user is present and saw the failure; this is no longer an
		// interrupted operation.
		_ = e.markers.ClearMarker(ctx, e.plan.Name, e.workspaceID, action)
		e.stage = entity.Stage{Kind: entity.StageAwaiting, Step: step.Number}
		e.registerInputLocked(step)
		e.persistLocked(ctx)
		return fmt.Errorf("submit step '%s': %w", action, err)
	}

	if resp.Session != nil {
		e.session = MergeSessions(e.session, resp.Session)
	} else {
		e.session.Completed = MergeCompleted(e.session.Completed, completedThrough(step.Number))
	}
	// Progress is durable before any rendering, so an orphaned completion
	// survives even if nothing below runs.
	e.persistLocked(ctx)

	for idx := marker.RenderedCount; idx < len(resp.Messages); idx++ {
		msg := resp.Messages[idx]
		if !ContainsIdentity(e.messages, &msg) {
			if err := e.renderLocked(ctx, msg); err != nil {
				_ = e.markers.SaveMarker(ctx, e.plan.Name, e.workspaceID, action, marker)
				e.persistLocked(ctx)
				return fmt.Errorf("render step '%s' result: %w", action, err)
			}
		}
		marker.RenderedCount = idx + 1
		if err := e.markers.SaveMarker(ctx, e.plan.Name, e.workspaceID, action, marker); err != nil {
			ctxzap.Warn(ctx, "operation marker update failed", zap.Error(err))
		}
	}

	_ = e.markers.ClearMarker(ctx, e.plan.Name, e.workspaceID, action)
	_ = e.fields.ClearFields(ctx, e.plan.Name, e.workspaceID, e.session.ID, step.Number)
	e.question = nil
	e.persistLocked(ctx)
	e.schedulePush()

	ctxzap.Info(ctx, "step completed",
		zap.String("session_id", e.session.ID),
		zap.String("step_action", action),
		zap.Int("step", step.Number))

	return e.advanceLocked(ctx)
}

func (e *Engine) completeLocked(ctx context.Context) error {
	e.stage = entity.Stage{Kind: entity.StageComplete}
	e.question = nil
	e.input = ""
	e.broker.Reset()

	_ = e.markers.ClearAwaiting(ctx, e.plan.Name, e.workspaceID)
	_ = e.markers.SetRecoveryAttempted(ctx, e.session.ID, false)

	var renderErr error
	if !HasCompletionMarker(e.messages) {
		renderErr = e.renderLocked(ctx, e.plan.CompletionMessage(time.Now()))
	}

	e.stopPushTimer()
	e.persistLocked(ctx)
	e.pushLogLocked(ctx)

	ctxzap.Info(ctx, "session completed",
		zap.String("session_id", e.session.ID),
		zap.String("wizard", e.plan.Name))

	if renderErr != nil {
		return fmt.Errorf("render completion: %w", renderErr)
	}
	return nil
}

// renderLocked sends one message through the sink and appends it to the
// working list. It does not persist; callers decide when.
func (e *Engine) renderLocked(ctx context.Context, msg entity.Message) error {
	if e.sink != nil {
		if err := e.sink(ctx, msg); err != nil {
			return err
		}
	}
	e.messages = append(e.messages, msg)
	return nil
}

// appendLocked renders, persists, and schedules a log push in one go.
func (e *Engine) appendLocked(ctx context.Context, msg entity.Message) error {
	if err := e.renderLocked(ctx, msg); err != nil {
		return err
	}
	e.persistLocked(ctx)
	e.schedulePush()
	return nil
}

func (e *Engine) registerInputLocked(step *wizard.Step) {
	e.broker.Reset()

	switch {
	case e.stage.Kind == entity.StageSubmitting:
		e.broker.Register(step.Number, &InputDescriptor{
			Placeholder: busyPlaceholder,
			Disabled:    true,
		})
	case e.stage.Kind == entity.StageAwaiting && step.Kind == wizard.StepKindInput:
		ctrl := NewController(e.plan, step, e.question)
		key := ctrl.ActiveKey()
		if key == "" {
			// Ready but still awaiting: the submit failed and the user
			// needs a way back in.
			e.broker.Register(step.Number, &InputDescriptor{
				Placeholder: retryPlaceholder,
				Submit:      e.HandleInput,
			})
			return
		}
		prompt, _ := step.PromptFor(key)
		e.broker.Register(step.Number, &InputDescriptor{
			Value:       e.input,
			Placeholder: prompt,
			Validate: func(text string) error {
				f, ok := step.Lookup(key)
				if !ok {
					return nil
				}
				return validateAnswer(strings.TrimSpace(text), &f)
			},
			Submit: e.HandleInput,
		})
	}
}

// persistLocked writes the snapshot and resume pointer. Storage failures are
// logged and swallowed; persistence problems never block the flow.
func (e *Engine) persistLocked(ctx context.Context) {
	if e.session == nil {
		return
	}
	snap := &entity.Snapshot{
		Session:  *e.session,
		Stage:    e.stage,
		UserName: e.userName,
		Messages: e.messages,
		Question: e.question,
		Input:    e.input,
		SavedAt:  time.Now(),
	}
	if err := e.sessions.SaveSnapshot(ctx, e.plan.Name, e.workspaceID, snap); err != nil {
		ctxzap.Warn(ctx, "session snapshot save failed", zap.Error(err))
	}
	ptr := &entity.ResumePointer{
		SessionID:    e.session.ID,
		UserName:     e.userName,
		CurrentStage: e.stage,
	}
	if err := e.sessions.SavePointer(ctx, e.plan.Name, e.workspaceID, ptr); err != nil {
		ctxzap.Warn(ctx, "resume pointer save failed", zap.Error(err))
	}
}

func (e *Engine) saveFieldsLocked(ctx context.Context) {
	if e.session == nil || e.question == nil {
		return
	}
	step := e.stage.Step
	if step == 0 {
		step = ActiveStep(e.session.Completed)
	}
	fc := &entity.FieldCache{
		Question: *e.question,
		Input:    e.input,
		SavedAt:  time.Now(),
	}
	if err := e.fields.SaveFields(ctx, e.plan.Name, e.workspaceID, e.session.ID, step, fc); err != nil {
		ctxzap.Warn(ctx, "field cache save failed", zap.Error(err))
	}
}

func (e *Engine) clearLocalLocked(ctx context.Context) {
	sid := e.session.ID
	_ = e.sessions.Delete(ctx, e.plan.Name, e.workspaceID, sid)
	for i := range e.plan.Steps {
		_ = e.markers.ClearMarker(ctx, e.plan.Name, e.workspaceID, e.plan.Steps[i].Action)
		_ = e.fields.ClearFields(ctx, e.plan.Name, e.workspaceID, sid, e.plan.Steps[i].Number)
	}
	_ = e.markers.ClearAwaiting(ctx, e.plan.Name, e.workspaceID)
	_ = e.markers.SetRecoveryAttempted(ctx, sid, false)

	e.stopPushTimer()
	e.session = nil
	e.stage = entity.Stage{Kind: entity.StageInitial}
	e.userName = ""
	e.messages = nil
	e.question = nil
	e.input = ""
	e.broker.Reset()
}

// schedulePush arms the debounced conversation log push, cancel-and-replace,
// so the newest message list always wins.
func (e *Engine) schedulePush() {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	if e.pushTimer != nil {
		e.pushTimer.Stop()
	}
	e.pushTimer = time.AfterFunc(e.pushDebounce, e.backgroundPush)
}

func (e *Engine) stopPushTimer() {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	if e.pushTimer != nil {
		e.pushTimer.Stop()
		e.pushTimer = nil
	}
}

func (e *Engine) backgroundPush() {
	e.mu.Lock()
	var sid string
	var msgs []entity.Message
	if e.session != nil {
		sid = e.session.ID
		msgs = append(msgs, e.messages...)
	}
	e.mu.Unlock()

	if sid == "" || len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := e.log.SaveHistory(ctx, sid, msgs); err != nil {
		e.logger.Warn("conversation log push failed",
			zap.String("session_id", sid),
			zap.Error(err))
	}
}

func (e *Engine) pushLogLocked(ctx context.Context) {
	if e.session == nil || len(e.messages) == 0 {
		return
	}
	if err := e.log.SaveHistory(ctx, e.session.ID, e.messages); err != nil {
		ctxzap.Warn(ctx, "conversation log flush failed",
			zap.String("session_id", e.session.ID),
			zap.Error(err))
	}
}

func completedThrough(n int) []bool {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = true
	}
	return flags
}
