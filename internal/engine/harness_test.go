package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/wizard"
)

// testPlan is a compact three step plan exercising every step shape: a name
// step, a category step with a gate and a trailing optional, and a generate
// step.
func testPlan() *wizard.Plan {
	return &wizard.Plan{
		Name:       "probe",
		Title:      "Probe",
		Welcome:    []string{"Welcome to the probe."},
		Completion: "All done. Your report is ready.",
		Steps: []wizard.Step{
			{
				Number: 1, Key: "intro", Title: "Introductions", Action: "intro",
				Kind: wizard.StepKindInput, IsName: true,
				Fields: []wizard.Field{
					{Key: "your-name", Prompt: "What's your name?", MinLen: 2},
				},
			},
			{
				Number: 2, Key: "needs", Title: "Needs", Action: "needs",
				Kind: wizard.StepKindInput,
				Fields: []wizard.Field{
					{Key: "need-0", Prompt: "What do you need most right now?", MinLen: 5},
				},
				Categories: []wizard.Category{
					{
						Key: "extra", GateKey: "ask-more-extras",
						AskPrompt: "Would you like to add another need? (yes/no)",
						Prompt:    "Describe the extra need.",
						MinLen:    3,
					},
				},
				Trailing: []wizard.Field{
					{Key: "notes", Prompt: "Anything else worth noting?", Optional: true},
				},
			},
			{
				Number: 3, Key: "report", Title: "Report", Action: "generate-report",
				Kind: wizard.StepKindGenerate,
			},
		},
	}
}

func testSession(ws string, steps int) *entity.Session {
	return &entity.Session{
		ID:          "sess-1",
		WorkspaceID: ws,
		UserID:      "user-1",
		Wizard:      "probe",
		Status:      entity.SessionStatusActive,
		CurrentStep: 1,
		Completed:   make([]bool, steps),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

// memoryStore backs SessionStore, FieldCacheStore and MarkerStore in one
// map-based fake.
type memoryStore struct {
	mu       sync.Mutex
	pointers map[string]*entity.ResumePointer
	snaps    map[string]*entity.Snapshot
	fields   map[string]*entity.FieldCache
	markers  map[string]*entity.OperationMarker
	awaiting map[string]*entity.AwaitingQuestion
	recovery map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		pointers: make(map[string]*entity.ResumePointer),
		snaps:    make(map[string]*entity.Snapshot),
		fields:   make(map[string]*entity.FieldCache),
		markers:  make(map[string]*entity.OperationMarker),
		awaiting: make(map[string]*entity.AwaitingQuestion),
		recovery: make(map[string]bool),
	}
}

func (m *memoryStore) LoadPointer(_ context.Context, wiz, ws string) (*entity.ResumePointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pointers[wiz+"|"+ws]
	if !ok {
		return nil, entity.ErrStateNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryStore) SavePointer(_ context.Context, wiz, ws string, p *entity.ResumePointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.pointers[wiz+"|"+ws] = &cp
	return nil
}

func (m *memoryStore) LoadSnapshot(_ context.Context, wiz, ws, sid string) (*entity.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[wiz+"|"+ws+"|"+sid]
	if !ok {
		return nil, entity.ErrStateNotFound
	}
	cp := *s
	cp.Messages = append([]entity.Message(nil), s.Messages...)
	if s.Question != nil {
		q := *s.Question
		cp.Question = &q
	}
	return &cp, nil
}

func (m *memoryStore) SaveSnapshot(_ context.Context, wiz, ws string, s *entity.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Messages = append([]entity.Message(nil), s.Messages...)
	if s.Question != nil {
		q := *s.Question
		q.Order = append([]string(nil), s.Question.Order...)
		q.Answers = make(map[string]string, len(s.Question.Answers))
		for k, v := range s.Question.Answers {
			q.Answers[k] = v
		}
		cp.Question = &q
	}
	m.snaps[wiz+"|"+ws+"|"+s.Session.ID] = &cp
	return nil
}

func (m *memoryStore) Delete(_ context.Context, wiz, ws, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pointers, wiz+"|"+ws)
	delete(m.snaps, wiz+"|"+ws+"|"+sid)
	return nil
}

func (m *memoryStore) LoadFields(_ context.Context, wiz, ws, sid string, step int) (*entity.FieldCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fc, ok := m.fields[fmt.Sprintf("%s|%s|%s|%d", wiz, ws, sid, step)]
	if !ok {
		return nil, entity.ErrStateNotFound
	}
	cp := *fc
	return &cp, nil
}

func (m *memoryStore) SaveFields(_ context.Context, wiz, ws, sid string, step int, fc *entity.FieldCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fc
	cp.Question.Order = append([]string(nil), fc.Question.Order...)
	cp.Question.Answers = make(map[string]string, len(fc.Question.Answers))
	for k, v := range fc.Question.Answers {
		cp.Question.Answers[k] = v
	}
	m.fields[fmt.Sprintf("%s|%s|%s|%d", wiz, ws, sid, step)] = &cp
	return nil
}

func (m *memoryStore) ClearFields(_ context.Context, wiz, ws, sid string, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, fmt.Sprintf("%s|%s|%s|%d", wiz, ws, sid, step))
	return nil
}

func (m *memoryStore) LoadMarker(_ context.Context, wiz, ws, action string) (*entity.OperationMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markers[wiz+"|"+ws+"|"+action]
	if !ok {
		return nil, entity.ErrStateNotFound
	}
	cp := *mk
	return &cp, nil
}

func (m *memoryStore) SaveMarker(_ context.Context, wiz, ws, action string, mk *entity.OperationMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mk
	m.markers[wiz+"|"+ws+"|"+action] = &cp
	return nil
}

func (m *memoryStore) ClearMarker(_ context.Context, wiz, ws, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, wiz+"|"+ws+"|"+action)
	return nil
}

func (m *memoryStore) LoadAwaiting(_ context.Context, wiz, ws string) (*entity.AwaitingQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.awaiting[wiz+"|"+ws]
	if !ok {
		return nil, entity.ErrStateNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryStore) SaveAwaiting(_ context.Context, wiz, ws string, a *entity.AwaitingQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.awaiting[wiz+"|"+ws] = &cp
	return nil
}

func (m *memoryStore) ClearAwaiting(_ context.Context, wiz, ws string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.awaiting, wiz+"|"+ws)
	return nil
}

func (m *memoryStore) RecoveryAttempted(_ context.Context, sid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovery[sid], nil
}

func (m *memoryStore) SetRecoveryAttempted(_ context.Context, sid string, attempted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovery[sid] = attempted
	return nil
}

func (m *memoryStore) marker(wiz, ws, action string) *entity.OperationMarker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[wiz+"|"+ws+"|"+action]
}

func (m *memoryStore) snapshot(wiz, ws, sid string) *entity.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[wiz+"|"+ws+"|"+sid]
}

// fakeLog is an in-memory ConversationLogClient whose fetch can be scripted
// to fail a number of times before succeeding.
type fakeLog struct {
	mu         sync.Mutex
	history    map[string][]entity.Message
	fetchFails int
	fetchCalls int
	saveCalls  int
	saveErr    error
}

func newFakeLog() *fakeLog {
	return &fakeLog{history: make(map[string][]entity.Message)}
}

func (f *fakeLog) FetchHistory(_ context.Context, sid string) ([]entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchFails > 0 {
		f.fetchFails--
		return nil, fmt.Errorf("log backend unavailable")
	}
	return append([]entity.Message(nil), f.history[sid]...), nil
}

func (f *fakeLog) SaveHistory(_ context.Context, sid string, msgs []entity.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.history[sid] = append([]entity.Message(nil), msgs...)
	return nil
}

func (f *fakeLog) saved(sid string) []entity.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.Message(nil), f.history[sid]...)
}

func (f *fakeLog) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

// fakeAPI scripts the SessionAPI. submitFn decides each step call's outcome;
// the default completes the step and returns one acknowledgment message.
type fakeAPI struct {
	mu          sync.Mutex
	createResp  *entity.SessionResponse
	createErr   error
	submitFn    func(sid, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error)
	submitCalls []string
	currentResp *entity.CurrentQuestionResponse
	currentErr  error
	currentCnt  int
	cancelled   []string
	deleted     []string
}

func newFakeAPI(plan *wizard.Plan, ws string) *fakeAPI {
	sess := testSession(ws, plan.TotalSteps())
	f := &fakeAPI{
		createResp: &entity.SessionResponse{Session: sess},
	}
	f.submitFn = func(sid, action string, _ *entity.StepActionRequest) (*entity.StepActionResponse, error) {
		step, ok := plan.StepByAction(action)
		if !ok {
			return nil, fmt.Errorf("unknown action %q", action)
		}
		out := testSession(ws, plan.TotalSteps())
		out.ID = sid
		for i := 0; i < step.Number; i++ {
			out.Completed[i] = true
		}
		out.CurrentStep = step.Number + 1
		ack := entity.Message{
			ID:         fmt.Sprintf("srv-%s-1", action),
			Role:       entity.RoleAssistant,
			Content:    fmt.Sprintf("Saved your answers for %s.", step.Title),
			Timestamp:  time.Now(),
			StepNumber: step.Number,
		}
		return &entity.StepActionResponse{Session: out, Messages: []entity.Message{ack}}, nil
	}
	return f
}

func (f *fakeAPI) CreateSession(_ context.Context, _ *entity.StartSessionRequest) (*entity.SessionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

func (f *fakeAPI) SubmitStep(_ context.Context, sid, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error) {
	f.mu.Lock()
	f.submitCalls = append(f.submitCalls, action)
	fn := f.submitFn
	f.mu.Unlock()
	return fn(sid, action, req)
}

func (f *fakeAPI) CurrentQuestion(_ context.Context, _ string) (*entity.CurrentQuestionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCnt++
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	if f.currentResp == nil {
		return &entity.CurrentQuestionResponse{}, nil
	}
	return f.currentResp, nil
}

func (f *fakeAPI) CancelSession(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sid)
	return nil
}

func (f *fakeAPI) DeleteSession(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sid)
	return nil
}

func (f *fakeAPI) submits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitCalls...)
}

func (f *fakeAPI) currentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentCnt
}

// collectSink records rendered messages and can be told to fail from the
// n-th render onward.
type collectSink struct {
	mu        sync.Mutex
	rendered  []entity.Message
	failAfter int
}

func newCollectSink() *collectSink {
	return &collectSink{failAfter: -1}
}

func (c *collectSink) sink(_ context.Context, msg entity.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter >= 0 && len(c.rendered) >= c.failAfter {
		return fmt.Errorf("sink unavailable")
	}
	c.rendered = append(c.rendered, msg)
	return nil
}

func (c *collectSink) all() []entity.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entity.Message(nil), c.rendered...)
}

func (c *collectSink) contents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.rendered))
	for i := range c.rendered {
		out[i] = c.rendered[i].Content
	}
	return out
}

func (c *collectSink) setFailAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
}
