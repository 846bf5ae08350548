package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

type SessionStatus string

// Session status represents the lifecycle of one wizard run on the backend
const (
	SessionStatusActive    SessionStatus = "ACTIVE"    // Created, steps being worked through
	SessionStatusCompleted SessionStatus = "COMPLETED" // Final step finished
	SessionStatusCancelled SessionStatus = "CANCELLED" // Terminated by the user
)

type StageKind string

// Stage kinds form the explicit resume state of a wizard run on the client.
const (
	StageInitial    StageKind = "initial"    // Nothing resumable, show the welcome step
	StageAwaiting   StageKind = "awaiting"   // Waiting for user input on Stage.Step
	StageSubmitting StageKind = "submitting" // An async step call is in flight for Stage.Step
	StageComplete   StageKind = "complete"   // All steps finished
)

// Stage is a tagged union: Step is meaningful only for awaiting and submitting.
type Stage struct {
	Kind StageKind `json:"kind"`
	Step int       `json:"step,omitempty"`
}

func (s Stage) Validate() error {
	switch s.Kind {
	case StageInitial, StageAwaiting, StageSubmitting, StageComplete:
		return nil
	default:
		return fmt.Errorf("unknown stage kind: %s", s.Kind)
	}
}

type MessageRole string

const (
	RoleAssistant MessageRole = "assistant"
	RoleUser      MessageRole = "user"
)

// Message is one rendered conversational turn. Identity is the ID when set;
// otherwise the (role, content prefix, question number) tuple stands in, see
// engine.MessageIdentity.
type Message struct {
	ID             string      `json:"id,omitempty"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	Timestamp      time.Time   `json:"timestamp"`
	IsHTML         bool        `json:"is_html,omitempty"`
	IsQuestion     bool        `json:"is_question,omitempty"`
	QuestionNumber int         `json:"question_number,omitempty"`
	TotalQuestions int         `json:"total_questions,omitempty"`
	Examples       []string    `json:"examples,omitempty"`
	VideoURL       string      `json:"video_url,omitempty"`
	IsName         bool        `json:"is_name,omitempty"`
	IsCompletion   bool        `json:"is_completion,omitempty"`
	StepNumber     int         `json:"step_number,omitempty"`
}

// Session is the root aggregate for one wizard run. Completed is indexed by
// step number minus one; once a flag is true it never reverts outside an
// explicit reset. CurrentStep is the backend's advisory notion of progress,
// the flags are what the sequencer trusts.
type Session struct {
	ID          string                  `json:"session_id"`
	WorkspaceID string                  `json:"workspace_id"`
	UserID      string                  `json:"user_id"`
	Wizard      string                  `json:"wizard"`
	Status      SessionStatus           `json:"status"`
	CurrentStep int                     `json:"current_step"`
	Completed   []bool                  `json:"completed_steps"`
	Payloads    map[int]json.RawMessage `json:"step_payloads,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// StepCompleted reports whether step n (1-based) is marked complete.
func (s *Session) StepCompleted(n int) bool {
	if n < 1 || n > len(s.Completed) {
		return false
	}
	return s.Completed[n-1]
}

// QuestionState is the working set of a multi-field step: the active
// sub-question key, the chronological order questions were asked in, and the
// literal answers. A key is answered iff it has an Answers entry; the empty
// string records an explicit skip, distinct from never reached.
type QuestionState struct {
	CurrentKey string            `json:"current_key"`
	Order      []string          `json:"order"`
	Answers    map[string]string `json:"answers"`
}

func NewQuestionState() *QuestionState {
	return &QuestionState{Answers: make(map[string]string)}
}

// Ask appends key to the asked order (once) and makes it current.
func (q *QuestionState) Ask(key string) {
	q.CurrentKey = key
	if q.Asked(key) {
		return
	}
	q.Order = append(q.Order, key)
}

// Record stores the literal answer for key. Empty string means explicit skip.
func (q *QuestionState) Record(key, answer string) {
	if q.Answers == nil {
		q.Answers = make(map[string]string)
	}
	if !q.Asked(key) {
		q.Order = append(q.Order, key)
	}
	q.Answers[key] = answer
}

func (q *QuestionState) Asked(key string) bool {
	for _, k := range q.Order {
		if k == key {
			return true
		}
	}
	return false
}

func (q *QuestionState) Answered(key string) bool {
	_, ok := q.Answers[key]
	return ok
}

// AnsweredKeys derives the answered set from Answers alone, in asked order.
func (q *QuestionState) AnsweredKeys() []string {
	keys := make([]string, 0, len(q.Answers))
	for _, k := range q.Order {
		if q.Answered(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Snapshot is the whole resumable state of one wizard run, written to the
// client-side session store on every change and restored before any remote
// data on mount.
type Snapshot struct {
	Session  Session        `json:"session"`
	Stage    Stage          `json:"stage"`
	UserName string         `json:"user_name,omitempty"`
	Messages []Message      `json:"messages"`
	Question *QuestionState `json:"question,omitempty"`
	Input    string         `json:"input,omitempty"`
	SavedAt  time.Time      `json:"saved_at"`
}

// FieldCache is the serializable in-flight state of a single step, written
// on every change and restored before the session's own data, so a reload
// mid-keystroke or mid-submit loses nothing.
type FieldCache struct {
	Question QuestionState `json:"question"`
	Input    string        `json:"input,omitempty"`
	SavedAt  time.Time     `json:"saved_at"`
}

// ResumePointer is the minimal per-workspace resume record, read before the
// full snapshot to decide whether a resumable session exists at all.
type ResumePointer struct {
	SessionID    string `json:"session_id"`
	UserName     string `json:"user_name,omitempty"`
	CurrentStage Stage  `json:"current_stage"`
}

// OperationMarker is the durable in-progress flag written immediately before
// an async step call and cleared only after all of its result messages have
// rendered. RenderedCount advances per rendered message, so a reissued call
// renders the remainder and never replays the first k.
type OperationMarker struct {
	SessionID     string          `json:"session_id"`
	Step          int             `json:"step"`
	Action        string          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RenderedCount int             `json:"rendered_count"`
	StartedAt     time.Time       `json:"started_at"`
}

// AwaitingQuestion marks that an answer was saved but the next question has
// not rendered yet. Cleared once the expected question is displayed.
type AwaitingQuestion struct {
	SessionID      string    `json:"session_id"`
	QuestionNumber int       `json:"question_number"`
	Timestamp      time.Time `json:"timestamp"`
}

// StepResult is the stored outcome of one completed step. Re-submitting the
// step returns Messages verbatim instead of rerunning generation.
type StepResult struct {
	SessionID string          `json:"session_id"`
	Step      int             `json:"step"`
	Action    string          `json:"action"`
	Request   json.RawMessage `json:"request,omitempty"`
	Messages  []Message       `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
}
