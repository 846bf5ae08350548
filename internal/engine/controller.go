package engine

import (
	"fmt"
	"strings"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/wizard"
)

// Yes/no vocabulary for "add another?" gates. Anything outside both sets is
// rejected with a validation error; an empty submission passes the gate.
var (
	affirmativeTokens = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
		"ok": true, "okay": true, "add": true, "another": true, "more": true,
		"continue": true,
	}
	negativeTokens = map[string]bool{
		"no": true, "n": true, "nope": true, "skip": true, "none": true,
		"pass": true, "done": true, "next": true,
	}
)

// Controller drives a single input step's sub-state machine: required fields
// in order, then each category's "add another?" loop, then trailing optional
// fields. All of its state lives in the QuestionState, so a controller
// rebuilt from a persisted copy resumes exactly where the old one stopped.
// Single-field steps are the degenerate case with one required field.
type Controller struct {
	plan  *wizard.Plan
	step  *wizard.Step
	state *entity.QuestionState
}

func NewController(plan *wizard.Plan, step *wizard.Step, state *entity.QuestionState) *Controller {
	if state == nil {
		state = entity.NewQuestionState()
	}
	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}
	return &Controller{plan: plan, step: step, state: state}
}

// State exposes the controller's working set for persistence.
func (c *Controller) State() *entity.QuestionState {
	return c.state
}

// ActiveKey derives the active sub-question key from the recorded state
// alone: the first unmet requirement in pipeline order. Empty means every
// requirement is met and the step is ready to submit.
//
// An appended-but-unanswered category slot takes precedence over its gate,
// which is what makes a reload mid "add another: yes" resume on the open
// slot rather than re-asking the gate.
func (c *Controller) ActiveKey() string {
	for _, f := range c.step.Fields {
		if !c.state.Answered(f.Key) {
			return f.Key
		}
	}

	for i := range c.step.Categories {
		cat := &c.step.Categories[i]
		if open := c.openSlot(cat); open != "" {
			return open
		}
		if !c.state.Answered(cat.GateKey) {
			return cat.GateKey
		}
		// An affirmative gate answer whose slot was never appended (a crash
		// between the two writes) still owes the user a slot.
		if affirmativeTokens[normalizeToken(c.state.Answers[cat.GateKey])] {
			return cat.SlotKey(c.slotCount(cat))
		}
	}

	for _, f := range c.step.Trailing {
		if !c.state.Answered(f.Key) {
			return f.Key
		}
	}

	return ""
}

// Ready reports whether every required field is answered and every gate
// explicitly resolved.
func (c *Controller) Ready() bool {
	return c.ActiveKey() == ""
}

// Prompt returns the text to show for a sub-question key.
func (c *Controller) Prompt(key string) (string, bool) {
	return c.step.PromptFor(key)
}

// SubmitResult reports what one submission did: the recorded answer and the
// next sub-question, or readiness to submit the aggregate payload.
type SubmitResult struct {
	Key        string
	Recorded   string
	NextKey    string
	NextPrompt string
	Ready      bool
}

// Submit classifies and validates one user submission for the active
// sub-question, records it, and advances. Validation failures return an
// error and record nothing; they are inline feedback, never sent anywhere.
func (c *Controller) Submit(text string) (*SubmitResult, error) {
	key := c.ActiveKey()
	if key == "" {
		return nil, entity.ErrStepNotActive
	}
	c.state.Ask(key)

	trimmed := strings.TrimSpace(text)

	if cat, ok := c.step.Gate(key); ok {
		return c.submitGate(cat, trimmed)
	}

	f, ok := c.step.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: no descriptor for %q", entity.ErrStepNotActive, key)
	}

	if f.Optional {
		if trimmed == "" || negativeTokens[normalizeToken(trimmed)] {
			// Explicit skip: answered with the empty string, distinct from
			// never reached.
			c.state.Record(key, "")
			return c.advance(key, "")
		}
	}

	if err := validateAnswer(trimmed, &f); err != nil {
		return nil, err
	}

	c.state.Record(key, trimmed)
	return c.advance(key, trimmed)
}

func (c *Controller) submitGate(cat *wizard.Category, trimmed string) (*SubmitResult, error) {
	token := normalizeToken(trimmed)

	switch {
	case trimmed == "" || negativeTokens[token]:
		c.state.Record(cat.GateKey, trimmed)
		return c.advance(cat.GateKey, trimmed)
	case affirmativeTokens[token]:
		// Consume the yes: append a blank slot and leave the gate unanswered
		// so it is asked again once the slot is filled.
		slot := cat.SlotKey(c.slotCount(cat))
		delete(c.state.Answers, cat.GateKey)
		c.state.Ask(slot)
		prompt, _ := c.step.PromptFor(slot)
		return &SubmitResult{
			Key:        cat.GateKey,
			Recorded:   trimmed,
			NextKey:    slot,
			NextPrompt: prompt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: please answer yes or no", entity.ErrNotYesNo)
	}
}

func (c *Controller) advance(key, recorded string) (*SubmitResult, error) {
	res := &SubmitResult{Key: key, Recorded: recorded}

	next := c.ActiveKey()
	if next == "" {
		res.Ready = true
		return res, nil
	}

	c.state.Ask(next)
	res.NextKey = next
	res.NextPrompt, _ = c.step.PromptFor(next)
	return res, nil
}

// Aggregate builds the step's submit payload: every literal answer in the
// order it was collected, resolved gates included.
func (c *Controller) Aggregate() *entity.StepActionRequest {
	answers := make(map[string]string, len(c.state.Answers))
	for k, v := range c.state.Answers {
		answers[k] = v
	}
	order := make([]string, len(c.state.Order))
	copy(order, c.state.Order)
	return &entity.StepActionRequest{Answers: answers, Order: order}
}

// openSlot returns the asked-but-unanswered slot of the category, if any.
func (c *Controller) openSlot(cat *wizard.Category) string {
	for _, k := range c.state.Order {
		if owner, ok := c.step.CategoryOf(k); ok && owner.Key == cat.Key && !c.state.Answered(k) {
			return k
		}
	}
	return ""
}

// slotCount counts the category's appended slots, answered or not.
func (c *Controller) slotCount(cat *wizard.Category) int {
	count := 0
	for _, k := range c.state.Order {
		if owner, ok := c.step.CategoryOf(k); ok && owner.Key == cat.Key {
			count++
		}
	}
	return count
}

func validateAnswer(trimmed string, f *wizard.Field) error {
	if len([]rune(trimmed)) < f.MinLen {
		return fmt.Errorf("%w: please give at least %d characters", entity.ErrAnswerTooShort, f.MinLen)
	}
	if f.Prompt != "" && strings.EqualFold(trimmed, strings.TrimSpace(f.Prompt)) {
		return fmt.Errorf("%w: try answering in your own words", entity.ErrAnswerEchoesQuestion)
	}
	return nil
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".,!"))
}
