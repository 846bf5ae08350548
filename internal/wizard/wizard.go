package wizard

import (
	"fmt"

	"github.com/futig/wizard-backend/internal/entity"
)

type StepKind string

const (
	// StepKindInput collects one or more answers from the user.
	StepKindInput StepKind = "input"
	// StepKindGenerate submits collected answers to the generation service
	// and renders its result blocks.
	StepKindGenerate StepKind = "generate"
)

// Field is one required or trailing sub-question of a step.
type Field struct {
	Key      string
	Prompt   string
	MinLen   int
	Optional bool
	Examples []string
}

// Category is an optional repeatable group: a yes/no gate asks whether to
// collect another slot. Slot keys are "<Key>-<index>".
type Category struct {
	Key       string
	GateKey   string
	AskPrompt string
	Prompt    string
	MinLen    int
}

// SlotKey returns the sub-question key of the i-th slot in the category.
func (c *Category) SlotKey(i int) string {
	return fmt.Sprintf("%s-%d", c.Key, i)
}

// Step describes one stage of a wizard: either an input step (required
// fields, optional categories, trailing fields) or a generate step.
type Step struct {
	Number     int
	Key        string
	Title      string
	Action     string
	Kind       StepKind
	IsName     bool
	VideoURL   string
	Fields     []Field
	Categories []Category
	Trailing   []Field
}

// FirstPrompt is the text that opens the step.
func (s *Step) FirstPrompt() string {
	if len(s.Fields) > 0 {
		return s.Fields[0].Prompt
	}
	return ""
}

// Plan is one wizard: an ordered, linear, non-skippable list of steps.
type Plan struct {
	Name       string
	Title      string
	Welcome    []string
	Completion string
	Steps      []Step
}

func (p *Plan) TotalSteps() int {
	return len(p.Steps)
}

// Step returns the descriptor for step number n (1-based).
func (p *Plan) Step(n int) (*Step, bool) {
	if n < 1 || n > len(p.Steps) {
		return nil, false
	}
	return &p.Steps[n-1], true
}

// StepByAction resolves the step a REST action segment belongs to.
func (p *Plan) StepByAction(action string) (*Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].Action == action {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants every plan must hold: contiguous
// 1-based numbering, unique step keys and actions, unique sub-question keys,
// exactly one name step, and a final generate step.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan has no name")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %s has no steps", p.Name)
	}

	stepKeys := make(map[string]bool)
	actions := make(map[string]bool)
	subKeys := make(map[string]bool)
	nameSteps := 0

	for i, s := range p.Steps {
		if s.Number != i+1 {
			return fmt.Errorf("plan %s: step %q has number %d, want %d", p.Name, s.Key, s.Number, i+1)
		}
		if stepKeys[s.Key] {
			return fmt.Errorf("plan %s: duplicate step key %q", p.Name, s.Key)
		}
		stepKeys[s.Key] = true
		if actions[s.Action] {
			return fmt.Errorf("plan %s: duplicate action %q", p.Name, s.Action)
		}
		actions[s.Action] = true
		if s.IsName {
			nameSteps++
		}

		switch s.Kind {
		case StepKindInput:
			if len(s.Fields) == 0 {
				return fmt.Errorf("plan %s: input step %q has no fields", p.Name, s.Key)
			}
		case StepKindGenerate:
			if len(s.Fields) > 0 || len(s.Categories) > 0 || len(s.Trailing) > 0 {
				return fmt.Errorf("plan %s: generate step %q must not collect input", p.Name, s.Key)
			}
		default:
			return fmt.Errorf("plan %s: step %q has unknown kind %q", p.Name, s.Key, s.Kind)
		}

		for _, f := range s.Fields {
			if subKeys[f.Key] {
				return fmt.Errorf("plan %s: duplicate sub-question key %q", p.Name, f.Key)
			}
			subKeys[f.Key] = true
		}
		for _, c := range s.Categories {
			if c.GateKey == "" {
				return fmt.Errorf("plan %s: category %q has no gate key", p.Name, c.Key)
			}
			if subKeys[c.GateKey] {
				return fmt.Errorf("plan %s: duplicate sub-question key %q", p.Name, c.GateKey)
			}
			subKeys[c.GateKey] = true
		}
		for _, f := range s.Trailing {
			if subKeys[f.Key] {
				return fmt.Errorf("plan %s: duplicate sub-question key %q", p.Name, f.Key)
			}
			subKeys[f.Key] = true
		}
	}

	if nameSteps != 1 {
		return fmt.Errorf("plan %s: want exactly one name step, have %d", p.Name, nameSteps)
	}
	if last := p.Steps[len(p.Steps)-1]; last.Kind != StepKindGenerate {
		return fmt.Errorf("plan %s: last step %q is not a generate step", p.Name, last.Key)
	}

	return nil
}

// Get resolves a plan by name.
func Get(name string) (*Plan, error) {
	p, ok := plans[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownWizard, name)
	}
	return p, nil
}

// Names lists the registered wizards in a stable order.
func Names() []string {
	return []string{ProfileName, OfferName, CaseStudyName}
}

// ValidateAll checks every registered plan. Wiring calls this once at startup
// so a malformed plan table fails the process instead of a user's run.
func ValidateAll() error {
	for _, name := range Names() {
		p, err := Get(name)
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
