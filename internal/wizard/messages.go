package wizard

import (
	"time"

	"github.com/futig/wizard-backend/internal/entity"
)

// Message builders. Locally synthesized messages carry no ID on purpose:
// their identity is the (role, content prefix, question number) tuple, which
// stays stable across a rebuild after reload.

// WelcomeMessages builds the assistant messages that open a fresh run.
func WelcomeMessages(p *Plan, now time.Time) []entity.Message {
	msgs := make([]entity.Message, 0, len(p.Welcome))
	for _, text := range p.Welcome {
		msgs = append(msgs, entity.Message{
			Role:      entity.RoleAssistant,
			Content:   text,
			Timestamp: now,
		})
	}
	return msgs
}

// QuestionMessage builds the assistant message asking the sub-question key
// of step s.
func (p *Plan) QuestionMessage(s *Step, key string, now time.Time) (entity.Message, bool) {
	prompt, ok := s.PromptFor(key)
	if !ok {
		return entity.Message{}, false
	}

	msg := entity.Message{
		Role:           entity.RoleAssistant,
		Content:        prompt,
		Timestamp:      now,
		IsQuestion:     true,
		QuestionNumber: s.Number,
		TotalQuestions: len(p.Steps),
		StepNumber:     s.Number,
		VideoURL:       s.VideoURL,
	}
	if f, ok := s.Lookup(key); ok {
		msg.Examples = f.Examples
	}
	return msg, true
}

// OpeningQuestion builds the message that opens step s: its first required
// field for input steps, nothing for generate steps.
func (p *Plan) OpeningQuestion(s *Step, now time.Time) (entity.Message, bool) {
	if s.Kind != StepKindInput || len(s.Fields) == 0 {
		return entity.Message{}, false
	}
	return p.QuestionMessage(s, s.Fields[0].Key, now)
}

// UserAnswerMessage builds the user's answer bubble for a step.
func UserAnswerMessage(s *Step, text string, isName bool, now time.Time) entity.Message {
	return entity.Message{
		Role:       entity.RoleUser,
		Content:    text,
		Timestamp:  now,
		IsName:     isName,
		StepNumber: s.Number,
	}
}

// CompletionMessage builds the completion marker that forces stage complete.
func (p *Plan) CompletionMessage(now time.Time) entity.Message {
	return entity.Message{
		Role:         entity.RoleAssistant,
		Content:      p.Completion,
		Timestamp:    now,
		IsCompletion: true,
		StepNumber:   len(p.Steps),
	}
}
