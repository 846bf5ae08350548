package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/wizard"
)

// statusConflict maps a non-actionable session status to its sentinel so the
// HTTP layer can answer with a conflict naming the exact state.
func statusConflict(status entity.SessionStatus) error {
	switch status {
	case entity.SessionStatusCancelled:
		return fmt.Errorf("%w: wrong action on status '%s'", entity.ErrSessionCancelled, status)
	case entity.SessionStatusCompleted:
		return fmt.Errorf("%w: wrong action on status '%s'", entity.ErrSessionCompleted, status)
	default:
		return fmt.Errorf("%w: wrong action on status '%s'", entity.ErrInvalidSessionStatus, status)
	}
}

// firstPendingStep returns the lowest-numbered step whose completed flag is
// still false. The flags are the source of truth here, not CurrentStep.
func firstPendingStep(plan *wizard.Plan, session *entity.Session) (*wizard.Step, bool) {
	for n := 1; n <= plan.TotalSteps(); n++ {
		if !session.StepCompleted(n) {
			return plan.Step(n)
		}
	}
	return nil, false
}

// questionMessage renders the opening question of an input step. It carries
// no ID on purpose: a re-fetched question must collapse with an already
// rendered copy during merge, and without an ID identity falls back to the
// (role, content, question number) tuple.
func questionMessage(plan *wizard.Plan, step *wizard.Step) entity.Message {
	msg := entity.Message{
		Role:           entity.RoleAssistant,
		Content:        step.FirstPrompt(),
		Timestamp:      time.Now().UTC(),
		IsQuestion:     true,
		QuestionNumber: step.Number,
		TotalQuestions: plan.TotalSteps(),
		StepNumber:     step.Number,
		IsName:         step.IsName,
		VideoURL:       step.VideoURL,
	}
	if len(step.Fields) > 0 {
		msg.Examples = step.Fields[0].Examples
	}
	return msg
}

func completionMessage(plan *wizard.Plan) entity.Message {
	return entity.Message{
		Role:         entity.RoleAssistant,
		Content:      plan.Completion,
		Timestamp:    time.Now().UTC(),
		IsCompletion: true,
	}
}

// welcomeMessages opens a fresh session: the plan's welcome texts followed by
// the first step's question.
func welcomeMessages(plan *wizard.Plan) []entity.Message {
	now := time.Now().UTC()

	messages := make([]entity.Message, 0, len(plan.Welcome)+1)
	for _, text := range plan.Welcome {
		messages = append(messages, entity.Message{
			Role:      entity.RoleAssistant,
			Content:   text,
			Timestamp: now,
		})
	}
	if first, ok := plan.Step(1); ok {
		messages = append(messages, questionMessage(plan, first))
	}

	return messages
}

// collectAnswers merges the stored payloads of every completed step, keeping
// the order each answer was collected in. An empty string is an explicit
// skip and is carried through as-is.
func collectAnswers(plan *wizard.Plan, session *entity.Session) (map[string]string, []string) {
	answers := make(map[string]string)
	order := make([]string, 0)

	for _, step := range plan.Steps {
		payload, ok := session.Payloads[step.Number]
		if !ok {
			continue
		}
		var req entity.StepActionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		for _, key := range req.Order {
			answer, answered := req.Answers[key]
			if !answered {
				continue
			}
			if _, seen := answers[key]; !seen {
				order = append(order, key)
			}
			answers[key] = answer
		}
	}

	return answers, order
}

// extractUserName pulls the answer of the plan's name step out of the stored
// payloads, empty when that step has not been submitted yet.
func extractUserName(plan *wizard.Plan, session *entity.Session) string {
	for _, step := range plan.Steps {
		if !step.IsName || len(step.Fields) == 0 {
			continue
		}
		payload, ok := session.Payloads[step.Number]
		if !ok {
			return ""
		}
		var req entity.StepActionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return ""
		}
		return strings.TrimSpace(req.Answers[step.Fields[0].Key])
	}
	return ""
}

// runGeneration gathers every answer collected so far and asks the
// generation service for the step's result blocks.
func (uc *SessionUsecase) runGeneration(
	ctx context.Context,
	plan *wizard.Plan,
	step *wizard.Step,
	session *entity.Session,
) ([]entity.Message, error) {
	answers, order := collectAnswers(plan, session)

	resp, err := uc.generator.GenerateStep(ctx, &entity.GenerateStepRequest{
		SessionID: session.ID,
		Wizard:    plan.Name,
		StepKey:   step.Key,
		UserName:  extractUserName(plan, session),
		Answers:   answers,
		Order:     order,
	})
	if err != nil {
		return nil, fmt.Errorf("generate step: %w", err)
	}

	return blocksToMessages(resp.Blocks), nil
}

// promptFor resolves a sub-question key back to the text the user was asked,
// falling back to the key itself for anything the plan no longer describes.
func promptFor(step *wizard.Step, key string) string {
	for _, f := range step.Fields {
		if f.Key == key {
			return f.Prompt
		}
	}
	for _, f := range step.Trailing {
		if f.Key == key {
			return f.Prompt
		}
	}
	for i := range step.Categories {
		c := &step.Categories[i]
		if c.GateKey == key {
			return c.AskPrompt
		}
		if strings.HasPrefix(key, c.Key+"-") {
			return c.Prompt
		}
	}
	return key
}

// buildTranscript renders the session as a plain-text document: the answers
// collected per step, then the conversation log. The formatter turns this
// into the requested binary format.
func buildTranscript(plan *wizard.Plan, session *entity.Session, messages []entity.Message) string {
	var sb strings.Builder

	sb.WriteString("Collected answers\n\n")
	for i := range plan.Steps {
		step := &plan.Steps[i]
		payload, ok := session.Payloads[step.Number]
		if !ok {
			continue
		}
		var req entity.StepActionRequest
		if err := json.Unmarshal(payload, &req); err != nil || len(req.Order) == 0 {
			continue
		}

		sb.WriteString(step.Title + "\n")
		for _, key := range req.Order {
			answer, answered := req.Answers[key]
			if !answered {
				continue
			}
			if answer == "" {
				answer = "(skipped)"
			}
			sb.WriteString(fmt.Sprintf("- %s %s\n", promptFor(step, key), answer))
		}
		sb.WriteString("\n")
	}

	if len(messages) > 0 {
		sb.WriteString("Conversation\n\n")
		for _, m := range messages {
			sb.WriteString(fmt.Sprintf("[%s] %s\n", m.Role, m.Content))
		}
	}

	return sb.String()
}
