package validator

import (
	"fmt"

	"github.com/futig/wizard-backend/internal/entity"
)

// ValidateStartSession validates StartSessionRequest
func (v *Validator) ValidateStartSession(req *entity.StartSessionRequest) error {
	if req.WorkspaceID == "" {
		return fmt.Errorf("%w: workspace_id", entity.ErrMissingField)
	}

	if req.UserID == "" {
		return fmt.Errorf("%w: user_id", entity.ErrMissingField)
	}

	if req.Wizard == "" {
		return fmt.Errorf("%w: wizard", entity.ErrMissingField)
	}

	return nil
}

// ValidateStepAction validates the aggregate answer payload of one step.
// Order and Answers must describe the same keys; generate steps may submit
// an empty payload.
func (v *Validator) ValidateStepAction(req *entity.StepActionRequest) error {
	if len(req.Order) != len(req.Answers) {
		return fmt.Errorf("%w: order lists %d keys, answers has %d", entity.ErrInvalidFormat, len(req.Order), len(req.Answers))
	}

	for _, key := range req.Order {
		if key == "" {
			return fmt.Errorf("%w: empty answer key", entity.ErrInvalidFormat)
		}
		if _, ok := req.Answers[key]; !ok {
			return fmt.Errorf("%w: order key '%s' missing from answers", entity.ErrInvalidFormat, key)
		}
	}

	return nil
}

// ValidateHistoryOverwrite validates a full conversation-log replacement.
func (v *Validator) ValidateHistoryOverwrite(req *entity.ConversationHistory) error {
	if req.Messages == nil {
		return fmt.Errorf("%w: messages", entity.ErrMissingField)
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case entity.RoleUser, entity.RoleAssistant:
		default:
			return fmt.Errorf("%w: message %d has role '%s'", entity.ErrInvalidFormat, i, msg.Role)
		}
	}

	return nil
}
