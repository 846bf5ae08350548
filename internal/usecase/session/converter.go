package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/futig/wizard-backend/internal/entity"
)

// blocksToMessages renders generation result blocks as assistant messages.
// Each block gets a fresh ID: the stored copy is replayed verbatim on a
// duplicate submit, so the client can de-duplicate by ID alone.
func blocksToMessages(blocks []entity.GeneratedBlock) []entity.Message {
	now := time.Now().UTC()

	messages := make([]entity.Message, 0, len(blocks))
	for _, b := range blocks {
		messages = append(messages, entity.Message{
			ID:        uuid.New().String(),
			Role:      entity.RoleAssistant,
			Content:   b.Content,
			IsHTML:    b.IsHTML,
			Timestamp: now,
		})
	}

	return messages
}
