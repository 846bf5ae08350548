package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/futig/wizard-backend/internal/entity"
)

// identityPrefixLen bounds how much content participates in the fallback
// identity, so trailing edits to a long block do not defeat deduplication.
const identityPrefixLen = 64

// MessageIdentity is the canonical identity of a message, used by every
// merge and dedup site: the ID when present, otherwise the (role, content
// prefix, question number) tuple.
func MessageIdentity(m *entity.Message) string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	return messageTuple(m)
}

func messageTuple(m *entity.Message) string {
	content := m.Content
	if len(content) > identityPrefixLen {
		content = content[:identityPrefixLen]
	}
	return fmt.Sprintf("tuple:%s|%s|%d", m.Role, content, m.QuestionNumber)
}

// MergeMessages unions two message lists into one chronological list with no
// duplicate identities. Primary is authoritative: its copy of a message wins
// and secondary contributes only messages not already present. A message with
// an ID also claims its tuple, so an ID-less local copy of a server-stored
// message still deduplicates.
func MergeMessages(primary, secondary []entity.Message) []entity.Message {
	seen := make(map[string]bool, len(primary)+len(secondary))
	out := make([]entity.Message, 0, len(primary)+len(secondary))

	add := func(m entity.Message) {
		if seen[MessageIdentity(&m)] || seen[messageTuple(&m)] {
			return
		}
		seen[MessageIdentity(&m)] = true
		seen[messageTuple(&m)] = true
		out = append(out, m)
	}

	for _, m := range primary {
		add(m)
	}
	for _, m := range secondary {
		add(m)
	}

	// Stable by timestamp: equal stamps keep primary-first insertion order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// Dedupe removes duplicate identities from a single list, first seen wins.
func Dedupe(msgs []entity.Message) []entity.Message {
	return MergeMessages(msgs, nil)
}

// ContainsIdentity reports whether msgs already holds a message with the
// same identity as m.
func ContainsIdentity(msgs []entity.Message, m *entity.Message) bool {
	want := MessageIdentity(m)
	tuple := messageTuple(m)
	for i := range msgs {
		if MessageIdentity(&msgs[i]) == want || messageTuple(&msgs[i]) == tuple {
			return true
		}
	}
	return false
}

// BackdateBefore assigns synthetic timestamps to msgs so they sort strictly
// before anchor, preserving their relative order. Restored messages are
// back-dated instead of re-sorting content already on screen.
func BackdateBefore(msgs []entity.Message, anchor time.Time) {
	for i := range msgs {
		msgs[i].Timestamp = anchor.Add(-time.Duration(len(msgs)-i) * time.Millisecond)
	}
}

// LastMessage returns the final message of the list, or nil when empty.
func LastMessage(msgs []entity.Message) *entity.Message {
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}

// HasCompletionMarker reports whether any message marks the run complete.
func HasCompletionMarker(msgs []entity.Message) bool {
	for i := range msgs {
		if msgs[i].IsCompletion {
			return true
		}
	}
	return false
}

// HasQuestionNumbered reports whether a question message for the given step
// number is present, used to clear the awaiting-question marker.
func HasQuestionNumbered(msgs []entity.Message, number int) bool {
	for i := range msgs {
		if msgs[i].IsQuestion && msgs[i].QuestionNumber == number {
			return true
		}
	}
	return false
}

// MergeSessions reconciles two copies of the same session. Completion flags
// union (never a regression), the furthest current step wins, and the remote
// copy's payloads take precedence where both exist.
func MergeSessions(local, remote *entity.Session) *entity.Session {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}

	merged := *local
	merged.Completed = MergeCompleted(local.Completed, remote.Completed)
	if remote.CurrentStep > merged.CurrentStep {
		merged.CurrentStep = remote.CurrentStep
	}
	if remote.Status != "" {
		merged.Status = remote.Status
	}
	if len(remote.Payloads) > 0 {
		if merged.Payloads == nil {
			merged.Payloads = make(map[int]json.RawMessage, len(remote.Payloads))
		} else {
			copied := make(map[int]json.RawMessage, len(merged.Payloads)+len(remote.Payloads))
			for k, v := range merged.Payloads {
				copied[k] = v
			}
			merged.Payloads = copied
		}
		for k, v := range remote.Payloads {
			merged.Payloads[k] = v
		}
	}
	merged.UpdatedAt = remote.UpdatedAt
	return &merged
}
