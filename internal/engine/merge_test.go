package engine

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/futig/wizard-backend/internal/entity"
)

func msgAt(id, content string, role entity.MessageRole, ts time.Time) entity.Message {
	return entity.Message{ID: id, Role: role, Content: content, Timestamp: ts}
}

func TestMergeMessagesNoDuplicateIDs(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := []entity.Message{
		msgAt("m1", "Hello there", entity.RoleAssistant, base),
		msgAt("m2", "My answer", entity.RoleUser, base.Add(time.Second)),
	}
	remote := []entity.Message{
		msgAt("m1", "Hello there", entity.RoleAssistant, base),
		msgAt("m3", "Next question", entity.RoleAssistant, base.Add(2*time.Second)),
	}

	merged := MergeMessages(remote, local)

	count := 0
	for _, m := range merged {
		if m.ID == "m1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one m1 after merge, got %d", count)
	}
	if len(merged) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(merged))
	}
}

func TestMergeMessagesTupleFallback(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The server stored the question with an ID; the local copy was
	// synthesized without one. Same role, content and question number must
	// still deduplicate.
	remote := []entity.Message{
		{ID: "srv-9", Role: entity.RoleAssistant, Content: "What's your name?", IsQuestion: true, QuestionNumber: 1, Timestamp: base},
	}
	local := []entity.Message{
		{Role: entity.RoleAssistant, Content: "What's your name?", IsQuestion: true, QuestionNumber: 1, Timestamp: base.Add(time.Minute)},
	}

	merged := MergeMessages(remote, local)
	if len(merged) != 1 {
		t.Fatalf("expected tuple fallback to deduplicate, got %d messages", len(merged))
	}
	if merged[0].ID != "srv-9" {
		t.Fatalf("expected the authoritative copy to win, got ID %q", merged[0].ID)
	}
}

func TestMergeMessagesPrefixIdentity(t *testing.T) {
	t.Parallel()

	base := time.Now()
	long := strings.Repeat("x", identityPrefixLen)

	a := entity.Message{Role: entity.RoleAssistant, Content: long + " tail one", Timestamp: base}
	b := entity.Message{Role: entity.RoleAssistant, Content: long + " tail two", Timestamp: base}

	// Only the prefix participates in the fallback identity, so content that
	// diverges past it still collapses to one message.
	merged := MergeMessages([]entity.Message{a}, []entity.Message{b})
	if len(merged) != 1 {
		t.Fatalf("expected prefix identity to collapse both, got %d", len(merged))
	}

	// Divergence inside the prefix keeps them distinct.
	c := entity.Message{Role: entity.RoleAssistant, Content: "y" + long, Timestamp: base}
	merged = MergeMessages([]entity.Message{a}, []entity.Message{c})
	if len(merged) != 2 {
		t.Fatalf("expected distinct prefixes to survive, got %d", len(merged))
	}
}

func TestMergeMessagesChronological(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := []entity.Message{
		msgAt("m3", "third", entity.RoleAssistant, base.Add(2*time.Second)),
		msgAt("m1", "first", entity.RoleAssistant, base),
	}
	local := []entity.Message{
		msgAt("m2", "second", entity.RoleUser, base.Add(time.Second)),
	}

	merged := MergeMessages(remote, local)
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if merged[i].Content != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, merged[i].Content)
		}
	}
}

func TestBackdateBefore(t *testing.T) {
	t.Parallel()

	anchor := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	restored := []entity.Message{
		msgAt("r1", "one", entity.RoleAssistant, anchor.Add(time.Hour)),
		msgAt("r2", "two", entity.RoleUser, anchor.Add(2*time.Hour)),
	}

	BackdateBefore(restored, anchor)

	for i, m := range restored {
		if !m.Timestamp.Before(anchor) {
			t.Fatalf("message %d not back-dated before anchor: %v", i, m.Timestamp)
		}
	}
	if !restored[0].Timestamp.Before(restored[1].Timestamp) {
		t.Fatal("relative order not preserved by back-dating")
	}
}

func TestContainsIdentity(t *testing.T) {
	t.Parallel()

	msgs := []entity.Message{
		{ID: "m1", Role: entity.RoleAssistant, Content: "Question?", IsQuestion: true, QuestionNumber: 2},
	}

	local := entity.Message{Role: entity.RoleAssistant, Content: "Question?", QuestionNumber: 2}
	if !ContainsIdentity(msgs, &local) {
		t.Fatal("expected ID-less copy to match by tuple")
	}

	other := entity.Message{Role: entity.RoleUser, Content: "Question?", QuestionNumber: 2}
	if ContainsIdentity(msgs, &other) {
		t.Fatal("different role must not match")
	}
}

func TestMergeSessionsUnionAndRemoteWins(t *testing.T) {
	t.Parallel()

	local := &entity.Session{
		ID:          "s1",
		Status:      entity.SessionStatusActive,
		CurrentStep: 2,
		Completed:   []bool{true, true, false},
		Payloads:    map[int]json.RawMessage{1: json.RawMessage(`{"a":1}`)},
	}
	remote := &entity.Session{
		ID:          "s1",
		Status:      entity.SessionStatusCompleted,
		CurrentStep: 4,
		Completed:   []bool{true, false, true},
		Payloads:    map[int]json.RawMessage{1: json.RawMessage(`{"a":2}`), 3: json.RawMessage(`{"c":3}`)},
	}

	merged := MergeSessions(local, remote)

	if !merged.Completed[0] || !merged.Completed[1] || !merged.Completed[2] {
		t.Fatalf("expected union of flags, got %v", merged.Completed)
	}
	if merged.CurrentStep != 4 {
		t.Fatalf("expected furthest current step, got %d", merged.CurrentStep)
	}
	if merged.Status != entity.SessionStatusCompleted {
		t.Fatalf("expected remote status to win, got %s", merged.Status)
	}
	if string(merged.Payloads[1]) != `{"a":2}` {
		t.Fatalf("expected remote payload to win, got %s", merged.Payloads[1])
	}
	if string(local.Payloads[1]) != `{"a":1}` {
		t.Fatal("merge mutated the local session's payload map")
	}
}

func TestHasCompletionMarkerAndLastMessage(t *testing.T) {
	t.Parallel()

	if LastMessage(nil) != nil {
		t.Fatal("expected nil last message for empty list")
	}

	msgs := []entity.Message{
		{Role: entity.RoleAssistant, Content: "working"},
		{Role: entity.RoleAssistant, Content: "done", IsCompletion: true},
	}
	if !HasCompletionMarker(msgs) {
		t.Fatal("expected completion marker to be found")
	}
	if last := LastMessage(msgs); last == nil || last.Content != "done" {
		t.Fatalf("unexpected last message: %+v", last)
	}
}
