package keyboard

import (
	"testing"
)

func TestCallbackRoundTrip(t *testing.T) {
	t.Parallel()

	encoded := EncodeCallback("plan", "profile")
	if encoded != "plan:profile" {
		t.Fatalf("unexpected encoding: %s", encoded)
	}

	data, err := ParseCallback(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Action != "plan" || data.Value != "profile" {
		t.Fatalf("unexpected callback data: %+v", data)
	}
}

func TestParseCallbackKeepsColonsInValue(t *testing.T) {
	t.Parallel()

	data, err := ParseCallback("action:resume:now")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Action != "action" || data.Value != "resume:now" {
		t.Fatalf("unexpected callback data: %+v", data)
	}
}

func TestParseCallbackRejectsBareAction(t *testing.T) {
	t.Parallel()

	if _, err := ParseCallback("start"); err == nil {
		t.Fatal("expected an error for data without a separator")
	}
}

func TestPlanSelectionKeyboardLayout(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	kb := b.PlanSelectionKeyboard([]WizardPlan{
		{Name: "profile", Title: "Client Profile"},
		{Name: "offer", Title: "Offer"},
	})

	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected one row per plan, got %d", len(kb.InlineKeyboard))
	}
	first := kb.InlineKeyboard[0][0]
	if first.Text != "Client Profile" {
		t.Fatalf("unexpected button label: %s", first.Text)
	}
	if first.CallbackData == nil || *first.CallbackData != "plan:profile" {
		t.Fatalf("unexpected callback data: %v", first.CallbackData)
	}
	second := kb.InlineKeyboard[1][0]
	if second.CallbackData == nil || *second.CallbackData != "plan:offer" {
		t.Fatalf("unexpected callback data: %v", second.CallbackData)
	}
}

func TestExportKeyboardFormats(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	kb := b.ExportKeyboard()

	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 3 {
		t.Fatalf("expected a single row of three formats, got %v", kb.InlineKeyboard)
	}

	want := []string{"export:markdown", "export:pdf", "export:docx"}
	for i, btn := range kb.InlineKeyboard[0] {
		if btn.CallbackData == nil || *btn.CallbackData != want[i] {
			t.Fatalf("button %d: expected %s, got %v", i, want[i], btn.CallbackData)
		}
		data, err := ParseCallback(*btn.CallbackData)
		if err != nil {
			t.Fatalf("button %d parse: %v", i, err)
		}
		if data.Action != "export" {
			t.Fatalf("button %d: unexpected action %s", i, data.Action)
		}
	}
}

func TestCancelConfirmKeyboard(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	kb := b.CancelConfirmKeyboard()

	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("expected a single yes/no row, got %v", kb.InlineKeyboard)
	}
	yes := kb.InlineKeyboard[0][0]
	no := kb.InlineKeyboard[0][1]
	if yes.CallbackData == nil || *yes.CallbackData != "confirm:cancel" {
		t.Fatalf("unexpected confirm data: %v", yes.CallbackData)
	}
	if no.CallbackData == nil || *no.CallbackData != "confirm:keep" {
		t.Fatalf("unexpected keep data: %v", no.CallbackData)
	}
}

func TestSessionInProgressKeyboard(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	kb := b.SessionInProgressKeyboard()

	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected two rows, got %d", len(kb.InlineKeyboard))
	}
	resume := kb.InlineKeyboard[0][0]
	cancel := kb.InlineKeyboard[1][0]
	if resume.CallbackData == nil || *resume.CallbackData != "action:resume" {
		t.Fatalf("unexpected resume data: %v", resume.CallbackData)
	}
	if cancel.CallbackData == nil || *cancel.CallbackData != "action:cancel" {
		t.Fatalf("unexpected cancel data: %v", cancel.CallbackData)
	}
}
