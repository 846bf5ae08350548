package keyboard

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Builder creates inline keyboards
type Builder struct{}

// NewBuilder creates a keyboard builder
func NewBuilder() *Builder {
	return &Builder{}
}

// WizardPlan pairs a registered wizard name with its display title.
type WizardPlan struct {
	Name  string
	Title string
}

// PlanSelectionKeyboard creates one button per registered wizard.
func (b *Builder) PlanSelectionKeyboard(plans []WizardPlan) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Title, EncodeCallback("plan", p.Name)),
		))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// SessionInProgressKeyboard creates continue/cancel buttons shown when /start
// hits a chat that already has a run going.
func (b *Builder) SessionInProgressKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("▶️ Continue", EncodeCallback("action", "resume")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛑 Cancel this wizard", EncodeCallback("action", "cancel")),
		),
	)
}

// CancelConfirmKeyboard creates the yes/no confirmation for /cancel.
func (b *Builder) CancelConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, cancel it", EncodeCallback("confirm", "cancel")),
			tgbotapi.NewInlineKeyboardButtonData("↩️ No, keep going", EncodeCallback("confirm", "keep")),
		),
	)
}

// ExportKeyboard creates one button per transcript format.
func (b *Builder) ExportKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 .md", EncodeCallback("export", "markdown")),
			tgbotapi.NewInlineKeyboardButtonData("📕 .pdf", EncodeCallback("export", "pdf")),
			tgbotapi.NewInlineKeyboardButtonData("📘 .docx", EncodeCallback("export", "docx")),
		),
	)
}
