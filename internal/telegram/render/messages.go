// Package render holds every user-visible text the bot sends, plus the
// formatting helpers that turn engine messages into Telegram text.
package render

import (
	"fmt"
	"strings"

	"github.com/futig/wizard-backend/internal/entity"
)

const (
	// Welcome and plan selection
	MsgWelcome = `👋 Hi! I walk you through guided marketing wizards, one question at a time.

Pick a wizard, answer a handful of questions, and I'll generate the result for you. You can leave at any point and pick up exactly where you stopped.`

	MsgChoosePlan = `🧙 Which wizard would you like to run?`

	MsgHelp = `🤖 Commands:

/start - Pick a wizard and begin
/progress - Show how far along you are
/export - Download the finished transcript
/cancel - Abandon the current wizard
/help - Show this message

You can answer by text or voice message. Leaving mid-wizard is fine: your progress is saved and the next message resumes where you stopped.`

	// Session lifecycle
	MsgSessionInProgress = `📎 You're in the middle of "%s". Continue answering, or cancel it first to start another wizard.`

	MsgResumed = `🔄 Welcome back! Picking up "%s" where you left off.`

	MsgCancelConfirm = `⚠️ Cancel "%s"? The run ends and its progress is discarded.`

	MsgSessionCancelled = `👋 Wizard cancelled.

Send /start whenever you want to begin a new one.`

	MsgCancelKept = `👍 Carrying on. Send your next answer whenever you're ready.`

	MsgNothingToCancel = `Nothing to cancel right now. Send /start to begin a wizard.`

	// Input handling
	MsgNoActiveSession = `No wizard is running yet. Pick one to begin:`

	MsgNoRunYet = `No wizard is running yet. Send /start to begin.`

	MsgStillWorking = `⏳ Still working on the previous step. Give me a moment.`

	MsgAlreadyComplete = `🎉 This wizard is finished. Download the transcript below, or /start a new run.`

	MsgTranscribed = `🎙 Heard: "%s"`

	// Export
	MsgExportPick      = `📄 Pick a format:`
	MsgNothingToExport = `Nothing to export yet. Start a wizard with /start first.`
	MsgExportReady     = `✅ Here's your transcript.`

	// Errors
	ErrGeneric            = `❌ Something went wrong. Try again, or send /start to begin over.`
	ErrTranscription      = `❌ I couldn't make out that voice message. Try again, or type your answer.`
	ErrSessionGone        = `❌ That session no longer exists. Send /start to begin a new one.`
	ErrNetworkIssue       = `❌ Connection trouble. Please try again in a moment.`
	ErrServiceUnavailable = `❌ The service is briefly unavailable. Try again in a couple of minutes.`
	ErrTimeout            = `❌ That took too long. Please try again.`
	ErrVoiceTooLarge      = `❌ That voice message is too large. Keep it under a few minutes, or type the answer.`
	ErrUnknownCommand     = `❌ Unknown command. Send /help for the list.`
	ErrUnknownButton      = `❌ That button has expired. Send /start.`
	ErrUnsupportedContent = `🤔 I can only take text or voice messages here.`
)

// Message formats one engine message for Telegram. The second return value is
// the parse mode, empty for plain text.
func Message(msg entity.Message) (string, string) {
	parseMode := ""
	if msg.IsHTML {
		parseMode = "HTML"
	}

	switch {
	case msg.IsQuestion:
		return questionText(msg), parseMode
	case msg.IsCompletion:
		return "🎉 " + msg.Content, parseMode
	default:
		return msg.Content, parseMode
	}
}

// questionText composes the numbered prompt with its examples and video
// pointer. Content itself is the bare prompt; the metadata travels in fields.
func questionText(msg entity.Message) string {
	var sb strings.Builder

	if msg.QuestionNumber > 0 && msg.TotalQuestions > 0 {
		fmt.Fprintf(&sb, "📍 Step %d of %d\n\n", msg.QuestionNumber, msg.TotalQuestions)
	}
	sb.WriteString("❓ ")
	sb.WriteString(msg.Content)

	if len(msg.Examples) > 0 {
		sb.WriteString("\n\nFor example:")
		for _, ex := range msg.Examples {
			sb.WriteString("\n• ")
			sb.WriteString(ex)
		}
	}

	if msg.VideoURL != "" {
		sb.WriteString("\n\n🎥 Short explainer: ")
		sb.WriteString(msg.VideoURL)
	}

	return sb.String()
}

// Transcribed echoes the recognized voice text back so the user can spot
// recognition mistakes before the answer is taken.
func Transcribed(text string) string {
	return fmt.Sprintf(MsgTranscribed, text)
}

// Progress formats the /progress reply.
func Progress(planTitle string, stage entity.Stage, fraction float64, totalSteps int) string {
	bar := ProgressBar(fraction)

	switch stage.Kind {
	case entity.StageComplete:
		return fmt.Sprintf("🎉 \"%s\" is complete.\n\n%s", planTitle, bar)
	case entity.StageSubmitting:
		return fmt.Sprintf("⏳ \"%s\", step %d of %d is being processed.\n\n%s", planTitle, stage.Step, totalSteps, bar)
	case entity.StageAwaiting:
		return fmt.Sprintf("📝 \"%s\", step %d of %d.\n\n%s", planTitle, stage.Step, totalSteps, bar)
	default:
		return MsgNoRunYet
	}
}

// ProgressBar renders a ten-slot bar for a 0..1 fraction.
func ProgressBar(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	filled := int(fraction * 10)
	bar := strings.Repeat("▓", filled) + strings.Repeat("░", 10-filled)
	return fmt.Sprintf("[%s] %d%%", bar, int(fraction*100))
}
