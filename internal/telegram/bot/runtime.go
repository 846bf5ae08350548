package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/engine"
	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/telegram/keyboard"
	"github.com/futig/wizard-backend/internal/telegram/render"
	"github.com/futig/wizard-backend/internal/wizard"
)

const flushTimeout = 10 * time.Second

// chatRuntime owns the engine for one chat. Its mutex serializes handling
// within the chat while different chats run concurrently.
type chatRuntime struct {
	mu            sync.Mutex
	eng           *engine.Engine
	plan          *wizard.Plan
	pendingCancel bool
}

// runtime returns the per-chat runtime, creating the slot on first contact.
// Callers lock rt.mu for the whole update.
func (b *Bot) runtime(chatID int64) *chatRuntime {
	b.runtimeMu.Lock()
	defer b.runtimeMu.Unlock()
	rt, ok := b.runtimes[chatID]
	if !ok {
		rt = &chatRuntime{}
		b.runtimes[chatID] = rt
	}
	return rt
}

// workspaceID scopes all persisted wizard state to the chat.
func workspaceID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// mountRuntime attaches a mounted engine to rt when the chat has a recorded
// active plan. A record pointing at nothing resumable is cleared so the next
// message starts clean. Call with the chat lock held.
func (b *Bot) mountRuntime(ctx context.Context, rt *chatRuntime, chatID, userID int64) error {
	if rt.eng != nil {
		return nil
	}

	name, err := b.store.LoadActivePlan(ctx, workspaceID(chatID))
	if errors.Is(err, entity.ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load active plan: %w", err)
	}

	plan, err := wizard.Get(name)
	if err != nil {
		ctxzap.Warn(ctx, "recorded plan no longer exists",
			zap.String("wizard", name),
			zap.Int64("chat_id", chatID),
		)
		_ = b.store.ClearActivePlan(ctx, workspaceID(chatID))
		return nil
	}

	eng := b.newEngine(plan, chatID, userID)
	res, err := eng.Mount(ctx)
	if err != nil {
		return fmt.Errorf("mount wizard '%s': %w", name, err)
	}
	if res.Fresh {
		_ = b.store.ClearActivePlan(ctx, workspaceID(chatID))
		return nil
	}

	rt.eng = eng
	rt.plan = plan
	return nil
}

func (b *Bot) newEngine(plan *wizard.Plan, chatID, userID int64) *engine.Engine {
	return engine.NewEngine(engine.Config{
		Plan:         plan,
		WorkspaceID:  workspaceID(chatID),
		UserID:       strconv.FormatInt(userID, 10),
		Sessions:     b.store,
		Fields:       b.store,
		Markers:      b.store,
		Log:          b.backend,
		API:          b.backend,
		Sink:         b.chatSink(chatID),
		Retry:        &b.cfg.BackendCfg.Retry,
		Logger:       b.logger,
		PushDebounce: b.cfg.PushDebounce,
	})
}

// chatSink forwards engine messages into the chat. The user's own answers
// are skipped; their bubbles are already on screen.
func (b *Bot) chatSink(chatID int64) engine.MessageSink {
	return func(ctx context.Context, msg entity.Message) error {
		if msg.Role == entity.RoleUser {
			return nil
		}
		text, parseMode := render.Message(msg)
		return b.sendMessage(chatID, text, parseMode, nil)
	}
}

// dropRuntime forgets the engine after a cancel so the next message starts
// clean. Call with the chat lock held.
func (b *Bot) dropRuntime(ctx context.Context, rt *chatRuntime, chatID int64) {
	_ = b.store.ClearActivePlan(ctx, workspaceID(chatID))
	rt.eng = nil
	rt.plan = nil
	rt.pendingCancel = false
}

// flushRuntimes writes every chat's buffered state out synchronously. Called
// once on shutdown, after the update loop has drained.
func (b *Bot) flushRuntimes() {
	b.runtimeMu.Lock()
	snapshot := make([]*chatRuntime, 0, len(b.runtimes))
	for _, rt := range b.runtimes {
		snapshot = append(snapshot, rt)
	}
	b.runtimeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for _, rt := range snapshot {
		rt.mu.Lock()
		if rt.eng != nil {
			rt.eng.Flush(ctx)
		}
		rt.mu.Unlock()
	}
}

// planChoices lists the wizards the selection keyboard offers.
func planChoices() []keyboard.WizardPlan {
	names := wizard.Names()
	choices := make([]keyboard.WizardPlan, 0, len(names))
	for _, name := range names {
		p, err := wizard.Get(name)
		if err != nil {
			continue
		}
		choices = append(choices, keyboard.WizardPlan{Name: p.Name, Title: p.Title})
	}
	return choices
}
