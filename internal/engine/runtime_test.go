package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/futig/wizard-backend/internal/entity"
)

type engineHarness struct {
	store *memoryStore
	log   *fakeLog
	api   *fakeAPI
	sink  *collectSink
	eng   *Engine
}

// newEngineHarness builds an Engine over fresh fakes. The push debounce is an
// hour so background pushes never race assertions; debounce tests override it.
func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	h := &engineHarness{
		store: newMemoryStore(),
		log:   newFakeLog(),
		api:   nil,
		sink:  newCollectSink(),
	}
	plan := testPlan()
	h.api = newFakeAPI(plan, testWS)
	h.eng = NewEngine(Config{
		Plan:         plan,
		WorkspaceID:  testWS,
		UserID:       "user-1",
		Sessions:     h.store,
		Fields:       h.store,
		Markers:      h.store,
		Log:          h.log,
		API:          h.api,
		Sink:         h.sink.sink,
		Retry:        testRetry(),
		PushDebounce: time.Hour,
	})
	return h
}

// remount builds a second Engine over the same stores, as a fresh process
// would after a reload.
func (h *engineHarness) remount(workspaceID string, sink *collectSink) *Engine {
	return NewEngine(Config{
		Plan:         testPlan(),
		WorkspaceID:  workspaceID,
		UserID:       "user-1",
		Sessions:     h.store,
		Fields:       h.store,
		Markers:      h.store,
		Log:          h.log,
		API:          h.api,
		Sink:         sink.sink,
		Retry:        testRetry(),
		PushDebounce: time.Hour,
	})
}

func (h *engineHarness) begin(t *testing.T) {
	t.Helper()
	if err := h.eng.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func (h *engineHarness) answer(t *testing.T, text string) {
	t.Helper()
	if err := h.eng.HandleInput(context.Background(), text); err != nil {
		t.Fatalf("handle input %q: %v", text, err)
	}
}

func TestEngineBeginWelcomeAndFirstQuestion(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)

	want := []string{"Welcome to the probe.", "What's your name?"}
	got := h.sink.contents()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v rendered, got %v", want, got)
	}

	if st := h.eng.Stage(); st.Kind != entity.StageAwaiting || st.Step != 1 {
		t.Fatalf("expected awaiting step 1, got %+v", st)
	}

	ptr, err := h.store.LoadPointer(context.Background(), "probe", testWS)
	if err != nil || ptr.SessionID != "sess-1" {
		t.Fatalf("expected a persisted resume pointer, got %+v, %v", ptr, err)
	}
	snap := h.store.snapshot("probe", testWS, "sess-1")
	if snap == nil || len(snap.Messages) != 2 {
		t.Fatalf("expected a persisted snapshot with 2 messages, got %+v", snap)
	}

	step, desc := h.eng.ActiveInput()
	if step != 1 || desc == nil || desc.Disabled {
		t.Fatalf("expected an enabled input slot for step 1, got %d %+v", step, desc)
	}
	if desc.Placeholder != "What's your name?" {
		t.Fatalf("expected the prompt as placeholder, got %q", desc.Placeholder)
	}
}

func TestEngineBeginRefusesActiveSession(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)

	err := h.eng.Begin(context.Background())
	if !errors.Is(err, entity.ErrInvalidSessionStatus) {
		t.Fatalf("expected ErrInvalidSessionStatus, got %v", err)
	}
}

func TestEngineWalkToCompletion(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)
	h.answer(t, "Dana")
	h.answer(t, "More hands on deck")
	h.answer(t, "no")
	h.answer(t, "skip")

	if st := h.eng.Stage(); st.Kind != entity.StageComplete {
		t.Fatalf("expected the run complete, got %+v", st)
	}
	if name := h.eng.UserName(); name != "Dana" {
		t.Fatalf("expected userName captured from the name step, got %q", name)
	}
	if p := h.eng.Progress(); p != 1 {
		t.Fatalf("expected progress 1.0, got %v", p)
	}

	wantSubmits := []string{"intro", "needs", "generate-report"}
	got := h.api.submits()
	if len(got) != len(wantSubmits) {
		t.Fatalf("expected submits %v, got %v", wantSubmits, got)
	}
	for i := range wantSubmits {
		if got[i] != wantSubmits[i] {
			t.Fatalf("expected submits %v, got %v", wantSubmits, got)
		}
	}

	for _, action := range wantSubmits {
		if h.store.marker("probe", testWS, action) != nil {
			t.Fatalf("expected marker for %q cleared", action)
		}
	}

	msgs := h.eng.Messages()
	last := LastMessage(msgs)
	if last == nil || !last.IsCompletion {
		t.Fatalf("expected the completion marker last, got %+v", last)
	}

	// Completion flushes synchronously; nothing waits on the debounce.
	if h.log.saves() != 1 {
		t.Fatalf("expected exactly one log flush, got %d", h.log.saves())
	}
	saved := h.log.saved("sess-1")
	if len(saved) != len(msgs) || !LastMessage(saved).IsCompletion {
		t.Fatalf("expected the full history flushed, got %d of %d", len(saved), len(msgs))
	}
}

func TestEngineValidationErrorStaysLocal(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)
	before := len(h.sink.all())

	err := h.eng.HandleInput(context.Background(), "D")
	if !errors.Is(err, entity.ErrAnswerTooShort) {
		t.Fatalf("expected ErrAnswerTooShort, got %v", err)
	}
	if len(h.sink.all()) != before {
		t.Fatal("a rejected answer must not render a user bubble")
	}
	if len(h.api.submits()) != 0 {
		t.Fatal("a rejected answer must never reach the server")
	}
	if st := h.eng.Stage(); st.Kind != entity.StageAwaiting || st.Step != 1 {
		t.Fatalf("expected still awaiting step 1, got %+v", st)
	}

	// The same question accepts a valid answer afterwards.
	h.answer(t, "Dana")
	if st := h.eng.Stage(); st.Step != 2 {
		t.Fatalf("expected step 2 after the corrected answer, got %+v", st)
	}
}

func TestEngineGateCollectsExtras(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)
	h.answer(t, "Dana")
	mark := len(h.sink.all())

	h.answer(t, "More hands on deck")
	h.answer(t, "yes")
	h.answer(t, "CRM setup")
	h.answer(t, "no")
	h.answer(t, "skip")

	want := []string{
		"More hands on deck",
		"Would you like to add another need? (yes/no)",
		"yes",
		"Describe the extra need.",
		"CRM setup",
		"Would you like to add another need? (yes/no)",
		"no",
		"Anything else worth noting?",
		"skip",
		"Saved your answers for Needs.",
		"Saved your answers for Report.",
		"All done. Your report is ready.",
	}
	got := h.sink.contents()[mark:]
	if len(got) != len(want) {
		t.Fatalf("expected %d renders, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("render %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestEngineSubmitFailureRecoversWithRetry(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)

	orig := h.api.submitFn
	calls := 0
	h.api.submitFn = func(sid, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("backend unavailable")
		}
		return orig(sid, action, req)
	}

	err := h.eng.HandleInput(context.Background(), "Dana")
	if err == nil {
		t.Fatal("expected the submit failure surfaced")
	}

	// The user saw the failure: no interrupted-operation marker remains and
	// the step is back to awaiting with a retry slot.
	if h.store.marker("probe", testWS, "intro") != nil {
		t.Fatal("expected the marker cleared on a seen failure")
	}
	if st := h.eng.Stage(); st.Kind != entity.StageAwaiting || st.Step != 1 {
		t.Fatalf("expected awaiting step 1, got %+v", st)
	}
	_, desc := h.eng.ActiveInput()
	if desc == nil || desc.Placeholder != retryPlaceholder {
		t.Fatalf("expected a retry input slot, got %+v", desc)
	}

	// Any input retries the call with the recorded answers.
	h.answer(t, "go")
	if st := h.eng.Stage(); st.Kind != entity.StageAwaiting || st.Step != 2 {
		t.Fatalf("expected step 2 after the retry, got %+v", st)
	}
	submits := h.api.submits()
	if len(submits) != 2 || submits[0] != "intro" || submits[1] != "intro" {
		t.Fatalf("expected intro submitted twice, got %v", submits)
	}

	// The retry nudge itself is not an answer and renders no bubble.
	for _, c := range h.sink.contents() {
		if c == "go" {
			t.Fatal("the retry nudge must not render as a user message")
		}
	}
}

func TestEngineInterruptedSubmitResumesOnRemount(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)

	base := time.Now()
	results := []entity.Message{
		{ID: "needs-r1", Role: entity.RoleAssistant, Content: "Here is what you told me.", Timestamp: base},
		{ID: "needs-r2", Role: entity.RoleAssistant, Content: "Your top need is capacity.", Timestamp: base.Add(time.Second)},
		{ID: "needs-r3", Role: entity.RoleAssistant, Content: "On to the report.", Timestamp: base.Add(2 * time.Second)},
	}
	orig := h.api.submitFn
	h.api.submitFn = func(sid, action string, req *entity.StepActionRequest) (*entity.StepActionResponse, error) {
		if action != "needs" {
			return orig(sid, action, req)
		}
		out := testSession(testWS, 3)
		out.Completed[0] = true
		out.Completed[1] = true
		out.CurrentStep = 3
		return &entity.StepActionResponse{
			Session:  out,
			Messages: append([]entity.Message(nil), results...),
		}, nil
	}

	h.begin(t)
	h.answer(t, "Dana")
	h.answer(t, "More hands on deck")
	h.answer(t, "no")

	// The crash: the answer bubble and the first result render, then the
	// surface dies.
	h.sink.setFailAfter(len(h.sink.all()) + 2)
	err := h.eng.HandleInput(context.Background(), "skip")
	if err == nil {
		t.Fatal("expected the render failure surfaced")
	}

	marker := h.store.marker("probe", testWS, "needs")
	if marker == nil {
		t.Fatal("expected a durable marker after the interrupted render")
	}
	if marker.RenderedCount != 1 {
		t.Fatalf("expected rendered count 1, got %d", marker.RenderedCount)
	}
	snap := h.store.snapshot("probe", testWS, "sess-1")
	if snap == nil || !snap.Session.StepCompleted(2) {
		t.Fatal("expected the step completion durable despite the failed render")
	}
	if !ContainsIdentity(snap.Messages, &results[0]) {
		t.Fatal("expected the rendered first result persisted")
	}
	if ContainsIdentity(snap.Messages, &results[1]) {
		t.Fatal("the unrendered result must not be in the snapshot")
	}

	// A fresh process picks the call back up and renders only the remainder,
	// then rides the generate step through to completion.
	sink2 := newCollectSink()
	eng2 := h.remount(testWS, sink2)
	res, err := eng2.Mount(context.Background())
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if res.Fresh {
		t.Fatal("expected the session resumed")
	}

	want := []string{
		"Your top need is capacity.",
		"On to the report.",
		"Saved your answers for Report.",
		"All done. Your report is ready.",
	}
	got := sink2.contents()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("render %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if h.store.marker("probe", testWS, "needs") != nil {
		t.Fatal("expected the marker cleared after recovery")
	}
	if st := eng2.Stage(); st.Kind != entity.StageComplete {
		t.Fatalf("expected the run complete, got %+v", st)
	}

	// Each result message appears exactly once across the whole recovery.
	for _, r := range results {
		seen := 0
		for _, m := range eng2.Messages() {
			if m.ID == r.ID {
				seen++
			}
		}
		if seen != 1 {
			t.Fatalf("expected %s exactly once, got %d", r.ID, seen)
		}
	}
}

func TestEngineDebouncedPushCoalesces(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.eng.pushDebounce = 40 * time.Millisecond

	h.begin(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.log.saves() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.log.saves() != 1 {
		t.Fatalf("expected the two appends coalesced into one push, got %d", h.log.saves())
	}

	time.Sleep(120 * time.Millisecond)
	if h.log.saves() != 1 {
		t.Fatalf("expected no further pushes, got %d", h.log.saves())
	}
	if len(h.log.saved("sess-1")) != 2 {
		t.Fatalf("expected both messages pushed, got %d", len(h.log.saved("sess-1")))
	}
}

func TestEngineFlushPushesSynchronously(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)

	if h.log.saves() != 0 {
		t.Fatalf("expected the hour-long debounce still pending, got %d pushes", h.log.saves())
	}

	h.eng.Flush(context.Background())
	if h.log.saves() != 1 {
		t.Fatalf("expected one synchronous push, got %d", h.log.saves())
	}
	if len(h.log.saved("sess-1")) != 2 {
		t.Fatalf("expected the full history flushed, got %d", len(h.log.saved("sess-1")))
	}
}

func TestEngineCancelClearsLocal(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)
	h.answer(t, "Dana")
	h.eng.SetInput(context.Background(), "More ha")

	if err := h.eng.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(h.api.cancelled) != 1 || h.api.cancelled[0] != "sess-1" {
		t.Fatalf("expected the server cancel call, got %v", h.api.cancelled)
	}
	if _, err := h.store.LoadPointer(context.Background(), "probe", testWS); !errors.Is(err, entity.ErrStateNotFound) {
		t.Fatalf("expected the resume pointer removed, got %v", err)
	}
	if h.store.snapshot("probe", testWS, "sess-1") != nil {
		t.Fatal("expected the snapshot removed")
	}
	if _, err := h.store.LoadFields(context.Background(), "probe", testWS, "sess-1", 2); !errors.Is(err, entity.ErrStateNotFound) {
		t.Fatalf("expected the field cache removed, got %v", err)
	}
	if h.eng.Session() != nil {
		t.Fatal("expected no in-memory session")
	}
	if _, desc := h.eng.ActiveInput(); desc != nil {
		t.Fatal("expected the input slot released")
	}

	sink2 := newCollectSink()
	res, err := h.remount(testWS, sink2).Mount(context.Background())
	if err != nil {
		t.Fatalf("mount after cancel: %v", err)
	}
	if !res.Fresh {
		t.Fatal("expected a fresh mount after cancel")
	}
}

func TestEngineSetInputSurvivesRemount(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)
	time.Sleep(10 * time.Millisecond)
	h.eng.SetInput(context.Background(), "Dan")

	sink2 := newCollectSink()
	eng2 := h.remount(testWS, sink2)
	res, err := eng2.Mount(context.Background())
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if res.Input != "Dan" {
		t.Fatalf("expected the draft restored, got %q", res.Input)
	}
	_, desc := eng2.ActiveInput()
	if desc == nil || desc.Value != "Dan" {
		t.Fatalf("expected the draft in the input slot, got %+v", desc)
	}
	if len(sink2.all()) != 0 {
		t.Fatalf("a clean resume must not replay messages, rendered %v", sink2.contents())
	}
}

func TestEngineMountRerendersLostPrompt(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)

	// The render surface dies exactly in the awaiting-marker gap: the answer
	// is recorded and step 1 submitted, but step 2's prompt never appears.
	h.sink.setFailAfter(len(h.sink.all()) + 2)
	if err := h.eng.HandleInput(context.Background(), "Dana"); err == nil {
		t.Fatal("expected the prompt render failure surfaced")
	}

	if _, err := h.store.LoadAwaiting(context.Background(), "probe", testWS); err != nil {
		t.Fatalf("expected the awaiting marker kept, got %v", err)
	}

	sink2 := newCollectSink()
	eng2 := h.remount(testWS, sink2)
	if _, err := eng2.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}

	got := sink2.contents()
	if len(got) != 1 || got[0] != "What do you need most right now?" {
		t.Fatalf("expected the lost prompt re-rendered once, got %v", got)
	}
	// Derivable locally: the recovery never had to ask the server.
	if h.api.currentCalls() != 0 {
		t.Fatalf("expected no current-question fetch, got %d", h.api.currentCalls())
	}
	if _, err := h.store.LoadAwaiting(context.Background(), "probe", testWS); !errors.Is(err, entity.ErrStateNotFound) {
		t.Fatalf("expected the awaiting marker cleared, got %v", err)
	}
	_, desc := eng2.ActiveInput()
	if desc == nil || desc.Placeholder != "What do you need most right now?" {
		t.Fatalf("expected the input slot on the re-rendered question, got %+v", desc)
	}
}

func TestEngineWorkspaceSwitchMountsFresh(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)
	h.begin(t)
	h.answer(t, "Dana")

	sink2 := newCollectSink()
	eng2 := h.remount("ws-2", sink2)
	res, err := eng2.Mount(context.Background())
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if !res.Fresh {
		t.Fatal("another workspace must mount fresh")
	}
	if len(eng2.Messages()) != 0 || len(sink2.all()) != 0 {
		t.Fatal("another workspace must start with zero messages")
	}
	if eng2.Session() != nil {
		t.Fatal("another workspace must not see the session")
	}
}

func TestEngineInputGating(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t)

	err := h.eng.HandleInput(context.Background(), "hello")
	if !errors.Is(err, entity.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound before begin, got %v", err)
	}

	h.begin(t)
	h.answer(t, "Dana")
	h.answer(t, "More hands on deck")
	h.answer(t, "no")
	h.answer(t, "skip")

	err = h.eng.HandleInput(context.Background(), "hello again")
	if !errors.Is(err, entity.ErrStepNotActive) {
		t.Fatalf("expected ErrStepNotActive after completion, got %v", err)
	}
}
