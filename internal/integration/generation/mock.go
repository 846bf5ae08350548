package generation

import (
	"context"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/entity"
)

// MockConnector returns canned result blocks so the whole flow can run
// without the generation service.
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{
		logger: logger,
	}
}

func (m *MockConnector) GenerateStep(ctx context.Context, req *entity.GenerateStepRequest) (
	*entity.GenerateStepResponse, error,
) {
	ctxzap.Info(ctx, "[MOCK] generating step result",
		zap.String("wizard", req.Wizard),
		zap.String("step_key", req.StepKey),
		zap.Int("answer_count", len(req.Answers)),
	)

	intro := "Here is your draft"
	if req.UserName != "" {
		intro = fmt.Sprintf("Here is your draft, %s", req.UserName)
	}

	var body string
	switch req.Wizard {
	case "profile":
		body = `<b>Ideal Client Profile (MOCK)</b><br><br>` +
			`<b>Who they are.</b> A decision maker at a company that already feels the problem you solve, has budget to fix it, and has tried at least one cheaper route first.<br><br>` +
			`<b>What keeps them up at night.</b> The gap between where their numbers are and where they promised the board they would be.<br><br>` +
			`<b>Where to find them.</b> Industry communities, referral loops from current customers, and the two channels you named in your answers.<br><br>` +
			`<b>What to say first.</b> Lead with the outcome, not the method. Name the problem in their words.`
	case "offer":
		body = `<b>Refined Offer (MOCK)</b><br><br>` +
			`<b>The promise.</b> A single measurable outcome, delivered in a fixed window, with the risk carried by you instead of the buyer.<br><br>` +
			`<b>The stack.</b> Your core deliverable plus the components you listed, each framed as a standalone value with its own price anchor.<br><br>` +
			`<b>The guarantee.</b> Conditional on the client doing their part, generous enough to remove hesitation.<br><br>` +
			`<b>The price.</b> Anchored against the cost of the unsolved problem, not against competitors.`
	case "casestudy":
		body = `<b>Case Study (MOCK)</b><br><br>` +
			`<b>Before.</b> The client's situation in their own words, including the metric that hurt.<br><br>` +
			`<b>What changed.</b> The intervention, told as three decisions rather than a timeline.<br><br>` +
			`<b>After.</b> The numbers you provided, stated plainly, with the timeframe attached.<br><br>` +
			`<b>Why it worked.</b> One paragraph a prospect can recognize themselves in.`
	default:
		body = `<b>Generated result (MOCK)</b><br><br>A placeholder document built from your answers.`
	}

	resp := &entity.GenerateStepResponse{
		Blocks: []entity.GeneratedBlock{
			{Content: fmt.Sprintf("%s.", intro)},
			{Content: body, IsHTML: true},
		},
	}

	ctxzap.Info(ctx, "[MOCK] step result generated", zap.Int("block_count", len(resp.Blocks)))
	return resp, nil
}
