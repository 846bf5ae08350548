package entity

// GenerateStepRequest asks the generation service for the result blocks of
// one generate step, given everything the user answered so far.
type GenerateStepRequest struct {
	SessionID string            `json:"session_id"`
	Wizard    string            `json:"wizard"`
	StepKey   string            `json:"step_key"`
	UserName  string            `json:"user_name,omitempty"`
	Answers   map[string]string `json:"answers"`
	Order     []string          `json:"order,omitempty"`
}

// GeneratedBlock is one assistant message worth of generated content.
type GeneratedBlock struct {
	Content string `json:"content"`
	IsHTML  bool   `json:"is_html,omitempty"`
}

type GenerateStepResponse struct {
	Blocks []GeneratedBlock `json:"blocks"`
}
