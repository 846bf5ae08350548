package wizard

import "strings"

// Gate returns the category whose yes/no gate key is key.
func (s *Step) Gate(key string) (*Category, bool) {
	for i := range s.Categories {
		if s.Categories[i].GateKey == key {
			return &s.Categories[i], true
		}
	}
	return nil, false
}

// CategoryOf returns the category a slot key like "bonus-2" belongs to.
func (s *Step) CategoryOf(key string) (*Category, bool) {
	for i := range s.Categories {
		c := &s.Categories[i]
		rest, ok := strings.CutPrefix(key, c.Key+"-")
		if !ok || rest == "" {
			continue
		}
		if isDigits(rest) {
			return c, true
		}
	}
	return nil, false
}

// Lookup resolves any sub-question key of the step to its field spec.
// Category slots resolve to a synthesized field carrying the category's
// prompt and minimum length; gate keys are not fields and do not resolve.
func (s *Step) Lookup(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	for _, f := range s.Trailing {
		if f.Key == key {
			return f, true
		}
	}
	if c, ok := s.CategoryOf(key); ok {
		return Field{Key: key, Prompt: c.Prompt, MinLen: c.MinLen, Optional: true}, true
	}
	return Field{}, false
}

// PromptFor returns the text to show when key is the active sub-question,
// covering fields, trailing fields, category slots, and gates.
func (s *Step) PromptFor(key string) (string, bool) {
	if c, ok := s.Gate(key); ok {
		return c.AskPrompt, true
	}
	if f, ok := s.Lookup(key); ok {
		return f.Prompt, true
	}
	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
