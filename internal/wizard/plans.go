package wizard

// Registered wizard names.
const (
	ProfileName   = "profile"
	OfferName     = "offer"
	CaseStudyName = "casestudy"
)

var plans = map[string]*Plan{
	ProfileName:   profilePlan,
	OfferName:     offerPlan,
	CaseStudyName: caseStudyPlan,
}

var profilePlan = &Plan{
	Name:  ProfileName,
	Title: "Ideal Client Profiler",
	Welcome: []string{
		"Welcome! I'm going to help you build a sharp profile of your ideal client.",
		"A few short questions, then I'll put the full profile together for you.",
	},
	Completion: "That's a wrap: your ideal client profile is ready. You can export it as PDF or DOCX whenever you like.",
	Steps: []Step{
		{
			Number: 1, Key: "collect-name", Title: "Your name", Action: "name",
			Kind: StepKindInput, IsName: true,
			Fields: []Field{
				{Key: "name", Prompt: "First things first — what's your name?", MinLen: 2},
			},
		},
		{
			Number: 2, Key: "business", Title: "Your business", Action: "business",
			Kind: StepKindInput,
			Fields: []Field{
				{
					Key:    "business",
					Prompt: "Tell me about your business. What do you sell, and how long have you been at it?",
					MinLen: 10,
					Examples: []string{
						"I run a copywriting studio for SaaS companies, four years in.",
						"We sell an online course teaching photographers how to price their work.",
					},
				},
			},
		},
		{
			Number: 3, Key: "audience", Title: "Current customers", Action: "audience",
			Kind: StepKindInput,
			Fields: []Field{
				{
					Key:    "audience",
					Prompt: "Describe the people who buy from you today. Who are they, and how do they find you?",
					MinLen: 10,
				},
			},
		},
		{
			Number: 4, Key: "challenges", Title: "Client challenges", Action: "challenges",
			Kind: StepKindInput,
			Fields: []Field{
				{Key: "challenge-0", Prompt: "What is the single biggest problem your ideal client is struggling with?", MinLen: 5},
				{Key: "challenge-1", Prompt: "What else keeps them up at night?", MinLen: 5},
				{Key: "challenge-2", Prompt: "And one more: what have they already tried that didn't work?", MinLen: 5},
			},
			Categories: []Category{
				{
					Key:       "challenge-extra",
					GateKey:   "ask-more-challenges",
					AskPrompt: "Any more challenges worth noting? (yes/no)",
					Prompt:    "Go ahead, describe the next challenge.",
					MinLen:    5,
				},
			},
			Trailing: []Field{
				{
					Key:      "notes",
					Prompt:   "Anything else about your ideal client I should know? You can skip this one.",
					Optional: true,
				},
			},
		},
		{
			Number: 5, Key: "generate-profile", Title: "Profile", Action: "generate-profile",
			Kind: StepKindGenerate,
		},
	},
}

var offerPlan = &Plan{
	Name:  OfferName,
	Title: "Offer Refiner",
	Welcome: []string{
		"Let's refine your offer until it's impossible to ignore.",
		"I'll walk you through the core components, bonuses, guarantees and pricing, then assemble the whole stack.",
	},
	Completion: "All done! Your refined offer is ready. Export it or keep iterating.",
	Steps: []Step{
		{
			Number: 1, Key: "collect-name", Title: "Your name", Action: "name",
			Kind: StepKindInput, IsName: true,
			Fields: []Field{
				{Key: "name", Prompt: "Before we dig in, what's your name?", MinLen: 2},
			},
		},
		{
			Number: 2, Key: "product", Title: "The product", Action: "product",
			Kind: StepKindInput,
			Fields: []Field{
				{
					Key:    "product",
					Prompt: "Describe the product or service you want to refine.",
					MinLen: 10,
				},
			},
		},
		{
			Number: 3, Key: "outcome", Title: "The outcome", Action: "outcome",
			Kind: StepKindInput,
			Fields: []Field{
				{
					Key:    "outcome",
					Prompt: "What is the number one outcome a buyer gets from it?",
					MinLen: 5,
				},
			},
		},
		{
			Number: 4, Key: "value-stack", Title: "Value stack", Action: "value-stack",
			Kind: StepKindInput,
			Fields: []Field{
				{Key: "component-0", Prompt: "List the first core component of your offer, the main thing buyers receive.", MinLen: 3},
				{Key: "component-1", Prompt: "What's the second component?", MinLen: 3},
				{Key: "component-2", Prompt: "And the third component?", MinLen: 3},
			},
			Categories: []Category{
				{
					Key:       "bonus",
					GateKey:   "ask-more-bonuses",
					AskPrompt: "Would you like to add a bonus to sweeten the deal? (yes/no)",
					Prompt:    "Describe the bonus.",
					MinLen:    3,
				},
				{
					Key:       "guarantee",
					GateKey:   "ask-more-guarantees",
					AskPrompt: "Do you want to add a guarantee that removes the risk? (yes/no)",
					Prompt:    "Describe the guarantee.",
					MinLen:    3,
				},
			},
			Trailing: []Field{
				{
					Key:      "stack-notes",
					Prompt:   "Any constraints or notes on the stack? Feel free to skip.",
					Optional: true,
				},
			},
		},
		{
			Number: 5, Key: "price", Title: "Pricing", Action: "price",
			Kind: StepKindInput,
			Fields: []Field{
				{Key: "price", Prompt: "What price point are you planning, and is it one-time or recurring?", MinLen: 2},
			},
		},
		{
			Number: 6, Key: "generate-offer", Title: "Refined offer", Action: "generate-offer",
			Kind: StepKindGenerate,
		},
	},
}

var caseStudyPlan = &Plan{
	Name:  CaseStudyName,
	Title: "Case Study Writer",
	Welcome: []string{
		"Let's turn one client win into a case study you can publish.",
	},
	Completion: "Your case study is ready. Give it a read, then export it in the format you need.",
	Steps: []Step{
		{
			Number: 1, Key: "collect-name", Title: "Your name", Action: "name",
			Kind: StepKindInput, IsName: true,
			Fields: []Field{
				{Key: "name", Prompt: "Quick one to start: what's your name?", MinLen: 2},
			},
		},
		{
			Number: 2, Key: "story", Title: "The story", Action: "story",
			Kind: StepKindInput,
			Fields: []Field{
				{
					Key:    "story",
					Prompt: "Walk me through the client story: where they started, what you did together, and where they ended up.",
					MinLen: 30,
				},
			},
		},
		{
			Number: 3, Key: "metrics", Title: "The numbers", Action: "metrics",
			Kind: StepKindInput,
			Fields: []Field{
				{Key: "metric-0", Prompt: "Give me the headline result, with a number if you have one.", MinLen: 3},
				{Key: "metric-1", Prompt: "One more measurable result?", MinLen: 3},
			},
			Categories: []Category{
				{
					Key:       "metric-extra",
					GateKey:   "ask-more-metrics",
					AskPrompt: "Got another metric to include? (yes/no)",
					Prompt:    "Great, what's the next metric?",
					MinLen:    3,
				},
			},
		},
		{
			Number: 4, Key: "tone", Title: "Tone", Action: "tone",
			Kind: StepKindInput,
			Fields: []Field{
				{Key: "tone", Prompt: "What tone should the write-up take? For example: punchy, formal, conversational.", MinLen: 3},
			},
		},
		{
			Number: 5, Key: "generate-casestudy", Title: "Case study", Action: "generate-casestudy",
			Kind: StepKindGenerate,
		},
	},
}
