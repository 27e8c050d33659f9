package schema

// Built-in response models for the shipped topic catalogue. These are
// compiled once at startup through NewBuiltinRegistry.

func intp(v int) *int         { return &v }
func floatp(v float64) *float64 { return &v }

func str(desc string) *Field {
	return &Field{Kind: KindString, Description: desc, Required: true, MinLength: intp(1)}
}

func strList(desc string) *Field {
	return &Field{
		Kind:        KindArray,
		Description: desc,
		Required:    true,
		Items:       &Field{Kind: KindString, MinLength: intp(1)},
	}
}

func obj(fields map[string]*Field) *Field {
	return &Field{Kind: KindObject, Required: true, Fields: fields}
}

// BuiltinModels returns the production response model catalogue.
func BuiltinModels() []Model {
	return []Model{
		{
			Name: "NicheReviewResult",
			Root: obj(map[string]*Field{
				"suggestions": {
					Kind:        KindArray,
					Description: "Exactly three niche positioning suggestions.",
					Required:    true,
					MinItems:    intp(3),
					MaxItems:    intp(3),
					Items: obj(map[string]*Field{
						"text":      str("The suggested niche statement."),
						"reasoning": str("Why this niche fits the business."),
					}),
				},
			}),
		},
		{
			Name: "WebsiteScanResult",
			Root: obj(map[string]*Field{
				"summary":         str("One-paragraph assessment of the site."),
				"strengths":       strList("What the site does well."),
				"weaknesses":      strList("What undermines the site's message."),
				"recommendations": strList("Concrete improvements, most impactful first."),
			}),
		},
		{
			Name: "AlignmentCheckResult",
			Root: obj(map[string]*Field{
				"aligned": {Kind: KindBoolean, Required: true,
					Description: "Whether the goal aligns with vision and purpose."},
				"score": {Kind: KindInteger, Required: true,
					Minimum:     floatp(0),
					Maximum:     floatp(100),
					Description: "Alignment score from 0 to 100."},
				"rationale": str("Explanation of the score."),
				"risks":     strList("Risks if the goal is pursued as stated."),
			}),
		},
		{
			Name: "MeasuresInsightResult",
			Root: obj(map[string]*Field{
				"summary": str("Overall read on the scorecard."),
				"insights": {
					Kind:     KindArray,
					Required: true,
					MinItems: intp(1),
					Items: obj(map[string]*Field{
						"observation": str("What the numbers show."),
						"implication": str("What it means for the business."),
					}),
				},
			}),
		},
		{
			Name: "IssueAnalysisResult",
			Root: obj(map[string]*Field{
				"root_causes":         strList("Likely root causes of the issue."),
				"recommended_actions": strList("Actions to resolve the issue."),
				"severity": {Kind: KindEnum, Required: true,
					Enum:        []string{"low", "medium", "high"},
					Description: "How urgently the issue needs attention."},
			}),
		},
		{
			Name: "ActionReviewResult",
			Root: obj(map[string]*Field{
				"assessment": str("Evaluation of the action's progress."),
				"blockers":   strList("What is in the way."),
				"next_steps": strList("What to do next."),
			}),
		},
		{
			Name: "QuarterlyFocusResult",
			Root: obj(map[string]*Field{
				"summary": str("The quarter in one paragraph."),
				"focus_areas": {
					Kind:        KindArray,
					Description: "One to three focus areas for the quarter.",
					Required:    true,
					MinItems:    intp(1),
					MaxItems:    intp(3),
					Items: obj(map[string]*Field{
						"title": str("Short name for the focus area."),
						"why":   str("Why it matters this quarter."),
					}),
				},
			}),
		},
		{
			Name: "CoreValuesResult",
			Root: obj(map[string]*Field{
				"values": {
					Kind:        KindArray,
					Description: "Three to seven discovered core values.",
					Required:    true,
					MinItems:    intp(3),
					MaxItems:    intp(7),
					Items: obj(map[string]*Field{
						"value":       str("The core value, a short phrase."),
						"description": str("What living this value looks like."),
					}),
				},
			}),
		},
		{
			Name: "PurposeResult",
			Root: obj(map[string]*Field{
				"purpose":   str("The purpose statement."),
				"narrative": str("The story behind the purpose."),
			}),
		},
		{
			Name: "VisionResult",
			Root: obj(map[string]*Field{
				"statement": str("The vision statement."),
				"timeframe": str("The horizon the vision targets."),
				"themes":    strList("Recurring themes the vision builds on."),
			}),
		},
		{
			Name: "CoachTurn",
			Root: obj(map[string]*Field{
				"message": str("The coach's reply to the user."),
				"is_final": {Kind: KindBoolean, Required: true,
					Description: "True when the coach considers the conversation complete."},
			}),
		},
	}
}
