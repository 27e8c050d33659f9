package registry

import (
	"time"

	"github.com/tractionlabs/aigateway/pkg/models"
)

// Default generation settings applied to catalogue entries unless the
// entry (or a runtime override) says otherwise.
const (
	defaultModelCode   = "coach-std"
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048
	defaultIdleTimeout = 30 * time.Minute
)

func singleShotRuntime() RuntimeConfig {
	return RuntimeConfig{
		ModelCode:   defaultModelCode,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
}

func conversationRuntime(maxTurns int) RuntimeConfig {
	return RuntimeConfig{
		ModelCode:   defaultModelCode,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		IdleTimeout: defaultIdleTimeout,
		MaxTurns:    maxTurns,
	}
}

// BuiltinTopics returns the production topic catalogue.
func BuiltinTopics() []Topic {
	return []Topic{
		{
			ID:            "niche_review",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryOnboarding,
			Description:   "Review the business niche and suggest sharper positioning.",
			ResponseModel: "NicheReviewResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "current_value", Source: models.SourceRequest, Required: true},
				{Name: "industry", Source: models.SourceOnboarding, Path: "profile.industry", Default: "unspecified"},
				{Name: "business_type", Source: models.SourceOnboarding, Path: "profile.business_type", Default: "unspecified"},
			},
		},
		{
			ID:            "website_scan",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryAnalysis,
			Description:   "Assess the company website's messaging and positioning.",
			ResponseModel: "WebsiteScanResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "url", Source: models.SourceRequest, Required: true},
				{Name: "site_content", Source: models.SourceWebsite, Path: "content", Required: true},
				{Name: "site_title", Source: models.SourceWebsite, Path: "title", Default: ""},
			},
		},
		{
			ID:            "alignment_check",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryStrategicPlanning,
			Description:   "Check a goal against the company's vision and purpose.",
			ResponseModel: "AlignmentCheckResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "goal_id", Source: models.SourceRequest, Required: true},
				{Name: "goal_title", Source: models.SourceGoal, Path: "title", Required: true},
				{Name: "goal_description", Source: models.SourceGoal, Path: "description", Default: ""},
				{Name: "strategies_overview", Source: models.SourceStrategies, Path: "strategies", Transform: "join_values", Default: "none recorded"},
				{Name: "vision", Source: models.SourceOnboarding, Path: "foundation.vision", Default: "not set"},
				{Name: "purpose", Source: models.SourceOnboarding, Path: "foundation.purpose", Default: "not set"},
			},
		},
		{
			ID:            "measures_insight",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryInsights,
			Description:   "Surface insights from the measures scorecard.",
			ResponseModel: "MeasuresInsightResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "measures_summary", Source: models.SourceMeasures, Path: "measures", Required: true, Transform: "summarize_measures"},
				{Name: "pillars", Source: models.SourceOnboarding, Path: "foundation.pillars", Transform: "join_values", Default: "not set"},
			},
		},
		{
			ID:            "issue_analysis",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryOperations,
			Description:   "Analyse a logged issue for root causes and next moves.",
			ResponseModel: "IssueAnalysisResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "issue_id", Source: models.SourceRequest, Required: true},
				{Name: "issue_title", Source: models.SourceIssue, Path: "title", Required: true},
				{Name: "issue_details", Source: models.SourceIssue, Path: "details", Default: ""},
			},
		},
		{
			ID:            "action_review",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryOperations,
			Description:   "Review an action item's progress and blockers.",
			ResponseModel: "ActionReviewResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "action_id", Source: models.SourceRequest, Required: true},
				{Name: "action_title", Source: models.SourceAction, Path: "title", Required: true},
				{Name: "action_status", Source: models.SourceAction, Path: "status", Default: "unknown"},
			},
		},
		{
			ID:            "quarterly_focus",
			Type:          models.TopicTypeSingleShot,
			Category:      models.CategoryStrategicPlanning,
			Description:   "Propose the focus areas for the coming quarter.",
			ResponseModel: "QuarterlyFocusResult",
			Active:        true,
			Runtime:       singleShotRuntime(),
			Params: []ParameterDef{
				{Name: "goals_overview", Source: models.SourceGoals, Path: "goals", Required: true, Transform: "join_values"},
				{Name: "measures_summary", Source: models.SourceMeasures, Path: "measures", Transform: "summarize_measures", Default: "no measures recorded"},
				{Name: "focus_summary", Source: models.SourceComputed, Inputs: []string{"goals_overview", "measures_summary"}},
			},
		},
		{
			ID:            "core_values",
			Type:          models.TopicTypeConversation,
			Category:      models.CategoryCoaching,
			Description:   "Guided discovery of the company's core values.",
			ResponseModel: "CoreValuesResult",
			Active:        true,
			Runtime:       conversationRuntime(10),
			Params: []ParameterDef{
				{Name: "conversation_summary", Source: models.SourceConversation},
				{Name: "industry", Source: models.SourceOnboarding, Path: "profile.industry", Default: "unspecified"},
				{Name: "team_size", Source: models.SourceOnboarding, Path: "profile.team_size", Default: "unknown"},
			},
		},
		{
			ID:            "purpose_discovery",
			Type:          models.TopicTypeConversation,
			Category:      models.CategoryCoaching,
			Description:   "Coaching conversation to articulate the company's purpose.",
			ResponseModel: "PurposeResult",
			Active:        true,
			Runtime:       conversationRuntime(8),
			Params: []ParameterDef{
				{Name: "conversation_summary", Source: models.SourceConversation},
				{Name: "industry", Source: models.SourceOnboarding, Path: "profile.industry", Default: "unspecified"},
			},
		},
		{
			ID:            "vision_casting",
			Type:          models.TopicTypeConversation,
			Category:      models.CategoryCoaching,
			Description:   "Coaching conversation to cast a long-range vision.",
			ResponseModel: "VisionResult",
			Active:        true,
			Runtime:       conversationRuntime(12),
			Params: []ParameterDef{
				{Name: "conversation_summary", Source: models.SourceConversation},
				{Name: "purpose", Source: models.SourceOnboarding, Path: "foundation.purpose", Default: "not set"},
			},
		},
		{
			// Kept in the catalogue but gated off; lookups must fail
			// with TopicInactive, not TopicNotFound.
			ID:          "pricing_review",
			Type:        models.TopicTypeSingleShot,
			Category:    models.CategoryAnalysis,
			Description: "Pricing review (not yet launched).",
			Active:      false,
			Runtime:     singleShotRuntime(),
		},
	}
}
