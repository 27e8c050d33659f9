package models

// TopicType distinguishes single-shot execution from multi-turn coaching.
type TopicType string

const (
	TopicTypeSingleShot   TopicType = "single_shot"
	TopicTypeConversation TopicType = "conversation_coaching"
)

// IsValid checks if the topic type is a known value.
func (t TopicType) IsValid() bool {
	return t == TopicTypeSingleShot || t == TopicTypeConversation
}

// TopicCategory groups topics for catalogue listings.
type TopicCategory string

const (
	CategoryOnboarding        TopicCategory = "onboarding"
	CategoryStrategicPlanning TopicCategory = "strategic_planning"
	CategoryOperations        TopicCategory = "operations"
	CategoryAnalysis          TopicCategory = "analysis"
	CategoryInsights          TopicCategory = "insights"
	CategoryCoaching          TopicCategory = "coaching"
)

// IsValid checks if the category is a known value.
func (c TopicCategory) IsValid() bool {
	switch c {
	case CategoryOnboarding, CategoryStrategicPlanning, CategoryOperations,
		CategoryAnalysis, CategoryInsights, CategoryCoaching:
		return true
	default:
		return false
	}
}

// ParamSource names the upstream data category a parameter is extracted from.
type ParamSource string

const (
	SourceRequest      ParamSource = "request"
	SourceOnboarding   ParamSource = "onboarding"
	SourceGoal         ParamSource = "goal"
	SourceGoals        ParamSource = "goals"
	SourceMeasure      ParamSource = "measure"
	SourceMeasures     ParamSource = "measures"
	SourceAction       ParamSource = "action"
	SourceIssue        ParamSource = "issue"
	SourceStrategies   ParamSource = "strategies"
	SourceConversation ParamSource = "conversation"
	SourceWebsite      ParamSource = "website"
	SourceComputed     ParamSource = "computed"
)

// IsValid checks if the source is a known value.
func (s ParamSource) IsValid() bool {
	switch s {
	case SourceRequest, SourceOnboarding, SourceGoal, SourceGoals,
		SourceMeasure, SourceMeasures, SourceAction, SourceIssue,
		SourceStrategies, SourceConversation, SourceWebsite, SourceComputed:
		return true
	default:
		return false
	}
}

// IsFetched reports whether the source requires a round-trip to an external
// collaborator during enrichment. Request, conversation, and computed values
// are resolved in-process.
func (s ParamSource) IsFetched() bool {
	switch s {
	case SourceRequest, SourceConversation, SourceComputed:
		return false
	default:
		return true
	}
}

// TemplateRole identifies which prompt template of a topic to load.
type TemplateRole string

const (
	RoleSystem     TemplateRole = "system"
	RoleUser       TemplateRole = "user"
	RoleInitiation TemplateRole = "initiation"
	RoleResume     TemplateRole = "resume"
)

// IsValid checks if the template role is a known value.
func (r TemplateRole) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleInitiation, RoleResume:
		return true
	default:
		return false
	}
}
