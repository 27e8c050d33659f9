package config

// Stage is the deployment environment tag carried on published events.
type Stage string

const (
	StageDev     Stage = "dev"
	StageStaging Stage = "staging"
	StageProd    Stage = "prod"
)

// IsValid checks if the stage is a known value.
func (s Stage) IsValid() bool {
	return s == StageDev || s == StageStaging || s == StageProd
}

// ProviderType selects the LLM backend implementation for a model code.
type ProviderType string

const (
	// ProviderTypeManagedAnthropic is Anthropic models served through the
	// managed runtime (Bedrock Converse).
	ProviderTypeManagedAnthropic ProviderType = "anthropic_on_managed_runtime"
	// ProviderTypeOpenAI is the OpenAI chat completions API.
	ProviderTypeOpenAI ProviderType = "openai"
	// ProviderTypeAnthropic is the Anthropic Messages API called directly.
	ProviderTypeAnthropic ProviderType = "anthropic"
	// ProviderTypeLocal is an OpenAI-compatible local runtime.
	ProviderTypeLocal ProviderType = "local"
)

// IsValid checks if the provider type is a known value.
func (t ProviderType) IsValid() bool {
	switch t {
	case ProviderTypeManagedAnthropic, ProviderTypeOpenAI, ProviderTypeAnthropic, ProviderTypeLocal:
		return true
	default:
		return false
	}
}
