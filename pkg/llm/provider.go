package llm

import (
	"context"
)

// Provider is implemented by each upstream model vendor.
type Provider interface {
	// ModelName returns the provider tag ("cohere", "claude", "deepseek").
	// The tag is recorded as the model field of usage summaries.
	ModelName() string

	// Generate produces a completion for prompt. The model, temperature and
	// token ceiling come from cfg; each provider reads the model name from
	// its own ModelConfig field.
	Generate(ctx context.Context, prompt string, cfg *ModelConfig) (*GenerationResult, error)
}

// ModelConfig selects the model and sampling parameters for one task.
// It carries one model name per vendor so the same block serves whichever
// provider is active.
type ModelConfig struct {
	// Cohere is the model used when the Cohere provider is active.
	Cohere string `yaml:"cohere" json:"cohere"`

	// Claude is the model used when the Claude provider is active.
	Claude string `yaml:"claude" json:"claude"`

	// Deepseek is the model used when the DeepSeek provider is active.
	Deepseek string `yaml:"deepseek" json:"deepseek"`

	// Temperature is the sampling temperature passed straight through.
	Temperature float32 `yaml:"temperature" json:"temperature"`

	// MaxTokens caps the completion length.
	MaxTokens uint32 `yaml:"max_tokens" json:"max_tokens"`
}

// ModelsConfig groups the model settings for each pipeline task.
type ModelsConfig struct {
	// SentenceToJSON drives JSON generation and conversational replies.
	SentenceToJSON ModelConfig `yaml:"sentence_to_json" json:"sentence_to_json"`

	// FindEndpoint drives intent classification and endpoint discovery.
	FindEndpoint ModelConfig `yaml:"find_endpoint" json:"find_endpoint"`

	// SemanticMatch drives the semantic field-matching pass.
	SemanticMatch ModelConfig `yaml:"semantic_match" json:"semantic_match"`

	// Default serves every task without a dedicated block: intent
	// classification, field matching, follow-up extraction, help and
	// language detection.
	Default ModelConfig `yaml:"default" json:"default"`
}

// For returns the block for a named task. Unknown task names resolve to
// the Default block.
func (m ModelsConfig) For(task string) ModelConfig {
	switch task {
	case "sentence_to_json":
		return m.SentenceToJSON
	case "find_endpoint":
		return m.FindEndpoint
	case "semantic_match":
		return m.SemanticMatch
	default:
		return m.Default
	}
}

// UsageInfo reports token consumption for one or more model calls.
type UsageInfo struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
	TotalTokens  uint32 `json:"total_tokens"`

	// Model is the provider tag (or a synthetic tag such as
	// "progressive_matching" for phases that skip the model entirely).
	Model string `json:"model"`

	// Estimated is true when the counts came from the local estimator
	// rather than the vendor API.
	Estimated bool `json:"estimated"`
}

// Add returns the sum of two usage reports. The model tag and the
// estimated flag of the receiver win; Estimated is sticky once set on
// either side since a partially estimated total is still an estimate.
func (u UsageInfo) Add(other UsageInfo) UsageInfo {
	return UsageInfo{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
		Model:        u.Model,
		Estimated:    u.Estimated || other.Estimated,
	}
}

// GenerationResult is the provider output for one prompt.
type GenerationResult struct {
	// Content is the raw completion text.
	Content string

	// Usage describes the tokens spent producing Content.
	Usage UsageInfo
}
