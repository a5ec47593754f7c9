package core

import "time"

// ReasoningEffort controls how much internal reasoning a provider may spend.
// Ignored by providers without reasoning support.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// ReasoningVerbosity controls how much of the reasoning a provider surfaces.
type ReasoningVerbosity string

const (
	VerbosityLow    ReasoningVerbosity = "low"
	VerbosityMedium ReasoningVerbosity = "medium"
	VerbosityHigh   ReasoningVerbosity = "high"
)

// DefaultMaxContinuations bounds automatic continuation calls issued when a
// stateful provider truncates output mid-stream.
const DefaultMaxContinuations = 3

// AnalysisConfig is the configuration bag attached to an analysis request.
type AnalysisConfig struct {
	// Temperature for sampling; nil leaves the provider default. Providers
	// may ignore it.
	Temperature *float64 `json:"temperature,omitempty"`

	// PromptTemplateID selects a registered prompt template. Mutually
	// exclusive with CustomInstruction; if both are absent the default
	// template is used.
	PromptTemplateID string `json:"prompt_template_id,omitempty"`

	// CustomInstruction replaces templated prompt construction entirely.
	CustomInstruction string `json:"custom_instruction,omitempty"`

	ReasoningEffort    ReasoningEffort    `json:"reasoning_effort,omitempty"`
	ReasoningVerbosity ReasoningVerbosity `json:"reasoning_verbosity,omitempty"`

	// OmitGroundTruth strips expected test outputs from what is sent to the
	// provider. Used for solver-mode evaluation.
	OmitGroundTruth bool `json:"omit_ground_truth,omitempty"`

	// MaxContinuations bounds automatic truncation recovery. Zero means
	// DefaultMaxContinuations.
	MaxContinuations int `json:"max_continuations,omitempty"`
}

// ContinuationBudget returns the effective auto-continuation limit.
func (c AnalysisConfig) ContinuationBudget() int {
	if c.MaxContinuations > 0 {
		return c.MaxContinuations
	}
	return DefaultMaxContinuations
}

// Validate checks the configuration for internal consistency.
func (c AnalysisConfig) Validate() error {
	if c.PromptTemplateID != "" && c.CustomInstruction != "" {
		return ErrValidation(CodePromptConflict,
			"prompt_template_id and custom_instruction are mutually exclusive")
	}
	switch c.ReasoningEffort {
	case "", EffortLow, EffortMedium, EffortHigh:
	default:
		return ErrValidation(CodeInvalidConfig,
			"reasoning_effort must be one of low, medium, high")
	}
	switch c.ReasoningVerbosity {
	case "", VerbosityLow, VerbosityMedium, VerbosityHigh:
	default:
		return ErrValidation(CodeInvalidConfig,
			"reasoning_verbosity must be one of low, medium, high")
	}
	if c.MaxContinuations < 0 {
		return ErrValidation(CodeInvalidConfig, "max_continuations must be >= 0")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return ErrValidation(CodeInvalidConfig, "temperature must be between 0 and 2")
	}
	return nil
}

// AnalysisRequest identifies one analysis attempt: a puzzle, a model, a
// provider, and a configuration bag. Immutable once submitted.
type AnalysisRequest struct {
	PuzzleID   string         `json:"puzzle_id"`
	ModelID    string         `json:"model_id"`
	ProviderID string         `json:"provider_id"`
	Config     AnalysisConfig `json:"config"`

	// Timeout bounds the provider call. Zero means the provider's
	// configured default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Validate checks the request for completeness.
func (r AnalysisRequest) Validate() error {
	if r.PuzzleID == "" {
		return ErrValidation(CodeInvalidPuzzle, "puzzle_id is required")
	}
	if r.ModelID == "" {
		return ErrValidation(CodeMissingModel, "model_id is required")
	}
	if r.ProviderID == "" {
		return ErrValidation(CodeMissingProvider, "provider_id is required")
	}
	return r.Config.Validate()
}
