package core

import "time"

// SessionState is the lifecycle state of one analysis session.
type SessionState string

const (
	StateCreated   SessionState = "created"
	StateStreaming SessionState = "streaming"
	StateCompleted SessionState = "completed"
	StateError     SessionState = "error"
	StateCancelled SessionState = "cancelled"
)

// IsTerminal reports whether the state is final. Terminal sessions are
// immutable.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateCancelled:
		return true
	}
	return false
}

// ExtractionMethod records how the predicted grids were recovered from the
// model's raw text.
type ExtractionMethod string

const (
	// ExtractionDirect means a typed prediction field was present.
	ExtractionDirect ExtractionMethod = "direct"

	// ExtractionFreeText means grid-shaped arrays were recovered by
	// scanning free text.
	ExtractionFreeText ExtractionMethod = "free_text"
)

// PredictionValidation scores a completed session's answer against the
// puzzle's expected outputs. Predicted and expected grids are matched by
// position, never by content.
type PredictionValidation struct {
	Grids          []Grid           `json:"grids"`
	PerTestCorrect []bool           `json:"per_test_correct"`
	Accuracy       float64          `json:"accuracy"`
	Method         ExtractionMethod `json:"method"`
}

// AllCorrect reports whether every test case was predicted exactly.
func (v *PredictionValidation) AllCorrect() bool {
	if len(v.PerTestCorrect) == 0 {
		return false
	}
	for _, ok := range v.PerTestCorrect {
		if !ok {
			return false
		}
	}
	return true
}

// AnalysisRecord is the finished output of one session, handed to the
// result store. A failed validation keeps the raw text; callers always get
// the model's output even when structured extraction fails.
type AnalysisRecord struct {
	SessionID string          `json:"session_id"`
	Request   AnalysisRequest `json:"request"`
	State     SessionState    `json:"state"`

	RawText       string `json:"raw_text"`
	ReasoningText string `json:"reasoning_text,omitempty"`

	Validation *PredictionValidation `json:"validation,omitempty"`
	Usage      TokenUsage            `json:"usage"`

	// ErrorCategory/ErrorMessage are set when State is error.
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`

	// Warnings carries best-effort failures (e.g. persistence) that do not
	// invalidate the result.
	Warnings []string `json:"warnings,omitempty"`

	// RecordID is assigned by the result store on save.
	RecordID string `json:"record_id,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}
