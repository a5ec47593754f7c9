// Package provider normalizes heterogeneous LLM wire protocols into a single
// internal event stream. Two protocol variants exist: a stateful
// reasoning-capable one that returns an opaque continuation handle, and a
// stateless chat-style one that resends the full conversation every call.
package provider

import (
	"context"
	"time"

	"github.com/gridprobe/gridprobe/internal/core"
)

// Capabilities describes what a provider protocol supports. Callers select
// behavior on capabilities, never on concrete adapter types.
type Capabilities struct {
	SupportsContinuation bool
	SupportsReasoning    bool
}

// Message is one turn of a conversation, used by the stateless protocol to
// resend accumulated history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Call is one provider invocation.
type Call struct {
	Model string

	// Prompt is the fully assembled instruction for a fresh conversation.
	Prompt string

	// History carries prior turns for the stateless protocol's
	// "continuation": everything is resent plus the new instruction.
	History []Message

	// PriorHandle resumes a stateful provider's conversation. Ignored by
	// adapters without continuation support.
	PriorHandle string

	// Instruction is the new user message for a continuation or retry call.
	Instruction string

	Temperature        *float64
	ReasoningEffort    core.ReasoningEffort
	ReasoningVerbosity core.ReasoningVerbosity

	// MaxContinuations bounds automatic truncation recovery for the
	// stateful protocol.
	MaxContinuations int
}

// Completion is the final outcome of a successful call, including any
// automatic continuations that were needed.
type Completion struct {
	Text      string
	Reasoning string

	// Usage is cumulative across automatic continuation calls.
	Usage core.TokenUsage

	// Handle is the continuation handle for stateful providers, empty
	// otherwise.
	Handle string

	// Continuations is how many automatic continuation calls were issued.
	Continuations int

	// History is the conversation after this call, for stateless
	// follow-ups.
	History []Message
}

// EmitFunc receives partial output as it streams. kind is EventTextDelta or
// EventReasoningDelta.
type EmitFunc func(kind core.StreamEventType, delta string)

// Adapter is the single contract both wire protocols implement. Stream
// blocks until the call finishes, emitting deltas along the way; it returns
// either a completion or a classified error, never both.
type Adapter interface {
	// Name returns the provider id this adapter was configured for.
	Name() string

	// Capabilities returns the protocol's capability set.
	Capabilities() Capabilities

	// Stream opens the call and relays partial output through emit.
	Stream(ctx context.Context, call Call, emit EmitFunc) (*Completion, error)
}

// Settings configures one provider endpoint.
type Settings struct {
	Name            string
	BaseURL         string
	APIKeyEnv       string
	DefaultModel    string
	Timeout         time.Duration
	MaxOutputTokens int
}

// DefaultTimeout bounds a call when neither the request nor the settings
// carry one. Reasoning-heavy models routinely stream for tens of minutes.
const DefaultTimeout = 30 * time.Minute
