package core

import "time"

// StreamEventType discriminates the events a session can emit.
type StreamEventType string

const (
	// EventStarted indicates the provider call has been admitted and opened.
	EventStarted StreamEventType = "started"

	// EventTextDelta carries a partial chunk of answer text.
	EventTextDelta StreamEventType = "text_delta"

	// EventReasoningDelta carries a partial chunk of reasoning text, for
	// providers that expose it.
	EventReasoningDelta StreamEventType = "reasoning_delta"

	// EventCompleted is terminal: the final text, token usage and (for
	// stateful providers) the continuation handle are attached.
	EventCompleted StreamEventType = "completed"

	// EventError is terminal and carries a sanitized message, never raw
	// credentials.
	EventError StreamEventType = "error"

	// EventCancelled is terminal and indicates an explicit caller cancel.
	EventCancelled StreamEventType = "cancelled"
)

// IsTerminal reports whether the event type ends a session's stream.
func (t StreamEventType) IsTerminal() bool {
	switch t {
	case EventCompleted, EventError, EventCancelled:
		return true
	}
	return false
}

// TokenUsage counts tokens for one session. When automatic continuation
// occurs the counters are cumulative across all continuation calls.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning,omitempty"`
}

// Total returns the sum of all counted tokens.
func (u TokenUsage) Total() int {
	return u.Input + u.Output + u.Reasoning
}

// Add accumulates another usage sample into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Reasoning += other.Reasoning
}

// StreamEvent is one normalized event in a session's stream. Events are
// strictly ordered per session; no ordering holds across sessions.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	SessionID string          `json:"session_id"`
	Sequence  int             `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`

	// Delta is set for text_delta and reasoning_delta events.
	Delta string `json:"delta,omitempty"`

	// Final fields, set on completed.
	Text               string      `json:"text,omitempty"`
	Usage              *TokenUsage `json:"usage,omitempty"`
	ContinuationHandle string      `json:"continuation_handle,omitempty"`

	// Error fields, set on error. Message is sanitized.
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// NewStreamEvent creates an event stamped with the current time. Sequence is
// assigned by the session that appends it.
func NewStreamEvent(eventType StreamEventType, sessionID string) StreamEvent {
	return StreamEvent{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}
