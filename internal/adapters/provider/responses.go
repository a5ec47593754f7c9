package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
)

// continuePrompt asks a stateful provider to resume output that was cut off
// by its output-token ceiling.
const continuePrompt = "Continue exactly where you left off. Do not repeat anything you already wrote."

// incompleteMaxTokens is the provider's reason string when a response was
// truncated by the output-token ceiling.
const incompleteMaxTokens = "max_output_tokens"

// ResponsesAdapter speaks the stateful responses protocol: the provider
// persists conversation state server-side and hands back an opaque response
// id that later calls chain onto. Truncated responses are resumed
// automatically, up to the call's continuation budget.
type ResponsesAdapter struct {
	caller *httpCaller
	logger *logging.Logger
}

func NewResponsesAdapter(settings Settings, logger *logging.Logger) *ResponsesAdapter {
	return &ResponsesAdapter{
		caller: newHTTPCaller(settings),
		logger: logger.WithProvider(settings.Name),
	}
}

func (a *ResponsesAdapter) Name() string { return a.caller.settings.Name }

func (a *ResponsesAdapter) Capabilities() Capabilities {
	return Capabilities{SupportsContinuation: true, SupportsReasoning: true}
}

// responsesRequest is the wire payload for one call.
type responsesRequest struct {
	Model              string             `json:"model"`
	Input              string             `json:"input"`
	PreviousResponseID string             `json:"previous_response_id,omitempty"`
	Stream             bool               `json:"stream"`
	Store              bool               `json:"store"`
	MaxOutputTokens    int                `json:"max_output_tokens,omitempty"`
	Temperature        *float64           `json:"temperature,omitempty"`
	Reasoning          *reasoningOptions  `json:"reasoning,omitempty"`
	Text               *verbosityOptions  `json:"text,omitempty"`
}

type reasoningOptions struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type verbosityOptions struct {
	Verbosity string `json:"verbosity,omitempty"`
}

// responseObject is the terminal response body carried by completed,
// incomplete and failed events.
type responseObject struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Usage *struct {
		InputTokens        int `json:"input_tokens"`
		OutputTokens       int `json:"output_tokens"`
		OutputTokensDetail struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"output_tokens_details"`
	} `json:"usage"`
}

// callOutcome is what one wire call produced.
type callOutcome struct {
	responseID string
	truncated  bool
	failed     *responseObject
	usage      core.TokenUsage
}

func (a *ResponsesAdapter) Stream(ctx context.Context, call Call, emit EmitFunc) (*Completion, error) {
	model := call.Model
	if model == "" {
		model = a.caller.settings.DefaultModel
	}

	input := call.Prompt
	prior := call.PriorHandle
	if prior != "" {
		// Resuming an earlier conversation: the new instruction is the
		// only input, everything else lives server-side.
		input = call.Instruction
		if input == "" {
			input = continuePrompt
		}
	}

	budget := call.MaxContinuations
	if budget < 0 {
		budget = 0
	}

	completion := &Completion{}
	var text, reasoning strings.Builder

	for {
		outcome, err := a.once(ctx, responsesRequest{
			Model:              model,
			Input:              input,
			PreviousResponseID: prior,
			Stream:             true,
			Store:              true,
			MaxOutputTokens:    a.caller.settings.MaxOutputTokens,
			Temperature:        call.Temperature,
			Reasoning:          reasoningFor(call),
			Text:               verbosityFor(call),
		}, &text, &reasoning, emit)
		if err != nil {
			return nil, err
		}

		completion.Usage.Add(outcome.usage)
		completion.Handle = outcome.responseID

		if outcome.failed != nil {
			return nil, a.failureError(outcome.failed)
		}
		if !outcome.truncated {
			break
		}
		if completion.Continuations >= budget {
			a.logger.Warn("continuation budget exhausted",
				"continuations", completion.Continuations, "model", model)
			return nil, core.ErrTruncatedOutput(completion.Continuations)
		}
		completion.Continuations++
		a.logger.Info("output truncated, continuing",
			"continuation", completion.Continuations, "handle", outcome.responseID)
		prior = outcome.responseID
		input = continuePrompt
	}

	completion.Text = text.String()
	completion.Reasoning = reasoning.String()
	return completion, nil
}

// once performs a single wire call, streaming deltas into the builders and
// through emit, and returns how the response ended.
func (a *ResponsesAdapter) once(ctx context.Context, req responsesRequest, text, reasoning *strings.Builder, emit EmitFunc) (*callOutcome, error) {
	body, err := a.caller.openStream(ctx, "/responses", req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	outcome := &callOutcome{}
	err = readSSE(ctx, body, func(ev sseEvent) error {
		switch ev.name {
		case "response.output_text.delta":
			var payload struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
				return core.ErrSchemaViolation(core.CodeMalformedPayload,
					"malformed text delta event").WithCause(err)
			}
			text.WriteString(payload.Delta)
			emit(core.EventTextDelta, payload.Delta)

		case "response.reasoning_summary_text.delta":
			var payload struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
				return core.ErrSchemaViolation(core.CodeMalformedPayload,
					"malformed reasoning delta event").WithCause(err)
			}
			reasoning.WriteString(payload.Delta)
			emit(core.EventReasoningDelta, payload.Delta)

		case "response.completed", "response.incomplete", "response.failed":
			var payload struct {
				Response responseObject `json:"response"`
			}
			if err := json.Unmarshal([]byte(ev.data), &payload); err != nil {
				return core.ErrSchemaViolation(core.CodeMalformedPayload,
					"malformed terminal event").WithCause(err)
			}
			resp := payload.Response
			outcome.responseID = resp.ID
			if resp.Usage != nil {
				outcome.usage = core.TokenUsage{
					Input:     resp.Usage.InputTokens,
					Output:    resp.Usage.OutputTokens,
					Reasoning: resp.Usage.OutputTokensDetail.ReasoningTokens,
				}
			}
			switch ev.name {
			case "response.incomplete":
				outcome.truncated = resp.IncompleteDetails != nil &&
					resp.IncompleteDetails.Reason == incompleteMaxTokens
				if !outcome.truncated {
					failed := resp
					outcome.failed = &failed
				}
			case "response.failed":
				failed := resp
				outcome.failed = &failed
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.responseID == "" {
		return nil, core.ErrSchemaViolation(core.CodeMalformedPayload,
			"stream ended without a terminal response event")
	}
	return outcome, nil
}

func (a *ResponsesAdapter) failureError(resp *responseObject) error {
	msg := "provider reported failure"
	if resp.Error != nil && resp.Error.Message != "" {
		msg = resp.Error.Message
	} else if resp.IncompleteDetails != nil {
		msg = fmt.Sprintf("response incomplete: %s", resp.IncompleteDetails.Reason)
	}
	if resp.Error != nil && strings.Contains(strings.ToLower(resp.Error.Code), "rate") {
		return core.ErrRateLimited(msg)
	}
	return core.ErrTransport(fmt.Sprintf("provider %s: %s", a.caller.settings.Name, msg))
}

func reasoningFor(call Call) *reasoningOptions {
	if call.ReasoningEffort == "" {
		return nil
	}
	return &reasoningOptions{Effort: string(call.ReasoningEffort), Summary: "auto"}
}

func verbosityFor(call Call) *verbosityOptions {
	if call.ReasoningVerbosity == "" {
		return nil
	}
	return &verbosityOptions{Verbosity: string(call.ReasoningVerbosity)}
}
