package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
)

// ChatAdapter speaks the stateless chat-completions protocol. The provider
// keeps no conversation state, so every call carries the full message
// history; follow-ups append to it and resend everything.
type ChatAdapter struct {
	caller *httpCaller
	logger *logging.Logger
}

func NewChatAdapter(settings Settings, logger *logging.Logger) *ChatAdapter {
	return &ChatAdapter{
		caller: newHTTPCaller(settings),
		logger: logger.WithProvider(settings.Name),
	}
}

func (a *ChatAdapter) Name() string { return a.caller.settings.Name }

func (a *ChatAdapter) Capabilities() Capabilities {
	return Capabilities{SupportsContinuation: false, SupportsReasoning: true}
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []Message     `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions streamOptions `json:"stream_options"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatChunk is one streamed completion chunk. The final chunk carries usage
// and an empty choices list when stream_options.include_usage is set.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *ChatAdapter) Stream(ctx context.Context, call Call, emit EmitFunc) (*Completion, error) {
	model := call.Model
	if model == "" {
		model = a.caller.settings.DefaultModel
	}

	messages := make([]Message, 0, len(call.History)+2)
	messages = append(messages, call.History...)
	if call.Prompt != "" {
		messages = append(messages, Message{Role: "user", Content: call.Prompt})
	}
	if call.Instruction != "" {
		messages = append(messages, Message{Role: "user", Content: call.Instruction})
	}
	if len(messages) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "chat call has no messages")
	}

	body, err := a.caller.openStream(ctx, "/chat/completions", chatRequest{
		Model:         model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
		MaxTokens:     a.caller.settings.MaxOutputTokens,
		Temperature:   call.Temperature,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	completion := &Completion{}
	var text, reasoning strings.Builder
	var finish string

	err = readSSE(ctx, body, func(ev sseEvent) error {
		var chunk chatChunk
		if err := json.Unmarshal([]byte(ev.data), &chunk); err != nil {
			return core.ErrSchemaViolation(core.CodeMalformedPayload,
				"malformed completion chunk").WithCause(err)
		}
		if chunk.Usage != nil {
			completion.Usage.Add(core.TokenUsage{
				Input:  chunk.Usage.PromptTokens,
				Output: chunk.Usage.CompletionTokens,
			})
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				emit(core.EventTextDelta, choice.Delta.Content)
			}
			if choice.Delta.ReasoningContent != "" {
				reasoning.WriteString(choice.Delta.ReasoningContent)
				emit(core.EventReasoningDelta, choice.Delta.ReasoningContent)
			}
			if choice.FinishReason != nil {
				finish = *choice.FinishReason
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	completion.Text = text.String()
	completion.Reasoning = reasoning.String()
	completion.History = append(messages, Message{Role: "assistant", Content: completion.Text})

	// A truncated chat completion cannot be resumed server-side; surface it
	// so the caller can retry with a continued history instead.
	if finish == "length" {
		a.logger.Warn("completion truncated by token ceiling", "model", model)
		return nil, core.ErrTruncatedOutput(0)
	}
	if completion.Text == "" && completion.Reasoning == "" {
		return nil, core.ErrSchemaViolation(core.CodeMalformedPayload,
			"stream produced no output")
	}
	return completion, nil
}
