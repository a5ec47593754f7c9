package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
)

func TestChatStreamAssemblesDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.True(t, req.StreamOptions.IncludeUsage)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		s := newSSEWriter(t, w)
		s.raw(`{"choices":[{"delta":{"reasoning_content":"hmm"}}]}`)
		s.raw(`{"choices":[{"delta":{"content":"the answer"}}]}`)
		s.raw(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`)
		s.raw(`{"choices":[],"usage":{"prompt_tokens":80,"completion_tokens":40}}`)
		s.raw(`[DONE]`)
	}))
	defer server.Close()

	adapter := NewChatAdapter(testSettings(t, server.URL), logging.NewNop())
	emit, deltas := collectDeltas()

	completion, err := adapter.Stream(context.Background(), Call{Prompt: "solve it"}, emit)
	require.NoError(t, err)
	assert.Equal(t, "the answer", completion.Text)
	assert.Equal(t, "hmm", completion.Reasoning)
	assert.Empty(t, completion.Handle, "stateless protocol never yields a handle")
	assert.Equal(t, core.TokenUsage{Input: 80, Output: 40}, completion.Usage)
	assert.Equal(t, []string{"reasoning_delta:hmm", "text_delta:the answer"}, *deltas)

	// History carries the full exchange for a stateless follow-up.
	require.Len(t, completion.History, 2)
	assert.Equal(t, "assistant", completion.History[1].Role)
	assert.Equal(t, "the answer", completion.History[1].Content)
}

func TestChatStreamResendsHistory(t *testing.T) {
	var received []Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = req.Messages

		s := newSSEWriter(t, w)
		s.raw(`{"choices":[{"delta":{"content":"continued"},"finish_reason":null}]}`)
		s.raw(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`)
		s.raw(`[DONE]`)
	}))
	defer server.Close()

	history := []Message{
		{Role: "user", Content: "solve it"},
		{Role: "assistant", Content: "partial answ"},
	}
	adapter := NewChatAdapter(testSettings(t, server.URL), logging.NewNop())
	completion, err := adapter.Stream(context.Background(), Call{
		History:     history,
		Instruction: "continue from where you stopped",
	}, func(core.StreamEventType, string) {})
	require.NoError(t, err)

	require.Len(t, received, 3, "full history plus the new instruction")
	assert.Equal(t, "partial answ", received[1].Content)
	assert.Equal(t, "continue from where you stopped", received[2].Content)
	assert.Equal(t, "continued", completion.Text)
}

func TestChatStreamTruncatedByTokenCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s := newSSEWriter(t, w)
		s.raw(`{"choices":[{"delta":{"content":"cut off mid"}}]}`)
		s.raw(`{"choices":[{"delta":{},"finish_reason":"length"}]}`)
		s.raw(`[DONE]`)
	}))
	defer server.Close()

	adapter := NewChatAdapter(testSettings(t, server.URL), logging.NewNop())
	emit, deltas := collectDeltas()

	_, err := adapter.Stream(context.Background(), Call{Prompt: "solve it"}, emit)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatTruncated))
	// Partial output still reached the caller through emit.
	assert.Equal(t, []string{"text_delta:cut off mid"}, *deltas)
}

func TestChatStreamEmptyOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s := newSSEWriter(t, w)
		s.raw(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`)
		s.raw(`[DONE]`)
	}))
	defer server.Close()

	adapter := NewChatAdapter(testSettings(t, server.URL), logging.NewNop())
	_, err := adapter.Stream(context.Background(), Call{Prompt: "solve it"},
		func(core.StreamEventType, string) {})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatSchema))
}

func TestChatStreamNoMessages(t *testing.T) {
	adapter := NewChatAdapter(testSettings(t, "http://localhost:0"), logging.NewNop())
	_, err := adapter.Stream(context.Background(), Call{}, func(core.StreamEventType, string) {})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestChatStreamCancelledContext(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := newSSEWriter(t, w)
		s.raw(`{"choices":[{"delta":{"content":"slow"}}]}`)
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	adapter := NewChatAdapter(testSettings(t, server.URL), logging.NewNop())

	errCh := make(chan error, 1)
	go func() {
		_, err := adapter.Stream(ctx, Call{Prompt: "solve it"},
			func(kind core.StreamEventType, _ string) {
				if kind == core.EventTextDelta {
					cancel()
				}
			})
		errCh <- err
	}()

	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
