package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridprobe/gridprobe/internal/adapters/provider"
	"github.com/gridprobe/gridprobe/internal/core"
)

func TestRetryContinuesWithRetainedHandle(t *testing.T) {
	adapter := completing(`{"predictedOutput": [[1]]}`, "resp_parent")
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	parent, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	awaitTerminal(t, m, parent.ID())
	parentEvents, err := m.Events(parent.ID())
	require.NoError(t, err)
	parentRecord, err := m.Result(parent.ID())
	require.NoError(t, err)

	child, err := m.Retry(context.Background(), parent.ID(), "look again at the corners")
	require.NoError(t, err)
	require.NotEqual(t, parent.ID(), child.ID())
	awaitTerminal(t, m, child.ID())

	calls := adapter.recordedCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "resp_parent", calls[1].PriorHandle)
	assert.Equal(t, "look again at the corners", calls[1].Instruction)
	assert.Empty(t, calls[1].Prompt, "continuation resends no prompt")

	// The parent is untouched: same record, same event log.
	afterEvents, err := m.Events(parent.ID())
	require.NoError(t, err)
	assert.Equal(t, parentEvents, afterEvents)
	afterRecord, err := m.Result(parent.ID())
	require.NoError(t, err)
	assert.Same(t, parentRecord, afterRecord)
	assert.Equal(t, parent.ID(), child.Info().ParentID)
}

func TestRetryStatelessResendsHistory(t *testing.T) {
	history := []provider.Message{
		{Role: "user", Content: "original prompt"},
		{Role: "assistant", Content: "first answer"},
	}
	adapter := &stubAdapter{
		caps: provider.Capabilities{SupportsContinuation: false},
		stream: func(_ context.Context, call provider.Call, emit provider.EmitFunc) (*provider.Completion, error) {
			emit(core.EventTextDelta, "ok")
			return &provider.Completion{Text: "ok", History: history}, nil
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	parent, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	awaitTerminal(t, m, parent.ID())

	child, err := m.Retry(context.Background(), parent.ID(), "")
	require.NoError(t, err)
	awaitTerminal(t, m, child.ID())

	calls := adapter.recordedCalls()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[1].PriorHandle)
	assert.Equal(t, history, calls[1].History)
	assert.NotEmpty(t, calls[1].Instruction, "empty follow-up gets the default instruction")
}

func TestRetryExpiredHandleFallsBackToFreshPrompt(t *testing.T) {
	adapter := completing(`{"predictedOutput": [[1]]}`, "resp_parent")
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	parent, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	awaitTerminal(t, m, parent.ID())

	// Simulate the retention sweep expiring the continuation resources.
	m.sweep(time.Now().Add(2 * time.Minute))

	child, err := m.Retry(context.Background(), parent.ID(), "try once more")
	require.NoError(t, err)
	awaitTerminal(t, m, child.ID())

	calls := adapter.recordedCalls()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[1].PriorHandle)
	assert.NotEmpty(t, calls[1].Prompt, "expired handle falls back to a full prompt")
	assert.Contains(t, calls[1].Prompt, "try once more")
}

func TestRetryRejectedHandleRetriesFreshOnce(t *testing.T) {
	adapter := &stubAdapter{
		caps: provider.Capabilities{SupportsContinuation: true},
		stream: func(_ context.Context, call provider.Call, emit provider.EmitFunc) (*provider.Completion, error) {
			if call.PriorHandle != "" {
				return nil, core.ErrSchemaViolation(core.CodeHandleRejected, "handle gone")
			}
			emit(core.EventTextDelta, "fresh answer")
			return &provider.Completion{Text: "fresh answer", Handle: "resp_x"}, nil
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	parent, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	awaitTerminal(t, m, parent.ID())

	child, err := m.Retry(context.Background(), parent.ID(), "go deeper")
	require.NoError(t, err)
	events := awaitTerminal(t, m, child.ID())
	assert.Equal(t, core.EventCompleted, events[len(events)-1].Type)

	calls := adapter.recordedCalls()
	require.Len(t, calls, 3, "open, rejected continuation, fresh fallback")
	assert.Equal(t, "resp_x", calls[1].PriorHandle)
	assert.Empty(t, calls[2].PriorHandle)
	assert.Contains(t, calls[2].Prompt, "go deeper")

	record, err := m.Result(child.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, record.State)
	assert.Equal(t, "fresh answer", record.RawText)
}

func TestRetryWhileRunningRejected(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	adapter := &stubAdapter{
		stream: func(ctx context.Context, _ provider.Call, _ provider.EmitFunc) (*provider.Completion, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, ctx.Err()
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	parent, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)

	_, err = m.Retry(context.Background(), parent.ID(), "")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))
	require.NoError(t, m.Cancel(parent.ID()))
	awaitTerminal(t, m, parent.ID())
}

func TestRetryUnknownSession(t *testing.T) {
	m := newTestManager(t, map[string]provider.Adapter{}, &recordingStore{})
	_, err := m.Retry(context.Background(), "ghost", "")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}
