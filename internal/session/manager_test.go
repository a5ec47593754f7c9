package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridprobe/gridprobe/internal/adapters/provider"
	"github.com/gridprobe/gridprobe/internal/coordinator"
	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
	"github.com/gridprobe/gridprobe/internal/prompt"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type stubCatalog struct {
	puzzles map[string]*core.Puzzle
}

func (c *stubCatalog) Get(_ context.Context, id string) (*core.Puzzle, error) {
	p, ok := c.puzzles[id]
	if !ok {
		return nil, core.ErrNotFound("puzzle", id)
	}
	return p, nil
}

func (c *stubCatalog) List(context.Context) ([]string, error) {
	ids := make([]string, 0, len(c.puzzles))
	for id := range c.puzzles {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubAdapter struct {
	caps   provider.Capabilities
	stream func(ctx context.Context, call provider.Call, emit provider.EmitFunc) (*provider.Completion, error)

	mu    sync.Mutex
	calls []provider.Call
}

func (a *stubAdapter) Name() string                       { return "stub" }
func (a *stubAdapter) Capabilities() provider.Capabilities { return a.caps }

func (a *stubAdapter) Stream(ctx context.Context, call provider.Call, emit provider.EmitFunc) (*provider.Completion, error) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
	return a.stream(ctx, call, emit)
}

func (a *stubAdapter) recordedCalls() []provider.Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]provider.Call, len(a.calls))
	copy(out, a.calls)
	return out
}

type stubSource struct {
	adapters map[string]provider.Adapter
}

func (s *stubSource) Get(name string) (provider.Adapter, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, core.ErrNotFound("provider", name)
	}
	return a, nil
}

func (s *stubSource) Timeout(string) time.Duration { return 0 }

type recordingStore struct {
	mu      sync.Mutex
	records []*core.AnalysisRecord
	fail    bool
}

func (s *recordingStore) Save(_ context.Context, record *core.AnalysisRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", core.ErrPersistence("disk full")
	}
	s.records = append(s.records, record)
	return "rec-1", nil
}

func (s *recordingStore) Get(context.Context, string) (*core.AnalysisRecord, error) {
	return nil, core.ErrNotFound("record", "any")
}

func (s *recordingStore) ListByPuzzle(context.Context, string) ([]string, error) { return nil, nil }
func (s *recordingStore) Close() error                                           { return nil }

func (s *recordingStore) saved() []*core.AnalysisRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.AnalysisRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func onePuzzle() *core.Puzzle {
	return &core.Puzzle{
		ID: "p1",
		Train: []core.Pair{
			{Input: core.Grid{{0, 1}}, Output: core.Grid{{1, 0}}},
		},
		Test: []core.Pair{
			{Input: core.Grid{{1, 1}}, Output: core.Grid{{1}}},
		},
	}
}

func newTestManager(t *testing.T, adapters map[string]provider.Adapter, store core.ResultStore) *Manager {
	t.Helper()
	m := NewManager(
		logging.NewNop(),
		&stubCatalog{puzzles: map[string]*core.Puzzle{"p1": onePuzzle()}},
		prompt.NewBuilder(),
		&stubSource{adapters: adapters},
		coordinator.New(logging.NewNop()),
		store,
		Config{Retention: time.Minute, SessionTTL: time.Hour, DefaultTimeout: 10 * time.Second},
	)
	t.Cleanup(m.Close)
	return m
}

func request(providerID string) core.AnalysisRequest {
	return core.AnalysisRequest{PuzzleID: "p1", ModelID: "m1", ProviderID: providerID}
}

func awaitTerminal(t *testing.T, m *Manager, id string) []core.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := m.Subscribe(ctx, id)
	require.NoError(t, err)
	var events []core.StreamEvent
	for ev := range ch {
		events = append(events, ev)
		if ev.Type.IsTerminal() {
			return events
		}
	}
	t.Fatal("stream closed without a terminal event")
	return nil
}

// completing returns an adapter whose calls immediately succeed with the
// given answer text.
func completing(text, handle string) *stubAdapter {
	return &stubAdapter{
		caps: provider.Capabilities{SupportsContinuation: handle != ""},
		stream: func(_ context.Context, _ provider.Call, emit provider.EmitFunc) (*provider.Completion, error) {
			emit(core.EventTextDelta, text)
			return &provider.Completion{
				Text:   text,
				Usage:  core.TokenUsage{Input: 10, Output: 5},
				Handle: handle,
			}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestManagerCompletedSessionValidatesAnswer(t *testing.T) {
	adapter := completing(`{"predictedOutput": [[1]]}`, "")
	store := &recordingStore{}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, store)

	sess, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)

	events := awaitTerminal(t, m, sess.ID())
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, core.EventStarted, events[0].Type)
	assert.Equal(t, core.EventCompleted, events[len(events)-1].Type)

	record, err := m.Result(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, record.State)
	require.NotNil(t, record.Validation)
	assert.True(t, record.Validation.AllCorrect())
	assert.Equal(t, 1.0, record.Validation.Accuracy)
	assert.Equal(t, "rec-1", record.RecordID)
	require.Len(t, store.saved(), 1)
}

func TestManagerValidationMismatchStillCompletes(t *testing.T) {
	adapter := completing("no grids here at all", "")
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	sess, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	awaitTerminal(t, m, sess.ID())

	record, err := m.Result(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, record.State)
	assert.Nil(t, record.Validation)
	assert.NotEmpty(t, record.Warnings)
	assert.Equal(t, "no grids here at all", record.RawText)
}

func TestManagerResultBeforeTerminal(t *testing.T) {
	release := make(chan struct{})
	adapter := &stubAdapter{
		stream: func(ctx context.Context, _ provider.Call, _ provider.EmitFunc) (*provider.Completion, error) {
			select {
			case <-release:
				return &provider.Completion{Text: "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	sess, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)

	_, err = m.Result(sess.ID())
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))

	close(release)
	awaitTerminal(t, m, sess.ID())
	_, err = m.Result(sess.ID())
	assert.NoError(t, err)
}

func TestManagerPerProviderExclusivity(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	release := make(chan struct{})
	adapter := &stubAdapter{
		stream: func(ctx context.Context, _ provider.Call, _ provider.EmitFunc) (*provider.Completion, error) {
			n := inFlight.Add(1)
			for {
				prev := maxInFlight.Load()
				if n <= prev || maxInFlight.CompareAndSwap(prev, n) {
					break
				}
			}
			defer inFlight.Add(-1)
			select {
			case <-release:
				return &provider.Completion{Text: "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	var sessions []*Session
	for i := 0; i < 4; i++ {
		sess, err := m.Open(context.Background(), request("fake"))
		require.NoError(t, err)
		sessions = append(sessions, sess)
	}

	// Give queued sessions a chance to (incorrectly) start.
	time.Sleep(100 * time.Millisecond)
	close(release)
	for _, sess := range sessions {
		awaitTerminal(t, m, sess.ID())
	}
	assert.Equal(t, int32(1), maxInFlight.Load(), "only one call per provider at a time")
}

func TestManagerCancelReleasesSlot(t *testing.T) {
	started := make(chan struct{}, 8)
	adapter := &stubAdapter{
		stream: func(ctx context.Context, _ provider.Call, _ provider.EmitFunc) (*provider.Completion, error) {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	first, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	<-started

	second, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)

	require.NoError(t, m.Cancel(first.ID()))
	events := awaitTerminal(t, m, first.ID())
	assert.Equal(t, core.EventCancelled, events[len(events)-1].Type)
	assert.Equal(t, core.StateCancelled, first.State())

	// The freed slot admits the queued session.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("queued session never admitted after cancel")
	}
	require.NoError(t, m.Cancel(second.ID()))
	awaitTerminal(t, m, second.ID())

	// Cancelling a terminal session is rejected.
	err = m.Cancel(first.ID())
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestManagerErrorSessionKeepsPartialText(t *testing.T) {
	adapter := &stubAdapter{
		stream: func(_ context.Context, _ provider.Call, emit provider.EmitFunc) (*provider.Completion, error) {
			emit(core.EventTextDelta, "partial out")
			return nil, core.ErrRateLimited("slow down")
		},
	}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	sess, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	events := awaitTerminal(t, m, sess.ID())

	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.ErrCatRateLimit, last.ErrorCategory)

	record, err := m.Result(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StateError, record.State)
	assert.Equal(t, "partial out", record.RawText)
}

func TestManagerPersistenceFailureIsWarning(t *testing.T) {
	adapter := completing(`{"predictedOutput": [[1]]}`, "")
	store := &recordingStore{fail: true}
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, store)

	sess, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	events := awaitTerminal(t, m, sess.ID())
	assert.Equal(t, core.EventCompleted, events[len(events)-1].Type)

	record, err := m.Result(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, record.State)
	assert.Empty(t, record.RecordID)
	require.NotEmpty(t, record.Warnings)
	assert.Contains(t, record.Warnings[len(record.Warnings)-1], "persistence")
}

func TestManagerOpenRejectsUnknownInputs(t *testing.T) {
	m := newTestManager(t, map[string]provider.Adapter{"fake": completing("x", "")}, &recordingStore{})

	_, err := m.Open(context.Background(), core.AnalysisRequest{PuzzleID: "p1", ModelID: "m1", ProviderID: "nope"})
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	_, err = m.Open(context.Background(), core.AnalysisRequest{PuzzleID: "ghost", ModelID: "m1", ProviderID: "fake"})
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	_, err = m.Open(context.Background(), core.AnalysisRequest{ModelID: "m1", ProviderID: "fake"})
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestManagerLateSubscriberReplaysCompletedSession(t *testing.T) {
	adapter := completing(`{"predictedOutput": [[1]]}`, "")
	m := newTestManager(t, map[string]provider.Adapter{"fake": adapter}, &recordingStore{})

	sess, err := m.Open(context.Background(), request("fake"))
	require.NoError(t, err)
	first := awaitTerminal(t, m, sess.ID())

	// A subscriber attaching after the fact sees the identical log.
	second := awaitTerminal(t, m, sess.ID())
	assert.Equal(t, first, second)
}
