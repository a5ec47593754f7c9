// Package session orchestrates analysis sessions end to end: admission
// through the per-provider coordinator, streaming from the provider adapter,
// answer validation, persistence, and retry.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridprobe/gridprobe/internal/adapters/provider"
	"github.com/gridprobe/gridprobe/internal/coordinator"
	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
	"github.com/gridprobe/gridprobe/internal/validator"
)

// Config tunes session lifecycle behavior.
type Config struct {
	// Retention is how long a terminal session keeps its continuation
	// handle and history. After it elapses, a retry falls back to a fresh
	// prompt.
	Retention time.Duration

	// DefaultTimeout bounds a provider call when the request carries none
	// and the provider config carries none.
	DefaultTimeout time.Duration

	// SessionTTL is how long terminal sessions remain addressable in
	// memory. Persisted records outlive them.
	SessionTTL time.Duration

	// EventBuffer sizes subscriber channels.
	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 5 * time.Minute
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// AdapterSource resolves provider adapters by id. *provider.Registry is the
// production implementation.
type AdapterSource interface {
	Get(name string) (provider.Adapter, error)
	Timeout(name string) time.Duration
}

// Manager owns all live sessions. One run goroutine per session carries the
// analysis from admission to its terminal event.
type Manager struct {
	logger    *logging.Logger
	catalog   core.PuzzleCatalog
	prompts   core.PromptBuilder
	providers AdapterSource
	coord     *coordinator.Coordinator
	validate  *validator.Validator
	store     core.ResultStore
	cfg       Config

	mu       sync.Mutex
	sessions map[string]*Session

	wg       sync.WaitGroup
	rootCtx  context.Context
	rootStop context.CancelFunc
}

func NewManager(
	logger *logging.Logger,
	catalog core.PuzzleCatalog,
	prompts core.PromptBuilder,
	providers AdapterSource,
	coord *coordinator.Coordinator,
	store core.ResultStore,
	cfg Config,
) *Manager {
	rootCtx, rootStop := context.WithCancel(context.Background())
	m := &Manager{
		logger:    logger,
		catalog:   catalog,
		prompts:   prompts,
		providers: providers,
		coord:     coord,
		validate:  validator.New(),
		store:     store,
		cfg:       cfg.withDefaults(),
		sessions:  make(map[string]*Session),
		rootCtx:   rootCtx,
		rootStop:  rootStop,
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// Close cancels all live sessions and waits for their run goroutines.
func (m *Manager) Close() {
	m.rootStop()
	m.wg.Wait()
}

// Open validates the request, registers a new session and starts its run
// goroutine. It returns as soon as the session is queued; callers follow
// progress through Subscribe.
func (m *Manager) Open(ctx context.Context, req core.AnalysisRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	puzzle, err := m.catalog.Get(ctx, req.PuzzleID)
	if err != nil {
		return nil, err
	}
	adapter, err := m.providers.Get(req.ProviderID)
	if err != nil {
		return nil, err
	}
	prompt, err := m.prompts.Build(core.PromptRequest{Puzzle: puzzle, Config: req.Config})
	if err != nil {
		return nil, err
	}
	return m.launch(req, puzzle, adapter, callPlan{prompt: prompt}, "")
}

// launch registers a session and spawns its run goroutine.
func (m *Manager) launch(req core.AnalysisRequest, puzzle *core.Puzzle, adapter provider.Adapter, plan callPlan, parentID string) (*Session, error) {
	runCtx, cancel := context.WithCancel(m.rootCtx)
	sess := &Session{
		id:        uuid.NewString(),
		parentID:  parentID,
		request:   req,
		plan:      plan,
		hub:       newHub(m.cfg.EventBuffer),
		state:     core.StateCreated,
		cancel:    cancel,
		createdAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx, sess, puzzle, adapter)
	return sess, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound("session", id)
	}
	return sess, nil
}

// Subscribe attaches to a session's event stream. The full log is replayed
// from the start, then live events follow; the channel closes after the
// terminal event or when ctx is cancelled.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan core.StreamEvent, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.hub.subscribe(ctx), nil
}

// Events returns the session's event log so far.
func (m *Manager) Events(id string) ([]core.StreamEvent, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.hub.snapshot(), nil
}

// Cancel stops a running session. Cancelling a terminal session is an error;
// cancellation is idempotent only while the session is live.
func (m *Manager) Cancel(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	if !sess.markCancelled() {
		return core.ErrState(core.CodeAlreadyTerminal,
			fmt.Sprintf("session %s already reached state %s", id, sess.State()))
	}
	return nil
}

// Result returns the terminal record of a session, or not_ready while it is
// still running.
func (m *Manager) Result(id string) (*core.AnalysisRecord, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Record()
}

// List returns a snapshot of all addressable sessions, newest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos
}

// run carries one session from admission to its terminal event.
func (m *Manager) run(runCtx context.Context, sess *Session, puzzle *core.Puzzle, adapter provider.Adapter) {
	defer m.wg.Done()

	logger := m.logger.WithSession(sess.id).WithProvider(sess.request.ProviderID).WithPuzzle(puzzle.ID)

	ticket, err := m.coord.Admit(runCtx, sess.request.ProviderID)
	if err != nil {
		// Cancelled or shut down while queued; nothing was started.
		m.finishCancelled(sess, logger, "", "")
		return
	}
	defer ticket.Release()

	sess.setStreaming()
	started := core.NewStreamEvent(core.EventStarted, sess.id)
	sess.hub.append(started)
	logger.Info("session admitted", "model", sess.request.ModelID, "queue_depth", m.coord.QueueDepth(sess.request.ProviderID))

	timeout := sess.request.Timeout
	if timeout <= 0 {
		timeout = m.providers.Timeout(sess.request.ProviderID)
	}
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	callCtx, cancelCall := context.WithTimeout(runCtx, timeout)
	defer cancelCall()

	var text, reasoning strings.Builder
	emit := func(kind core.StreamEventType, delta string) {
		switch kind {
		case core.EventTextDelta:
			text.WriteString(delta)
		case core.EventReasoningDelta:
			reasoning.WriteString(delta)
		}
		ev := core.NewStreamEvent(kind, sess.id)
		ev.Delta = delta
		sess.hub.append(ev)
	}

	call := m.buildCall(sess)
	completion, err := adapter.Stream(callCtx, call, emit)

	// A stale continuation handle is recoverable: rebuild a fresh prompt
	// for the same puzzle and retry the call once.
	if err != nil && call.PriorHandle != "" && hasCode(err, core.CodeHandleRejected) {
		logger.Warn("continuation handle rejected, retrying with fresh prompt")
		fresh, perr := m.prompts.Build(core.PromptRequest{
			Puzzle:           puzzle,
			Config:           sess.request.Config,
			ExtraInstruction: sess.plan.instruction,
		})
		if perr == nil {
			text.Reset()
			reasoning.Reset()
			completion, err = adapter.Stream(callCtx, provider.Call{
				Model:              sess.request.ModelID,
				Prompt:             fresh,
				Temperature:        sess.request.Config.Temperature,
				ReasoningEffort:    sess.request.Config.ReasoningEffort,
				ReasoningVerbosity: sess.request.Config.ReasoningVerbosity,
				MaxContinuations:   sess.request.Config.ContinuationBudget(),
			}, emit)
		}
	}

	if err != nil {
		if sess.wasCancelled() {
			m.finishCancelled(sess, logger, text.String(), reasoning.String())
			return
		}
		m.finishError(sess, logger, err, text.String(), reasoning.String())
		return
	}
	m.finishCompleted(sess, logger, puzzle, completion)
}

// buildCall translates the session's plan into a provider call.
func (m *Manager) buildCall(sess *Session) provider.Call {
	return provider.Call{
		Model:              sess.request.ModelID,
		Prompt:             sess.plan.prompt,
		History:            sess.plan.history,
		PriorHandle:        sess.plan.priorHandle,
		Instruction:        sess.plan.instruction,
		Temperature:        sess.request.Config.Temperature,
		ReasoningEffort:    sess.request.Config.ReasoningEffort,
		ReasoningVerbosity: sess.request.Config.ReasoningVerbosity,
		MaxContinuations:   sess.request.Config.ContinuationBudget(),
	}
}

func (m *Manager) finishCompleted(sess *Session, logger *logging.Logger, puzzle *core.Puzzle, completion *provider.Completion) {
	record := &core.AnalysisRecord{
		SessionID:     sess.id,
		Request:       sess.request,
		State:         core.StateCompleted,
		RawText:       completion.Text,
		ReasoningText: completion.Reasoning,
		Usage:         completion.Usage,
		CreatedAt:     sess.createdAt,
		FinishedAt:    time.Now(),
	}

	validation, err := m.validate.Validate(completion.Text, puzzle.ExpectedOutputs())
	if err != nil {
		// The session still completes; the raw text is the deliverable
		// even when structured extraction fails.
		record.Warnings = append(record.Warnings, err.Error())
		logger.Warn("prediction validation failed", "error", err)
	} else {
		record.Validation = validation
		logger.Info("prediction validated",
			"accuracy", validation.Accuracy, "method", string(validation.Method))
	}

	m.persist(record, logger)
	sess.finish(core.StateCompleted, record, completion.Handle, completion.History)

	ev := core.NewStreamEvent(core.EventCompleted, sess.id)
	ev.Text = completion.Text
	usage := completion.Usage
	ev.Usage = &usage
	ev.ContinuationHandle = completion.Handle
	sess.hub.append(ev)
	logger.Info("session completed",
		"tokens", completion.Usage.Total(), "continuations", completion.Continuations)
}

func (m *Manager) finishError(sess *Session, logger *logging.Logger, cause error, text, reasoning string) {
	category, message := classify(cause, m.logger)
	record := &core.AnalysisRecord{
		SessionID:     sess.id,
		Request:       sess.request,
		State:         core.StateError,
		RawText:       text,
		ReasoningText: reasoning,
		ErrorCategory: category,
		ErrorMessage:  message,
		CreatedAt:     sess.createdAt,
		FinishedAt:    time.Now(),
	}
	m.persist(record, logger)
	sess.finish(core.StateError, record, "", nil)

	ev := core.NewStreamEvent(core.EventError, sess.id)
	ev.ErrorCategory = category
	ev.ErrorMessage = message
	sess.hub.append(ev)
	logger.Error("session failed", "category", string(category), "error", message)
}

func (m *Manager) finishCancelled(sess *Session, logger *logging.Logger, text, reasoning string) {
	record := &core.AnalysisRecord{
		SessionID:     sess.id,
		Request:       sess.request,
		State:         core.StateCancelled,
		RawText:       text,
		ReasoningText: reasoning,
		CreatedAt:     sess.createdAt,
		FinishedAt:    time.Now(),
	}
	sess.finish(core.StateCancelled, record, "", nil)
	sess.hub.append(core.NewStreamEvent(core.EventCancelled, sess.id))
	logger.Info("session cancelled")
}

// persist saves a record, downgrading failure to a warning on the record.
func (m *Manager) persist(record *core.AnalysisRecord, logger *logging.Logger) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := m.store.Save(ctx, record)
	if err != nil {
		record.Warnings = append(record.Warnings, "persistence failed: "+m.logger.Sanitize(err.Error()))
		logger.Warn("record persistence failed", "error", err)
		return
	}
	record.RecordID = id
}

// sweepLoop expires continuation resources and drops stale terminal
// sessions.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	interval := m.cfg.Retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.rootCtx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.finishedBefore(now.Add(-m.cfg.Retention)) {
			sess.expireContinuation()
		}
		if sess.finishedBefore(now.Add(-m.cfg.SessionTTL)) {
			delete(m.sessions, id)
		}
	}
}

// classify maps an error to its stream-facing category and sanitized
// message.
func classify(err error, logger *logging.Logger) (core.ErrorCategory, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrCatTransport, "provider call timed out"
	}
	if errors.Is(err, context.Canceled) {
		return core.ErrCatInternal, "session interrupted"
	}
	return core.GetCategory(err), logger.Sanitize(err.Error())
}

func hasCode(err error, code string) bool {
	var domErr *core.DomainError
	return errors.As(err, &domErr) && domErr.Code == code
}
