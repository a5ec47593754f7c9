package session

import (
	"context"
	"sync"
	"time"

	"github.com/gridprobe/gridprobe/internal/adapters/provider"
	"github.com/gridprobe/gridprobe/internal/core"
)

// callPlan describes how the provider call for a session is assembled. A
// fresh session carries a prompt; a retry carries either a continuation
// handle, a resendable history, or a rebuilt prompt.
type callPlan struct {
	prompt      string
	priorHandle string
	history     []provider.Message
	instruction string
}

// Session is one analysis attempt against one provider. All mutable state is
// guarded; the run goroutine writes, API handlers read.
type Session struct {
	id       string
	parentID string
	request  core.AnalysisRequest
	plan     callPlan
	hub      *hub

	mu         sync.Mutex
	state      core.SessionState
	cancel     context.CancelFunc
	cancelled  bool // explicit caller cancel, as opposed to timeout
	record     *core.AnalysisRecord
	handle     string
	history    []provider.Message
	createdAt  time.Time
	finishedAt time.Time
}

// Info is the externally visible snapshot of a session.
type Info struct {
	SessionID  string               `json:"session_id"`
	ParentID   string               `json:"parent_id,omitempty"`
	Request    core.AnalysisRequest `json:"request"`
	State      core.SessionState    `json:"state"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		SessionID: s.id,
		ParentID:  s.parentID,
		Request:   s.request,
		State:     s.state,
		CreatedAt: s.createdAt,
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		info.FinishedAt = &finished
	}
	return info
}

// markCancelled flags an explicit caller cancel and fires the run context.
// Returns false if the session already reached a terminal state.
func (s *Session) markCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return false
	}
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

func (s *Session) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) setStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsTerminal() {
		s.state = core.StateStreaming
	}
}

// finish transitions to a terminal state exactly once.
func (s *Session) finish(state core.SessionState, record *core.AnalysisRecord, handle string, history []provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}
	s.state = state
	s.record = record
	s.handle = handle
	s.history = history
	s.finishedAt = time.Now()
}

// Record returns the terminal record, or a not_ready error while the session
// is still running.
func (s *Session) Record() (*core.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsTerminal() || s.record == nil {
		return nil, core.ErrNotReady(s.id)
	}
	return s.record, nil
}

// continuation returns the retained handle and history for a follow-up call.
func (s *Session) continuation() (string, []provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.history
}

// expireContinuation drops the retained handle and history. Called by the
// retention sweep; a later retry falls back to a fresh prompt.
func (s *Session) expireContinuation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = ""
	s.history = nil
}

// finishedBefore reports whether the session reached a terminal state before
// cutoff. Running sessions never expire.
func (s *Session) finishedBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsTerminal() && !s.finishedAt.IsZero() && s.finishedAt.Before(cutoff)
}
